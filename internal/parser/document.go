package parser

import (
	"io"
	"net/url"
	"time"

	"feedwatcher/internal/model"
)

// Document exposes feed metadata and items, reading the underlying stream
// only as far as each call needs.
type Document struct {
	p *EventParser
}

// NewDocument returns a Document reading RSS or Atom XML from r.
func NewDocument(r io.Reader) *Document {
	return &Document{p: NewEventParser(r)}
}

// Name returns the feed title. It fails with *MissingFieldError if the
// document ends without one.
func (d *Document) Name() (string, error) {
	if _, err := d.p.ParseUntil(func() bool { return d.p.state.name != nil }); err != nil {
		return "", err
	}
	if d.p.state.name == nil {
		return "", &MissingFieldError{Field: "name"}
	}
	return *d.p.state.name, nil
}

// Description returns the feed description, or nil if the document has none.
func (d *Document) Description() (*string, error) {
	if _, err := d.p.ParseUntil(func() bool { return d.p.state.description != nil }); err != nil {
		return nil, err
	}
	if d.p.state.description == nil {
		return nil, nil
	}
	desc := *d.p.state.description
	return &desc, nil
}

// IconURL returns the feed icon, or nil if the document has none.
func (d *Document) IconURL() (*url.URL, error) {
	if _, err := d.p.ParseUntil(func() bool { return d.p.state.icon != nil }); err != nil {
		return nil, err
	}
	if d.p.state.icon == nil {
		return nil, nil
	}
	u := *d.p.state.icon
	return &u, nil
}

// Items reads the rest of the document and returns the items dated strictly
// after since, in document order. Later calls return the same items without
// reading further.
func (d *Document) Items(since time.Time) ([]model.FeedItem, error) {
	if _, err := d.p.ParseUntil(func() bool { return false }); err != nil {
		return nil, err
	}
	var out []model.FeedItem
	for _, item := range d.p.items {
		if item.Date.After(since) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Dropped returns the errors of items skipped so far because they were
// incomplete or carried an unparseable date.
func (d *Document) Dropped() []error {
	return d.p.Dropped()
}
