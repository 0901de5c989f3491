// Package model defines the domain types used across the application.
package model

import (
	"net/url"
	"sort"
	"time"
)

// ID is a persistence-assigned identity. The zero value means the entity
// has not been stored yet.
type ID int64

// Unassigned is the identity of an entity that has not been persisted.
const Unassigned ID = 0

// Assigned reports whether the identity was issued by the store.
func (id ID) Assigned() bool {
	return id > Unassigned
}

// FeedItem is one entry of a feed as produced by the parser.
type FeedItem struct {
	Title       string
	Description string
	Link        *url.URL
	Date        time.Time
}

// LinkString returns the item link or an empty string when the item has none.
func (i FeedItem) LinkString() string {
	if i.Link == nil {
		return ""
	}
	return i.Link.String()
}

// Feed is a subscribed RSS or Atom source.
// Items dated at or before LastUpdate have already been evaluated.
type Feed struct {
	ID         ID
	URL        *url.URL
	LastUpdate time.Time
}

// FilterType names a filter kind.
type FilterType string

// Supported filter types.
const (
	FilterTitleContains       FilterType = "title_contains"
	FilterDescriptionContains FilterType = "description_contains"
	FilterContains            FilterType = "contains"
	FilterNotContains         FilterType = "not_contains"
	FilterTitleRegex          FilterType = "title_regex"
	FilterLinkRegex           FilterType = "link_regex"
	FilterPublishedAfter      FilterType = "published_after"
	FilterPublishedBefore     FilterType = "published_before"
)

// FilterParameter is a named filter argument. StringValue is nil when the
// parameter was stored without a value.
type FilterParameter struct {
	Name        string
	StringValue *string
}

// NewParameter returns a parameter holding value.
func NewParameter(name, value string) FilterParameter {
	return FilterParameter{Name: name, StringValue: &value}
}

// Filter is one predicate step of a query.
type Filter struct {
	Type       FilterType
	Parameters []FilterParameter
	Index      int
}

// Param returns the value of the first parameter called name.
// The second result is false when the parameter is missing or has no value.
func (f Filter) Param(name string) (string, bool) {
	for _, p := range f.Parameters {
		if p.Name == name {
			if p.StringValue == nil {
				return "", false
			}
			return *p.StringValue, true
		}
	}
	return "", false
}

// Query is a named chain of filters. An item matches when every filter does.
type Query struct {
	ID      ID
	Name    string
	Filters []Filter
}

// Sorted returns the filters ordered by Index. The query is not modified.
func (q Query) Sorted() []Filter {
	out := make([]Filter, len(q.Filters))
	copy(out, q.Filters)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// NextIndex returns an index greater than every filter index in the query.
func (q Query) NextIndex() int {
	next := 0
	for _, f := range q.Filters {
		if f.Index >= next {
			next = f.Index + 1
		}
	}
	return next
}

// Result records one item of one feed matching one query.
type Result struct {
	ID       ID
	Feed     Feed
	Query    Query
	Item     FeedItem
	Found    time.Time
	FeedName string
}
