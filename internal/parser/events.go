// Package parser reads RSS and Atom documents incrementally.
//
// The EventParser walks the token stream one event at a time against a
// static tree of element descriptors. Each descriptor carries transition
// functions that take the accumulator by value and return the next one,
// so an item under construction never shares fields with the previous item.
package parser

import (
	"io"
	"net/url"
	"strings"
	"time"

	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"feedwatcher/internal/model"
)

// Status reports why ParseUntil returned.
type Status int

// ParseUntil outcomes.
const (
	Satisfied Status = iota + 1
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Satisfied:
		return "satisfied"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// node describes one element of a dialect. Elements are matched by local
// name, so "itunes:image" and "image" share a descriptor.
type node struct {
	name     string
	children []*node

	onStart func(s state, attr func(string) string) state
	// onText receives the trimmed character data of the element.
	onText func(s state, text string) state
	// htmlEntities decodes HTML named entities such as &nbsp; that the
	// non-strict XML decoder leaves in place.
	htmlEntities bool
	// onEnd may complete an item.
	onEnd func(s state) (state, *model.FeedItem, error)
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// dateField keeps either a parsed date or the reason it could not be parsed.
type dateField struct {
	set bool
	t   time.Time
	err error
}

func parseDateField(text string) dateField {
	if text == "" {
		return dateField{}
	}
	t, err := ParseDate(text)
	return dateField{set: true, t: t, err: err}
}

type draft struct {
	title       *string
	description *string
	content     *string
	link        *url.URL
	preferred   bool
	published   dateField
	updated     dateField
}

// state is the accumulator threaded through the transition functions.
type state struct {
	name        *string
	description *string
	icon        *url.URL
	iconIsLogo  bool
	item        draft
}

func textNode(name string, fn func(s state, text string) state) *node {
	return &node{name: name, onText: fn, htmlEntities: true}
}

// urlNode is a textNode whose text is used verbatim.
func urlNode(name string, fn func(s state, text string) state) *node {
	return &node{name: name, onText: fn}
}

func setName(s state, text string) state {
	s.name = &text
	return s
}

func setDescription(s state, text string) state {
	s.description = &text
	return s
}

func setDescriptionIfUnset(s state, text string) state {
	if s.description == nil {
		s.description = &text
	}
	return s
}

func setIcon(s state, text string) state {
	if u := parseURL(text); u != nil {
		s.icon = u
		s.iconIsLogo = false
	}
	return s
}

func setLogo(s state, text string) state {
	if s.icon != nil && !s.iconIsLogo {
		return s
	}
	if u := parseURL(text); u != nil {
		s.icon = u
		s.iconIsLogo = true
	}
	return s
}

func setIconFromAttr(attrName string) func(s state, attr func(string) string) state {
	return func(s state, attr func(string) string) state {
		if v := attr(attrName); v != "" {
			return setIcon(s, v)
		}
		return s
	}
}

func resetItem(s state, _ func(string) string) state {
	s.item = draft{}
	return s
}

func setItemTitle(s state, text string) state {
	s.item.title = &text
	return s
}

func setItemDescription(s state, text string) state {
	s.item.description = &text
	return s
}

func setItemContent(s state, text string) state {
	s.item.content = &text
	return s
}

func setItemPublished(s state, text string) state {
	s.item.published = parseDateField(text)
	return s
}

func setItemUpdated(s state, text string) state {
	if !s.item.updated.set {
		s.item.updated = parseDateField(text)
	}
	return s
}

// setItemLinkAttr handles Atom-style links. The first alternate link wins;
// any other link is kept only until an alternate one shows up.
func setItemLinkAttr(s state, attr func(string) string) state {
	if s.item.preferred {
		return s
	}
	u := parseURL(attr("href"))
	if u == nil {
		return s
	}
	switch attr("rel") {
	case "", "alternate":
		s.item.link = u
		s.item.preferred = true
	default:
		if s.item.link == nil {
			s.item.link = u
		}
	}
	return s
}

// setItemLinkText handles RSS links, which carry the URL as text.
func setItemLinkText(s state, text string) state {
	if u := parseURL(text); u != nil {
		s.item.link = u
		s.item.preferred = true
	}
	return s
}

func completeItem(s state) (state, *model.FeedItem, error) {
	d := s.item
	s.item = draft{}

	description := d.description
	if description == nil {
		description = d.content
	}
	date := d.published
	if !date.set {
		date = d.updated
	}

	var missing []string
	if d.title == nil {
		missing = append(missing, "title")
	}
	if description == nil {
		missing = append(missing, "description")
	}
	if !date.set {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		e := &IncompleteItemError{Missing: missing}
		if d.title != nil {
			e.Title = *d.title
		}
		return s, nil, e
	}
	if date.err != nil {
		return s, nil, date.err
	}

	return s, &model.FeedItem{
		Title:       *d.title,
		Description: *description,
		Link:        d.link,
		Date:        date.t,
	}, nil
}

func parseURL(raw string) *url.URL {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}

func linkNode() *node {
	return &node{name: "link", onStart: setItemLinkAttr, onText: setItemLinkText}
}

func itemNode(name string, children ...*node) *node {
	return &node{name: name, onStart: resetItem, onEnd: completeItem, children: children}
}

// dialects is the descriptor tree for RSS 2.0, Atom and RSS 1.0 (RDF).
// Descriptors hold no state and are shared by all parsers.
var dialects = []*node{
	{name: "rss", children: []*node{
		{name: "channel", children: []*node{
			textNode("title", setName),
			textNode("description", setDescription),
			textNode("summary", setDescriptionIfUnset),
			{name: "image", onStart: setIconFromAttr("href"), children: []*node{
				urlNode("url", setIcon),
			}},
			itemNode("item",
				textNode("title", setItemTitle),
				textNode("description", setItemDescription),
				textNode("encoded", setItemContent),
				linkNode(),
				textNode("pubDate", setItemPublished),
				textNode("date", setItemUpdated),
			),
		}},
	}},
	{name: "feed", children: []*node{
		textNode("title", setName),
		textNode("subtitle", setDescription),
		urlNode("icon", setIcon),
		urlNode("logo", setLogo),
		itemNode("entry",
			textNode("title", setItemTitle),
			textNode("summary", setItemDescription),
			textNode("description", setItemDescription),
			&node{name: "group", children: []*node{
				textNode("description", setItemDescription),
			}},
			textNode("content", setItemContent),
			linkNode(),
			textNode("published", setItemPublished),
			textNode("updated", setItemUpdated),
		),
	}},
	{name: "RDF", children: []*node{
		{name: "channel", children: []*node{
			textNode("title", setName),
			textNode("description", setDescription),
			{name: "image", onStart: setIconFromAttr("resource")},
		}},
		{name: "image", children: []*node{
			urlNode("url", setIcon),
		}},
		itemNode("item",
			textNode("title", setItemTitle),
			textNode("description", setItemDescription),
			textNode("encoded", setItemContent),
			linkNode(),
			textNode("date", setItemUpdated),
		),
	}},
}

// frame is one open element. node is nil for elements outside the tree;
// their subtrees are ignored except for text nested in a text node.
type frame struct {
	node *node
	text []byte
}

// EventParser is a resumable pull parser over a single feed document.
// It is not safe for concurrent use.
type EventParser struct {
	xp      *xpp.XMLPullParser
	stack   []frame
	state   state
	items   []model.FeedItem
	dropped []error
	done    bool
	err     error
}

// NewEventParser returns a parser reading r. Nothing is read until
// ParseUntil is called.
func NewEventParser(r io.Reader) *EventParser {
	return &EventParser{
		xp: xpp.NewXMLPullParser(r, false, charset.NewReaderLabel),
	}
}

// ParseUntil consumes events until pred holds or the stream ends. Calling it
// again resumes where the previous call stopped. A tokenizer failure ends
// the stream and is returned by this and every later call.
func (p *EventParser) ParseUntil(pred func() bool) (Status, error) {
	for {
		if pred() {
			return Satisfied, nil
		}
		if p.err != nil {
			return Exhausted, p.err
		}
		if p.done {
			return Exhausted, nil
		}
		p.step()
	}
}

// Items returns the items completed so far, in document order.
func (p *EventParser) Items() []model.FeedItem {
	out := make([]model.FeedItem, len(p.items))
	copy(out, p.items)
	return out
}

// Dropped returns the errors of items that could not be completed.
func (p *EventParser) Dropped() []error {
	out := make([]error, len(p.dropped))
	copy(out, p.dropped)
	return out
}

func (p *EventParser) step() {
	ev, err := p.xp.Next()
	if err != nil {
		p.err = &SyntaxError{Err: err}
		return
	}
	switch ev {
	case xpp.StartTag:
		p.start(p.xp.Name)
	case xpp.EndTag:
		p.end()
	case xpp.Text:
		p.text(p.xp.Text)
	case xpp.EndDocument:
		p.done = true
	}
}

func (p *EventParser) start(name string) {
	var n *node
	if len(p.stack) == 0 {
		for _, root := range dialects {
			if root.name == name {
				n = root
				break
			}
		}
	} else if parent := p.stack[len(p.stack)-1].node; parent != nil {
		n = parent.child(name)
	}

	p.stack = append(p.stack, frame{node: n})
	if n != nil && n.onStart != nil {
		p.state = n.onStart(p.state, p.xp.Attribute)
	}
}

func (p *EventParser) text(data string) {
	for i := len(p.stack) - 1; i >= 0; i-- {
		fr := &p.stack[i]
		if fr.node == nil {
			continue
		}
		if fr.node.onText != nil {
			fr.text = append(fr.text, data...)
		}
		return
	}
}

func (p *EventParser) end() {
	if len(p.stack) == 0 {
		return
	}
	fr := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	if fr.node == nil {
		return
	}

	if fr.node.onText != nil {
		text := string(fr.text)
		if fr.node.htmlEntities && strings.ContainsRune(text, '&') {
			text = html.UnescapeString(text)
		}
		p.state = fr.node.onText(p.state, strings.TrimSpace(text))
	}
	if fr.node.onEnd != nil {
		next, item, err := fr.node.onEnd(p.state)
		p.state = next
		switch {
		case err != nil:
			p.dropped = append(p.dropped, err)
		case item != nil:
			p.items = append(p.items, *item)
		}
	}
}
