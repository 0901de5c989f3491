// Package seed loads feeds and queries from a YAML file and syncs them into
// the store at startup.
package seed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"feedwatcher/internal/filter"
	"feedwatcher/internal/model"
)

// File is the on-disk seed format.
//
//	feeds:
//	  - https://example.com/rss
//	queries:
//	  - name: kubernetes
//	    filters:
//	      - type: title_contains
//	        params: {text: kubernetes}
type File struct {
	Feeds   []string `yaml:"feeds"`
	Queries []Query  `yaml:"queries"`
}

// Query is a named filter chain. Filters are indexed by their position.
type Query struct {
	Name    string   `yaml:"name"`
	Filters []Filter `yaml:"filters"`
}

// Filter is one filter of a seeded query.
type Filter struct {
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

// Store is the persistence Apply writes to.
type Store interface {
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	AddFeed(ctx context.Context, feed *model.Feed) error
	ListQueries(ctx context.Context) ([]model.Query, error)
	AddQuery(ctx context.Context, q *model.Query) error
	UpdateQuery(ctx context.Context, q *model.Query) error
}

// Summary counts what Apply changed.
type Summary struct {
	FeedsAdded     int
	QueriesAdded   int
	QueriesUpdated int
}

// Load reads and validates the seed file at path. A missing file yields an
// empty seed.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if errors.Is(err, os.ErrNotExist) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates seed YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed YAML: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	for _, raw := range f.Feeds {
		if _, err := parseFeedURL(raw); err != nil {
			return err
		}
	}
	names := make(map[string]bool)
	for i, q := range f.Queries {
		if q.Name == "" {
			return fmt.Errorf("query %d: name is required", i)
		}
		if names[q.Name] {
			return fmt.Errorf("query %q: defined twice", q.Name)
		}
		names[q.Name] = true
		if err := filter.ValidateQuery(q.model()); err != nil {
			return err
		}
	}
	return nil
}

// model converts the seeded query. Parameters are sorted by name so the
// stored order is stable.
func (q Query) model() model.Query {
	out := model.Query{Name: q.Name}
	for i, f := range q.Filters {
		names := make([]string, 0, len(f.Params))
		for name := range f.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		mf := model.Filter{Type: model.FilterType(f.Type), Index: i}
		for _, name := range names {
			mf.Parameters = append(mf.Parameters, model.NewParameter(name, f.Params[name]))
		}
		out.Filters = append(out.Filters, mf)
	}
	return out
}

func parseFeedURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("feed %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("feed %q: scheme must be http or https", raw)
	}
	return u, nil
}

// Apply adds seeded feeds that are not stored yet and adds or replaces
// queries by name. New feeds start with the watermark at now, so only items
// published afterwards produce results.
func Apply(ctx context.Context, store Store, f *File, now time.Time) (Summary, error) {
	var sum Summary

	feeds, err := store.ListFeeds(ctx)
	if err != nil {
		return sum, fmt.Errorf("list feeds: %w", err)
	}
	known := make(map[string]bool, len(feeds))
	for _, feed := range feeds {
		known[feed.URL.String()] = true
	}
	for _, raw := range f.Feeds {
		u, err := parseFeedURL(raw)
		if err != nil {
			return sum, err
		}
		if known[u.String()] {
			continue
		}
		feed := model.Feed{URL: u, LastUpdate: now.UTC()}
		if err := store.AddFeed(ctx, &feed); err != nil {
			return sum, fmt.Errorf("add feed %s: %w", u, err)
		}
		known[u.String()] = true
		sum.FeedsAdded++
	}

	queries, err := store.ListQueries(ctx)
	if err != nil {
		return sum, fmt.Errorf("list queries: %w", err)
	}
	byName := make(map[string]model.ID, len(queries))
	for _, q := range queries {
		byName[q.Name] = q.ID
	}
	for _, sq := range f.Queries {
		q := sq.model()
		if id, ok := byName[q.Name]; ok {
			q.ID = id
			if err := store.UpdateQuery(ctx, &q); err != nil {
				return sum, fmt.Errorf("update query %q: %w", q.Name, err)
			}
			sum.QueriesUpdated++
			continue
		}
		if err := store.AddQuery(ctx, &q); err != nil {
			return sum, fmt.Errorf("add query %q: %w", q.Name, err)
		}
		sum.QueriesAdded++
	}
	return sum, nil
}
