// Package matcher evaluates stored queries against the new items of each
// feed and records the matches as results.
package matcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"feedwatcher/internal/filter"
	"feedwatcher/internal/model"
	"feedwatcher/internal/parser"
)

// Fetcher downloads the raw document of a feed.
type Fetcher interface {
	FetchFeed(ctx context.Context, url string) ([]byte, error)
}

// Store is the persistence the matcher needs.
type Store interface {
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	ListQueries(ctx context.Context) ([]model.Query, error)
	AddResultsAndUpdateFeed(ctx context.Context, results []model.Result, feed *model.Feed) error
}

// QueryError reports a query skipped because its filters could not be compiled.
type QueryError struct {
	Query model.Query
	Err   error
}

func (e QueryError) Error() string {
	return fmt.Sprintf("query %d (%s): %v", e.Query.ID, e.Query.Name, e.Err)
}

// FeedOutcome is the result of evaluating one feed.
// Feed carries the advanced watermark only when Err is nil.
type FeedOutcome struct {
	Feed        model.Feed
	FeedName    string
	Results     []model.Result
	Err         error
	QueryErrors []QueryError
	Dropped     []error
}

// Failed reports whether the feed could not be evaluated.
func (o FeedOutcome) Failed() bool {
	return o.Err != nil
}

// Report collects the outcome of every feed in a sweep, in feed order.
type Report struct {
	Outcomes []FeedOutcome
}

// Results returns all results recorded by the sweep.
func (r Report) Results() []model.Result {
	var out []model.Result
	for _, o := range r.Outcomes {
		out = append(out, o.Results...)
	}
	return out
}

// Failures returns the outcomes of feeds that failed.
func (r Report) Failures() []FeedOutcome {
	var out []FeedOutcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Matcher runs the fetch, parse, evaluate and persist cycle.
type Matcher struct {
	fetcher     Fetcher
	store       Store
	log         *slog.Logger
	concurrency int
	now         func() time.Time
}

// New creates a Matcher evaluating up to four feeds at a time.
func New(f Fetcher, store Store, log *slog.Logger) *Matcher {
	return &Matcher{
		fetcher:     f,
		store:       store,
		log:         log,
		concurrency: 4,
		now:         time.Now,
	}
}

// SetConcurrency overrides how many feeds a sweep evaluates at once.
func (m *Matcher) SetConcurrency(n int) {
	if n > 0 {
		m.concurrency = n
	}
}

// Sweep evaluates every stored feed against every stored query.
// A failing feed never stops the others; its error is in the report.
func (m *Matcher) Sweep(ctx context.Context) (Report, error) {
	feeds, err := m.store.ListFeeds(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list feeds: %w", err)
	}
	queries, err := m.store.ListQueries(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list queries: %w", err)
	}

	outcomes := make([]FeedOutcome, len(feeds))
	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, feed := range feeds {
		g.Go(func() error {
			outcome, err := m.EvaluateFeed(ctx, feed, queries)
			if err != nil {
				m.log.Warn("evaluate feed", "feed_id", feed.ID, "url", feed.URL, "error", err)
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Outcomes: outcomes}
	m.log.Info("sweep finished",
		"feeds", len(feeds), "queries", len(queries),
		"results", len(report.Results()), "failures", len(report.Failures()))
	return report, nil
}

// EvaluateFeed fetches feed, matches its items newer than the watermark
// against queries and stores the results together with the new watermark.
// Nothing is written unless every step succeeds. The returned error is also
// recorded in the outcome.
func (m *Matcher) EvaluateFeed(ctx context.Context, feed model.Feed, queries []model.Query) (FeedOutcome, error) {
	outcome := FeedOutcome{Feed: feed}
	fail := func(err error) (FeedOutcome, error) {
		outcome.Feed = feed
		outcome.Results = nil
		outcome.Err = err
		return outcome, err
	}

	if !feed.ID.Assigned() || feed.URL == nil {
		return fail(errors.New("feed is not stored"))
	}

	body, err := m.fetcher.FetchFeed(ctx, feed.URL.String())
	if err != nil {
		return fail(err)
	}

	doc := parser.NewDocument(bytes.NewReader(body))
	name, err := doc.Name()
	if err != nil {
		return fail(fmt.Errorf("feed %s: %w", feed.URL, err))
	}
	outcome.FeedName = name

	items, err := doc.Items(feed.LastUpdate)
	outcome.Dropped = doc.Dropped()
	for _, d := range outcome.Dropped {
		m.log.Debug("dropped item", "feed_id", feed.ID, "error", d)
	}
	if err != nil {
		return fail(fmt.Errorf("feed %s: %w", feed.URL, err))
	}

	chains := make([]*filter.Chain, 0, len(queries))
	for _, q := range queries {
		chain, err := filter.CompileQuery(q)
		if err != nil {
			m.log.Warn("skip query", "query_id", q.ID, "feed_id", feed.ID, "error", err)
			outcome.QueryErrors = append(outcome.QueryErrors, QueryError{Query: q, Err: err})
			continue
		}
		chains = append(chains, chain)
	}

	updated := feed
	found := m.now().UTC()
	var results []model.Result
	for _, item := range items {
		if item.Date.After(updated.LastUpdate) {
			updated.LastUpdate = item.Date
		}
		for _, chain := range chains {
			if !chain.Match(item) {
				continue
			}
			results = append(results, model.Result{
				Query:    chain.Query,
				Item:     item,
				Found:    found,
				FeedName: name,
			})
		}
	}
	for i := range results {
		results[i].Feed = updated
	}

	if len(results) == 0 && updated.LastUpdate.Equal(feed.LastUpdate) {
		return outcome, nil
	}
	if err := m.store.AddResultsAndUpdateFeed(ctx, results, &updated); err != nil {
		return fail(fmt.Errorf("store results for feed %d: %w", feed.ID, err))
	}

	outcome.Feed = updated
	outcome.Results = results
	if len(results) > 0 {
		m.log.Info("new results", "feed_id", feed.ID, "name", name, "count", len(results))
	}
	return outcome, nil
}
