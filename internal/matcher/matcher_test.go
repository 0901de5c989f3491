package matcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"feedwatcher/internal/fetcher"
	"feedwatcher/internal/filter"
	"feedwatcher/internal/model"
	"feedwatcher/internal/parser"
	"feedwatcher/internal/storage"
)

type response struct {
	body []byte
	err  error
}

// fakeFetcher serves canned documents by URL. It is read-only after setup.
type fakeFetcher map[string]response

func (f fakeFetcher) FetchFeed(_ context.Context, url string) ([]byte, error) {
	r, ok := f[url]
	if !ok {
		return nil, &fetcher.NetworkError{URL: url, Err: errors.New("unexpected status 404")}
	}
	return r.body, r.err
}

type failingStore struct {
	Store
	err error
}

func (s failingStore) AddResultsAndUpdateFeed(context.Context, []model.Result, *model.Feed) error {
	return s.err
}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("../../testdata/" + name) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addFeed(t *testing.T, s *storage.SQLite, raw string, since time.Time) model.Feed {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	f := model.Feed{URL: u, LastUpdate: since}
	if err := s.AddFeed(context.Background(), &f); err != nil {
		t.Fatalf("add feed: %v", err)
	}
	return f
}

func addQuery(t *testing.T, s *storage.SQLite, name string, filters ...model.Filter) model.Query {
	t.Helper()
	q := model.Query{Name: name, Filters: filters}
	if err := s.AddQuery(context.Background(), &q); err != nil {
		t.Fatalf("add query: %v", err)
	}
	return q
}

func titleContains(text string) model.Filter {
	return model.Filter{
		Type:       model.FilterTitleContains,
		Parameters: []model.FilterParameter{model.NewParameter(filter.ParamText, text)},
	}
}

type match struct {
	Query string
	Title string
}

func matchesOf(results []model.Result) []match {
	out := make([]match, 0, len(results))
	for _, r := range results {
		out = append(out, match{Query: r.Query.Name, Title: r.Item.Title})
	}
	return out
}

const rssURL = "https://devops.example.com/rss"

func TestEvaluateFeed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	feed := addFeed(t, store, rssURL, time.Time{})
	k8s := addQuery(t, store, "k8s", titleContains("kubernetes"))
	all := addQuery(t, store, "all")

	found := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	m := New(fakeFetcher{rssURL: {body: loadFixture(t, "rss.xml")}}, store, discardLogger())
	m.now = func() time.Time { return found }

	outcome, err := m.EvaluateFeed(ctx, feed, []model.Query{k8s, all})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	want := []match{
		{"k8s", "Kubernetes 1.32 Released"},
		{"all", "Kubernetes 1.32 Released"},
		{"all", "Docker Desktop Update"},
		{"all", "DevOps Job Vacancy at BigCorp"},
		{"all", "Helm Chart Best Practices"},
		{"all", "Online Course: K8s Training for Beginners"},
	}
	if diff := cmp.Diff(want, matchesOf(outcome.Results)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	watermark := time.Date(2025, 1, 10, 18, 45, 0, 0, time.UTC)
	for _, r := range outcome.Results {
		if !r.ID.Assigned() {
			t.Errorf("result %q was not stored", r.Item.Title)
		}
		if diff := cmp.Diff("DevOps Weekly", r.FeedName); diff != "" {
			t.Errorf("feed name mismatch (-want +got):\n%s", diff)
		}
		if !r.Found.Equal(found) {
			t.Errorf("found = %v, want %v", r.Found, found)
		}
	}
	if !outcome.Feed.LastUpdate.Equal(watermark) {
		t.Errorf("outcome watermark = %v, want %v", outcome.Feed.LastUpdate, watermark)
	}

	stored, err := store.GetFeed(ctx, feed.ID)
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	if !stored.LastUpdate.Equal(watermark) {
		t.Errorf("stored watermark = %v, want %v", stored.LastUpdate, watermark)
	}
	results, err := store.ListResults(ctx)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if diff := cmp.Diff(len(want), len(results)); diff != "" {
		t.Errorf("stored result count mismatch (-want +got):\n%s", diff)
	}

	// Re-evaluating from the new watermark finds nothing new.
	again, err := m.EvaluateFeed(ctx, *stored, []model.Query{k8s, all})
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(again.Results) != 0 {
		t.Errorf("expected no new results, got %v", matchesOf(again.Results))
	}
}

func TestEvaluateFeedHonorsWatermark(t *testing.T) {
	store := newTestStore(t)
	since := time.Date(2025, 1, 8, 17, 0, 0, 0, time.UTC)
	feed := addFeed(t, store, rssURL, since)
	all := addQuery(t, store, "all")

	m := New(fakeFetcher{rssURL: {body: loadFixture(t, "rss.xml")}}, store, discardLogger())
	outcome, err := m.EvaluateFeed(context.Background(), feed, []model.Query{all})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	want := []match{
		{"all", "Helm Chart Best Practices"},
		{"all", "Online Course: K8s Training for Beginners"},
	}
	if diff := cmp.Diff(want, matchesOf(outcome.Results)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateFeedSkipsBrokenQuery(t *testing.T) {
	store := newTestStore(t)
	feed := addFeed(t, store, rssURL, time.Time{})
	broken := addQuery(t, store, "broken", model.Filter{
		Type:       model.FilterTitleRegex,
		Parameters: []model.FilterParameter{model.NewParameter(filter.ParamPattern, "[unclosed")},
	})
	helm := addQuery(t, store, "helm", titleContains("helm"))

	m := New(fakeFetcher{rssURL: {body: loadFixture(t, "rss.xml")}}, store, discardLogger())
	outcome, err := m.EvaluateFeed(context.Background(), feed, []model.Query{broken, helm})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if diff := cmp.Diff([]match{{"helm", "Helm Chart Best Practices"}}, matchesOf(outcome.Results)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	if len(outcome.QueryErrors) != 1 {
		t.Fatalf("expected one query error, got %v", outcome.QueryErrors)
	}
	qe := outcome.QueryErrors[0]
	if diff := cmp.Diff(broken.ID, qe.Query.ID); diff != "" {
		t.Errorf("query error id mismatch (-want +got):\n%s", diff)
	}
	var ce *filter.ConfigError
	if !errors.As(qe.Err, &ce) {
		t.Errorf("query error = %v, want *filter.ConfigError", qe.Err)
	}
}

func TestEvaluateFeedFailureKeepsWatermark(t *testing.T) {
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		fetcher fakeFetcher
		store   func(*storage.SQLite) Store
		check   func(t *testing.T, err error)
	}{
		{
			name:    "network error",
			fetcher: fakeFetcher{},
			check: func(t *testing.T, err error) {
				var ne *fetcher.NetworkError
				if !errors.As(err, &ne) {
					t.Errorf("error = %v, want *fetcher.NetworkError", err)
				}
			},
		},
		{
			name:    "malformed document",
			fetcher: fakeFetcher{rssURL: {body: []byte(`<rss><channel><title>Cut`)}},
			check: func(t *testing.T, err error) {
				var se *parser.SyntaxError
				if !errors.As(err, &se) {
					t.Errorf("error = %v, want *parser.SyntaxError", err)
				}
			},
		},
		{
			name:    "missing feed name",
			fetcher: fakeFetcher{rssURL: {body: []byte(`<rss><channel></channel></rss>`)}},
			check: func(t *testing.T, err error) {
				var me *parser.MissingFieldError
				if !errors.As(err, &me) {
					t.Errorf("error = %v, want *parser.MissingFieldError", err)
				}
			},
		},
		{
			name:  "store failure",
			store: func(s *storage.SQLite) Store { return failingStore{Store: s, err: errors.New("disk full")} },
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected store error")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			sqlite := newTestStore(t)
			feed := addFeed(t, sqlite, rssURL, since)
			all := addQuery(t, sqlite, "all")

			fetch := tt.fetcher
			if fetch == nil {
				fetch = fakeFetcher{rssURL: {body: loadFixture(t, "rss.xml")}}
			}
			var store Store = sqlite
			if tt.store != nil {
				store = tt.store(sqlite)
			}

			outcome, err := New(fetch, store, discardLogger()).EvaluateFeed(ctx, feed, []model.Query{all})
			tt.check(t, err)
			if !outcome.Failed() || !errors.Is(outcome.Err, err) {
				t.Errorf("outcome error = %v, want %v", outcome.Err, err)
			}
			if len(outcome.Results) != 0 {
				t.Errorf("failed outcome carries %d results", len(outcome.Results))
			}

			stored, err := sqlite.GetFeed(ctx, feed.ID)
			if err != nil {
				t.Fatalf("get feed: %v", err)
			}
			if !stored.LastUpdate.Equal(since) {
				t.Errorf("watermark moved to %v", stored.LastUpdate)
			}
			results, err := sqlite.ListResults(ctx)
			if err != nil {
				t.Fatalf("list results: %v", err)
			}
			if len(results) != 0 {
				t.Errorf("expected no stored results, got %d", len(results))
			}
		})
	}
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	const (
		atomURL = "https://atom.example.com/feed"
		rdfURL  = "https://rdf.example.com/rss"
		downURL = "https://down.example.com/rss"
	)
	addFeed(t, store, rssURL, time.Time{})
	addFeed(t, store, atomURL, time.Time{})
	addFeed(t, store, rdfURL, time.Time{})
	down := addFeed(t, store, downURL, time.Time{})
	addQuery(t, store, "launch", titleContains("launch"))
	addQuery(t, store, "digest", titleContains("digest"))
	addQuery(t, store, "helm", titleContains("helm"))

	fetch := fakeFetcher{
		rssURL:  {body: loadFixture(t, "rss.xml")},
		atomURL: {body: loadFixture(t, "atom.xml")},
		rdfURL:  {body: loadFixture(t, "rdf.xml")},
	}
	m := New(fetch, store, discardLogger())
	m.SetConcurrency(2)

	report, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if diff := cmp.Diff(4, len(report.Outcomes)); diff != "" {
		t.Fatalf("outcome count mismatch (-want +got):\n%s", diff)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Feed.ID != down.ID {
		t.Fatalf("failures = %+v, want only feed %d", failures, down.ID)
	}

	want := []match{
		{"helm", "Helm Chart Best Practices"},
		{"launch", "Product Launch Today"},
		{"digest", "First digest"},
		{"digest", "Second digest"},
	}
	sortMatches := cmpopts.SortSlices(func(a, b match) bool { return a.Title < b.Title })
	if diff := cmp.Diff(want, matchesOf(report.Results()), sortMatches); diff != "" {
		t.Errorf("report results mismatch (-want +got):\n%s", diff)
	}

	stored, err := store.ListResults(ctx)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if diff := cmp.Diff(want, matchesOf(stored), sortMatches); diff != "" {
		t.Errorf("stored results mismatch (-want +got):\n%s", diff)
	}
}

func TestSweepEmpty(t *testing.T) {
	m := New(fakeFetcher{}, newTestStore(t), discardLogger())
	report, err := m.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Outcomes) != 0 || len(report.Results()) != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
}
