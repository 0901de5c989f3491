package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	lastReq    *http.Request
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetchFeed(t *testing.T) {
	rss := loadFixture(t, "../../testdata/rss.xml")
	atom := loadFixture(t, "../../testdata/atom.xml")
	rdf := loadFixture(t, "../../testdata/rdf.xml")

	tests := []struct {
		name        string
		transport   *mockTransport
		wantNetwork bool
		wantFormat  bool
	}{
		{name: "rss", transport: &mockTransport{body: rss, statusCode: 200}},
		{name: "atom", transport: &mockTransport{body: atom, statusCode: 200}},
		{name: "rdf", transport: &mockTransport{body: rdf, statusCode: 200}},
		{
			name:        "http error status",
			transport:   &mockTransport{body: "not found", statusCode: 404},
			wantNetwork: true,
		},
		{
			name:        "transport error",
			transport:   &mockTransport{err: io.ErrUnexpectedEOF},
			wantNetwork: true,
		},
		{
			name:       "html page",
			transport:  &mockTransport{body: "<html><body>hello</body></html>", statusCode: 200},
			wantFormat: true,
		},
		{
			name:       "not xml at all",
			transport:  &mockTransport{body: "not xml at all", statusCode: 200},
			wantFormat: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			body, err := f.FetchFeed(context.Background(), "https://example.com/feed")

			var ne *NetworkError
			if diff := cmp.Diff(tt.wantNetwork, errors.As(err, &ne)); diff != "" {
				t.Errorf("network error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
			if diff := cmp.Diff(tt.wantFormat, errors.Is(err, ErrUnsupportedFormat)); diff != "" {
				t.Errorf("format error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
			if !tt.wantNetwork && !tt.wantFormat {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if diff := cmp.Diff(tt.transport.body, string(body)); diff != "" {
					t.Errorf("body mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestFetchSetsHeaders(t *testing.T) {
	tr := &mockTransport{body: "ok", statusCode: 200}
	if _, err := New(tr).Fetch(context.Background(), "https://example.com/feed"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff := cmp.Diff("FeedWatcher/1.0", tr.lastReq.Header.Get("User-Agent")); diff != "" {
		t.Errorf("user agent mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchBodyLimit(t *testing.T) {
	tr := &mockTransport{body: strings.Repeat("x", maxBodySize+1), statusCode: 200}
	_, err := New(tr).Fetch(context.Background(), "https://example.com/feed")
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := New(&mockTransport{}).Fetch(context.Background(), "://bad")
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
	if diff := cmp.Diff("://bad", ne.URL); diff != "" {
		t.Errorf("url mismatch (-want +got):\n%s", diff)
	}
}
