// Package fetcher handles downloading raw feed documents.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const maxBodySize = 5 * 1024 * 1024

// ErrUnsupportedFormat is returned when the downloaded document is neither
// RSS nor Atom.
var ErrUnsupportedFormat = errors.New("document is not an RSS or Atom feed")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NetworkError wraps any failure to retrieve a feed.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Fetcher downloads feed documents.
type Fetcher struct {
	client    HTTPClient
	timeout   time.Duration
	userAgent string
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:    client,
		timeout:   30 * time.Second,
		userAgent: "FeedWatcher/1.0",
	}
}

// SetTimeout overrides the default 30-second per-request timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// Fetch downloads the document at url. Transport failures, non-200
// responses and oversized or unreadable bodies are *NetworkError values.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("http get: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxBodySize {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("body exceeds %d bytes", maxBodySize)}
	}
	return body, nil
}

// FetchFeed downloads the document at url and checks that it looks like
// RSS or Atom.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) ([]byte, error) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS, gofeed.FeedTypeAtom:
		return body, nil
	default:
		return nil, fmt.Errorf("%s: %w", url, ErrUnsupportedFormat)
	}
}
