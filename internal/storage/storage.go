// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"feedwatcher/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a feed with the same URL is already stored.
	ErrDuplicate = errors.New("already exists")
)

// Storage is the interface for all persistence operations.
// Add methods populate the ID of the entity they are given.
type Storage interface {
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	GetFeed(ctx context.Context, id model.ID) (*model.Feed, error)
	AddFeed(ctx context.Context, feed *model.Feed) error
	UpdateFeed(ctx context.Context, feed *model.Feed) error
	DeleteFeed(ctx context.Context, id model.ID) error

	ListQueries(ctx context.Context) ([]model.Query, error)
	GetQuery(ctx context.Context, id model.ID) (*model.Query, error)
	AddQuery(ctx context.Context, q *model.Query) error
	// UpdateQuery replaces the stored filter chain and name of q, keeping its ID.
	UpdateQuery(ctx context.Context, q *model.Query) error
	DeleteQuery(ctx context.Context, id model.ID) error

	// ListResults returns results newest first.
	ListResults(ctx context.Context) ([]model.Result, error)
	GetResult(ctx context.Context, id model.ID) (*model.Result, error)
	AddResult(ctx context.Context, r *model.Result) error
	// AddResultAndUpdateFeed stores r and feed in one transaction.
	AddResultAndUpdateFeed(ctx context.Context, r *model.Result, feed *model.Feed) error
	// AddResultsAndUpdateFeed stores every result and feed in one transaction.
	// Either all writes succeed or none is applied.
	AddResultsAndUpdateFeed(ctx context.Context, results []model.Result, feed *model.Feed) error
	DeleteResult(ctx context.Context, id model.ID) error
	// DeleteResults removes the listed results in one transaction and
	// returns how many existed. Unknown IDs are skipped.
	DeleteResults(ctx context.Context, ids []model.ID) (int, error)
	DeleteAllResults(ctx context.Context) error

	Close() error
}
