package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"feedwatcher/internal/model"
	"feedwatcher/migrations"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// querier is the subset of *sql.DB and *sql.Tx used by the helpers below.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
//
// The pool is limited to one connection: SQLite allows a single writer, and
// an in-memory database only exists on the connection that created it.
// Helpers therefore never issue a statement while rows are still open.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListFeeds returns all feeds ordered by ID.
func (s *SQLite) ListFeeds(ctx context.Context) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, url, last_update FROM feeds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

// GetFeed returns a single feed by its ID.
func (s *SQLite) GetFeed(ctx context.Context, id model.ID) (*model.Feed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, url, last_update FROM feeds WHERE id = ?`, int64(id))
	return scanFeed(row)
}

// AddFeed inserts a new feed and populates its ID.
func (s *SQLite) AddFeed(ctx context.Context, feed *model.Feed) error {
	if feed.URL == nil {
		return errors.New("insert feed: missing url")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (url, last_update, created_at) VALUES (?, ?, ?)`,
		feed.URL.String(), formatWatermark(feed.LastUpdate), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert feed %s: %w", feed.URL, ErrDuplicate)
		}
		return fmt.Errorf("insert feed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	feed.ID = model.ID(id)
	return nil
}

// UpdateFeed persists the URL and watermark of an existing feed.
func (s *SQLite) UpdateFeed(ctx context.Context, feed *model.Feed) error {
	return updateFeed(ctx, s.db, feed)
}

// DeleteFeed removes a feed together with its results.
func (s *SQLite) DeleteFeed(ctx context.Context, id model.ID) error {
	return deleteByID(ctx, s.db, "feeds", id)
}

// ListQueries returns all queries with their filter chains, ordered by ID.
func (s *SQLite) ListQueries(ctx context.Context) ([]model.Query, error) {
	ids, err := queryIDs(ctx, s.db)
	if err != nil {
		return nil, err
	}
	queries := make([]model.Query, 0, len(ids))
	for _, id := range ids {
		q, err := loadQuery(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		queries = append(queries, *q)
	}
	return queries, nil
}

// GetQuery returns a single query with its filter chain.
func (s *SQLite) GetQuery(ctx context.Context, id model.ID) (*model.Query, error) {
	return loadQuery(ctx, s.db, id)
}

// AddQuery inserts a query with its filters and populates its ID.
func (s *SQLite) AddQuery(ctx context.Context, q *model.Query) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO queries (name, created_at) VALUES (?, ?)`,
		q.Name, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	if err := insertFilters(ctx, tx, model.ID(id), q.Filters); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	q.ID = model.ID(id)
	return nil
}

// UpdateQuery drops the stored filter chain of q and inserts the new one in
// a single transaction. The query row keeps its ID, so results recorded for
// it survive the replacement.
func (s *SQLite) UpdateQuery(ctx context.Context, q *model.Query) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE queries SET name = ? WHERE id = ?`, q.Name, int64(q.ID))
	if err != nil {
		return fmt.Errorf("update query: %w", err)
	}
	if err := requireRow(res, "query", q.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM filters WHERE query_id = ?`, int64(q.ID)); err != nil {
		return fmt.Errorf("delete filters: %w", err)
	}
	if err := insertFilters(ctx, tx, q.ID, q.Filters); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteQuery removes a query, its filters and its results.
func (s *SQLite) DeleteQuery(ctx context.Context, id model.ID) error {
	return deleteByID(ctx, s.db, "queries", id)
}

const resultColumns = `r.id, r.feed_id, f.url, f.last_update, r.query_id, r.feed_name,
	r.feed_item_title, r.feed_item_description, r.feed_item_url, r.feed_item_date, r.found`

// ListResults returns all results, most recently found first.
func (s *SQLite) ListResults(ctx context.Context) ([]model.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+`
		 FROM results r JOIN feeds f ON f.id = r.feed_id
		 ORDER BY r.found DESC, r.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	var results []model.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		results = append(results, *r)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	cache := make(map[model.ID]*model.Query)
	for i := range results {
		q, err := cachedQuery(ctx, s.db, cache, results[i].Query.ID)
		if err != nil {
			return nil, err
		}
		results[i].Query = *q
	}
	return results, nil
}

// GetResult returns a single result by its ID.
func (s *SQLite) GetResult(ctx context.Context, id model.ID) (*model.Result, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+`
		 FROM results r JOIN feeds f ON f.id = r.feed_id
		 WHERE r.id = ?`, int64(id),
	)
	r, err := scanResult(row)
	if err != nil {
		return nil, err
	}
	q, err := loadQuery(ctx, s.db, r.Query.ID)
	if err != nil {
		return nil, err
	}
	r.Query = *q
	return r, nil
}

// AddResult inserts a result and populates its ID.
func (s *SQLite) AddResult(ctx context.Context, r *model.Result) error {
	return insertResult(ctx, s.db, r)
}

// AddResultAndUpdateFeed inserts r and updates feed atomically.
func (s *SQLite) AddResultAndUpdateFeed(ctx context.Context, r *model.Result, feed *model.Feed) error {
	results := []model.Result{*r}
	if err := s.AddResultsAndUpdateFeed(ctx, results, feed); err != nil {
		return err
	}
	r.ID = results[0].ID
	return nil
}

// AddResultsAndUpdateFeed inserts all results and updates feed atomically.
// Result IDs are populated only when the transaction commits.
func (s *SQLite) AddResultsAndUpdateFeed(ctx context.Context, results []model.Result, feed *model.Feed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	staged := make([]model.Result, len(results))
	copy(staged, results)
	for i := range staged {
		if err := insertResult(ctx, tx, &staged[i]); err != nil {
			return err
		}
	}
	if err := updateFeed(ctx, tx, feed); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	copy(results, staged)
	return nil
}

// DeleteResult removes a single result.
func (s *SQLite) DeleteResult(ctx context.Context, id model.ID) error {
	return deleteByID(ctx, s.db, "results", id)
}

// DeleteResults removes the listed results in one transaction.
func (s *SQLite) DeleteResults(ctx context.Context, ids []model.ID) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleted := 0
	for _, id := range ids {
		err := deleteByID(ctx, tx, "results", id)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return 0, err
		}
		deleted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return deleted, nil
}

// DeleteAllResults removes every result.
func (s *SQLite) DeleteAllResults(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results`); err != nil {
		return fmt.Errorf("delete results: %w", err)
	}
	return nil
}

func updateFeed(ctx context.Context, q querier, feed *model.Feed) error {
	if feed.URL == nil {
		return errors.New("update feed: missing url")
	}
	res, err := q.ExecContext(ctx,
		`UPDATE feeds SET url = ?, last_update = ? WHERE id = ?`,
		feed.URL.String(), formatWatermark(feed.LastUpdate), int64(feed.ID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update feed %s: %w", feed.URL, ErrDuplicate)
		}
		return fmt.Errorf("update feed: %w", err)
	}
	return requireRow(res, "feed", feed.ID)
}

// deleteByID deletes one row from table. Dependent rows go through ON DELETE CASCADE.
func deleteByID(ctx context.Context, q querier, table string, id model.ID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, int64(id))
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return requireRow(res, table, id)
}

func requireRow(res sql.Result, what string, id model.ID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

func insertFilters(ctx context.Context, tx *sql.Tx, queryID model.ID, filters []model.Filter) error {
	for _, f := range filters {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO filters (query_id, type, position) VALUES (?, ?, ?)`,
			int64(queryID), string(f.Type), f.Index,
		)
		if err != nil {
			return fmt.Errorf("insert filter %d: %w", f.Index, err)
		}
		filterID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		for _, p := range f.Parameters {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO filter_parameters (filter_id, name, string_value) VALUES (?, ?, ?)`,
				filterID, p.Name, nullString(p.StringValue),
			); err != nil {
				return fmt.Errorf("insert filter parameter %s: %w", p.Name, err)
			}
		}
	}
	return nil
}

func queryIDs(ctx context.Context, q querier) ([]model.ID, error) {
	rows, err := q.QueryContext(ctx, `SELECT id FROM queries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []model.ID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan query id: %w", err)
		}
		ids = append(ids, model.ID(id))
	}
	return ids, rows.Err()
}

func cachedQuery(ctx context.Context, q querier, cache map[model.ID]*model.Query, id model.ID) (*model.Query, error) {
	if cached, ok := cache[id]; ok {
		return cached, nil
	}
	loaded, err := loadQuery(ctx, q, id)
	if err != nil {
		return nil, err
	}
	cache[id] = loaded
	return loaded, nil
}

// loadQuery reads a query, its filters ordered by position and their parameters.
func loadQuery(ctx context.Context, q querier, id model.ID) (*model.Query, error) {
	query := model.Query{ID: id}
	err := q.QueryRowContext(ctx, `SELECT name FROM queries WHERE id = ?`, int64(id)).Scan(&query.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan query: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, type, position FROM filters WHERE query_id = ? ORDER BY position`, int64(id),
	)
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	byID := make(map[int64]int)
	for rows.Next() {
		var filterID int64
		var f model.Filter
		var typ string
		if err := rows.Scan(&filterID, &typ, &f.Index); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan filter: %w", err)
		}
		f.Type = model.FilterType(typ)
		byID[filterID] = len(query.Filters)
		query.Filters = append(query.Filters, f)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filters: %w", err)
	}
	if len(query.Filters) == 0 {
		return &query, nil
	}

	rows, err = q.QueryContext(ctx,
		`SELECT p.filter_id, p.name, p.string_value
		 FROM filter_parameters p JOIN filters f ON f.id = p.filter_id
		 WHERE f.query_id = ? ORDER BY p.id`, int64(id),
	)
	if err != nil {
		return nil, fmt.Errorf("query filter parameters: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var filterID int64
		var p model.FilterParameter
		var value sql.NullString
		if err := rows.Scan(&filterID, &p.Name, &value); err != nil {
			return nil, fmt.Errorf("scan filter parameter: %w", err)
		}
		if value.Valid {
			p.StringValue = &value.String
		}
		i := byID[filterID]
		query.Filters[i].Parameters = append(query.Filters[i].Parameters, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filter parameters: %w", err)
	}
	return &query, nil
}

func insertResult(ctx context.Context, q querier, r *model.Result) error {
	if !r.Feed.ID.Assigned() || !r.Query.ID.Assigned() {
		return errors.New("insert result: feed and query must be stored first")
	}
	var link sql.NullString
	if r.Item.Link != nil {
		link = sql.NullString{String: r.Item.Link.String(), Valid: true}
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO results (feed_id, query_id, feed_name, feed_item_title, feed_item_description,
		                      feed_item_url, feed_item_date, found)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(r.Feed.ID), int64(r.Query.ID), r.FeedName, r.Item.Title, r.Item.Description,
		link, r.Item.Date.UTC().Format(timeLayout), r.Found.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = model.ID(id)
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// formatWatermark stores the zero watermark as NULL.
func formatWatermark(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", s, err)
	}
	return u, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFeed(row scannable) (*model.Feed, error) {
	var f model.Feed
	var id int64
	var rawURL string
	var lastUpdate sql.NullString
	err := row.Scan(&id, &rawURL, &lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	f.ID = model.ID(id)
	if f.URL, err = parseURL(rawURL); err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		if f.LastUpdate, err = parseTime(lastUpdate.String); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

// scanResult fills everything but the query filters, which are loaded separately.
func scanResult(row scannable) (*model.Result, error) {
	var r model.Result
	var id, feedID, queryID int64
	var feedURL, itemDate, found string
	var lastUpdate, itemURL sql.NullString
	err := row.Scan(&id, &feedID, &feedURL, &lastUpdate, &queryID, &r.FeedName,
		&r.Item.Title, &r.Item.Description, &itemURL, &itemDate, &found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan result: %w", err)
	}
	r.ID = model.ID(id)
	r.Feed.ID = model.ID(feedID)
	r.Query.ID = model.ID(queryID)
	if r.Feed.URL, err = parseURL(feedURL); err != nil {
		return nil, err
	}
	if lastUpdate.Valid {
		if r.Feed.LastUpdate, err = parseTime(lastUpdate.String); err != nil {
			return nil, err
		}
	}
	if itemURL.Valid {
		if r.Item.Link, err = parseURL(itemURL.String); err != nil {
			return nil, err
		}
	}
	if r.Item.Date, err = parseTime(itemDate); err != nil {
		return nil, err
	}
	if r.Found, err = parseTime(found); err != nil {
		return nil, err
	}
	return &r, nil
}
