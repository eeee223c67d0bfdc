// Package source acquires raw tables from the survey database and from
// delimited files published over HTTP or stored locally.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/field-survey-etl/internal/table"
)

var (
	// ErrConnection means the source could not be reached: unknown scheme,
	// failed open or ping, transport failure, bad HTTP status or an
	// unreadable file.
	ErrConnection = errors.New("source unreachable")
	// ErrQuery means the database was reached but the query failed.
	ErrQuery = errors.New("query failed")
	// ErrFormat means a delimited file could not be parsed.
	ErrFormat = errors.New("malformed delimited file")
	// ErrEmptyResult means the fetch succeeded but returned no rows.
	ErrEmptyResult = errors.New("empty result")
)

// Descriptor identifies a table to fetch. It is implemented by Query and CSV.
type Descriptor interface {
	fmt.Stringer
	descriptor()
}

// Query selects rows from a database. Target is a URL whose scheme picks
// the driver: sqlite:///relative.db, sqlite:////abs/path.db,
// sqlite://:memory:, duckdb:///path.duckdb.
type Query struct {
	Target string
	SQL    string
}

func (Query) descriptor()      {}
func (q Query) String() string { return "query " + q.Target }

// CSV references a delimited file with a header row. http and https URLs
// are downloaded; anything else is read from disk (file:// is accepted).
type CSV struct {
	URL string
}

func (CSV) descriptor()      {}
func (c CSV) String() string { return "csv " + c.URL }

// Fetcher resolves descriptors to tables.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher whose HTTP downloads time out after timeout.
func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch returns the table described by d. A table with zero rows is
// reported as ErrEmptyResult, never returned.
func (f *Fetcher) Fetch(ctx context.Context, d Descriptor) (*table.Table, error) {
	var (
		t   *table.Table
		err error
	)
	switch d := d.(type) {
	case Query:
		t, err = f.query(ctx, d)
	case CSV:
		t, err = f.readCSV(ctx, d)
	default:
		return nil, fmt.Errorf("%w: unsupported descriptor %T", ErrConnection, d)
	}
	if err != nil {
		f.logger.Error("fetch failed", "source", d.String(), "error", err)
		return nil, err
	}
	if t.Len() == 0 {
		err := fmt.Errorf("%s: %w", d, ErrEmptyResult)
		f.logger.Error("fetch returned no rows", "source", d.String())
		return nil, err
	}
	f.logger.Info("fetched table", "source", d.String(), "rows", t.Len(), "columns", len(t.Columns()))
	return t, nil
}
