package source

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/field-survey-etl/internal/table"
	_ "modernc.org/sqlite" // registers "sqlite"
)

// The duckdb driver is registered by the binary (cmd/etl) because it needs cgo.

// parseTarget maps a SQLAlchemy-style database URL to a database/sql driver
// name and DSN. File databases are opened read-only.
func parseTarget(target string) (driver, dsn string, err error) {
	scheme, rest, ok := strings.Cut(target, "://")
	if !ok {
		return "", "", fmt.Errorf("%w: database target %q has no scheme", ErrConnection, target)
	}
	path := strings.TrimPrefix(rest, "/")

	switch scheme {
	case "sqlite":
		if path == "" || path == ":memory:" {
			return "sqlite", ":memory:", nil
		}
		return "sqlite", "file:" + path + "?mode=ro", nil
	case "duckdb":
		if path == "" || path == ":memory:" {
			return "duckdb", "", nil
		}
		return "duckdb", path + "?access_mode=read_only", nil
	default:
		return "", "", fmt.Errorf("%w: unsupported database scheme %q", ErrConnection, scheme)
	}
}

func (f *Fetcher) query(ctx context.Context, q Query) (*table.Table, error) {
	driver, dsn, err := parseTarget(q.Target)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrConnection, q.Target, err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrConnection, q.Target, err)
	}
	f.logger.Debug("database connection established", "target", q.Target, "driver", driver)

	rows, err := db.QueryContext(ctx, q.SQL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: read columns: %w", ErrQuery, err)
	}

	var data [][]any
	for rows.Next() {
		cells := make([]any, len(header))
		ptrs := make([]any, len(header))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: scan row %d: %w", ErrQuery, len(data), err)
		}
		for i, c := range cells {
			cells[i] = normalizeCell(c)
		}
		data = append(data, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	t, err := table.FromRows(header, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return t, nil
}

// normalizeCell narrows driver values to the cell kinds tables hold.
func normalizeCell(v any) any {
	switch x := v.(type) {
	case nil, string, int64, float64, bool:
		return x
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
