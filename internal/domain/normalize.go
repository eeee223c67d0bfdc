package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/couchcryptid/field-survey-etl/internal/table"
)

// SwapColumns exchanges the names of columns a and b, so the data under a
// ends up labelled b and vice versa. The exchange goes through a temporary
// label that is lengthened until it does not collide with the schema.
func SwapColumns(t *table.Table, a, b string) (*table.Table, error) {
	if err := requireColumns(t, a, b); err != nil {
		return nil, err
	}
	if a == b {
		return t.Clone(), nil
	}

	tmp := swapLabel
	for t.Has(tmp) {
		tmp += "_"
	}

	staged, err := t.Rename(map[string]string{a: tmp})
	if err != nil {
		return nil, fmt.Errorf("swap columns: %w", err)
	}
	staged, err = staged.Rename(map[string]string{b: a})
	if err != nil {
		return nil, fmt.Errorf("swap columns: %w", err)
	}
	out, err := staged.Rename(map[string]string{tmp: b})
	if err != nil {
		return nil, fmt.Errorf("swap columns: %w", err)
	}
	return out, nil
}

// CorrectValues rewrites the string cells of column found in corrections.
// Unmapped values, nulls and non-string cells pass through unchanged.
func CorrectValues(t *table.Table, column string, corrections map[string]string) (*table.Table, error) {
	if err := requireColumns(t, column); err != nil {
		return nil, err
	}
	return t.MapColumn(column, func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		if fixed, found := corrections[s]; found {
			return fixed, nil
		}
		return s, nil
	})
}

// AbsColumn replaces every numeric cell of column by its absolute value.
// Nulls are kept; any other cell kind is a schema mismatch.
func AbsColumn(t *table.Table, column string) (*table.Table, error) {
	if err := requireColumns(t, column); err != nil {
		return nil, err
	}
	return t.MapColumn(column, func(v any) (any, error) {
		switch x := v.(type) {
		case nil:
			return nil, nil
		case int64:
			if x == math.MinInt64 {
				return nil, fmt.Errorf("%w: %d has no int64 absolute value", ErrSchemaMismatch, x)
			}
			if x < 0 {
				return -x, nil
			}
			return x, nil
		case float64:
			return math.Abs(x), nil
		default:
			return nil, fmt.Errorf("%w: non-numeric value %v", ErrSchemaMismatch, v)
		}
	})
}

// UnknownValues returns the distinct non-null values of column that are not
// in vocabulary, compared case-insensitively after trimming.
func UnknownValues(t *table.Table, column string, vocabulary []string) ([]string, error) {
	values, ok := t.Column(column)
	if !ok {
		return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, column)
	}
	known := make(map[string]bool, len(vocabulary))
	for _, v := range vocabulary {
		known[normalizeWord(v)] = true
	}
	var unknown []string
	for _, v := range values {
		k, ok := table.Key(v)
		if !ok {
			continue
		}
		if !known[normalizeWord(k)] && !slices.Contains(unknown, k) {
			unknown = append(unknown, k)
		}
	}
	return unknown, nil
}

// CheckFieldIDs verifies Field_ID is present, non-null and unique.
func CheckFieldIDs(t *table.Table) error {
	ids, ok := t.Column(ColFieldID)
	if !ok {
		return fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, ColFieldID)
	}
	seen := make(map[string]int, len(ids))
	for r, v := range ids {
		k, ok := table.Key(v)
		if !ok {
			return fmt.Errorf("%w: null %s at row %d", ErrInvalidKey, ColFieldID, r)
		}
		if prev, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s %s repeated at rows %d and %d", ErrInvalidKey, ColFieldID, k, prev, r)
		}
		seen[k] = r
	}
	return nil
}

func requireColumns(t *table.Table, names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing column(s) %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return nil
}

func normalizeWord(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
