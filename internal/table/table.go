// Package table provides the small column-major table handed between
// pipeline stages.
//
// Cells hold nil (null), string, int64, float64 or bool. Operations never
// mutate their receiver: each returns a new Table owned by the caller, so a
// stage can hand its output on without sharing state with the next one.
package table

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrColumnNotFound is returned when an operation names an absent column.
	ErrColumnNotFound = errors.New("column not found")
	// ErrDuplicateColumn is returned when an operation would produce two
	// columns with the same name.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrLengthMismatch is returned when column lengths disagree.
	ErrLengthMismatch = errors.New("column length mismatch")
)

// Column is a named slice of cells.
type Column struct {
	Name   string
	Values []any
}

// Table is an ordered set of equal-length columns.
type Table struct {
	columns []Column
	index   map[string]int
	rows    int
}

// New builds a table from columns. Column values are copied.
func New(cols ...Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, ok := t.index[c.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		if i == 0 {
			t.rows = len(c.Values)
		} else if len(c.Values) != t.rows {
			return nil, fmt.Errorf("%w: %q has %d rows, want %d", ErrLengthMismatch, c.Name, len(c.Values), t.rows)
		}
		t.index[c.Name] = i
		t.columns = append(t.columns, Column{Name: c.Name, Values: slices.Clone(c.Values)})
	}
	return t, nil
}

// FromRows builds a table from a header and row-major cells.
func FromRows(header []string, rows [][]any) (*Table, error) {
	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = Column{Name: name, Values: make([]any, len(rows))}
	}
	for r, row := range rows {
		if len(row) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrLengthMismatch, r, len(row), len(header))
		}
		for i, v := range row {
			cols[i].Values[r] = v
		}
	}
	return New(cols...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.rows }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]any, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(t.columns[i].Values), true
}

// Value returns the cell at row for the named column, or nil when the
// column does not exist.
func (t *Table) Value(row int, name string) any {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	return t.columns[i].Values[row]
}

// Row returns one row keyed by column name.
func (t *Table) Row(row int) map[string]any {
	out := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		out[c.Name] = c.Values[row]
	}
	return out
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	out := &Table{
		columns: make([]Column, len(t.columns)),
		index:   make(map[string]int, len(t.index)),
		rows:    t.rows,
	}
	for i, c := range t.columns {
		out.columns[i] = Column{Name: c.Name, Values: slices.Clone(c.Values)}
		out.index[c.Name] = i
	}
	return out
}

// Select returns a table holding only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		i, ok := t.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		cols = append(cols, t.columns[i])
	}
	return New(cols...)
}

// Drop returns a table without the named columns. Absent names are ignored.
func (t *Table) Drop(names ...string) *Table {
	out := t.Clone()
	cols := out.columns[:0]
	for _, c := range out.columns {
		if !slices.Contains(names, c.Name) {
			cols = append(cols, c)
		}
	}
	out.columns = cols
	out.reindex()
	return out
}

// Rename applies all renames simultaneously, like a single relabel of the
// header. Every source column must exist and the resulting header must not
// contain duplicates.
func (t *Table) Rename(renames map[string]string) (*Table, error) {
	for from := range renames {
		if !t.Has(from) {
			return nil, fmt.Errorf("rename %q: %w", from, ErrColumnNotFound)
		}
	}
	out := t.Clone()
	for i := range out.columns {
		if to, ok := renames[out.columns[i].Name]; ok {
			out.columns[i].Name = to
		}
	}
	seen := make(map[string]bool, len(out.columns))
	for _, c := range out.columns {
		if seen[c.Name] {
			return nil, fmt.Errorf("rename: %w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = true
	}
	out.reindex()
	return out, nil
}

// WithColumn returns a table with values set as the named column. An
// existing column is replaced in place; a new one is appended.
func (t *Table) WithColumn(name string, values []any) (*Table, error) {
	if len(t.columns) > 0 && len(values) != t.rows {
		return nil, fmt.Errorf("%w: %q has %d rows, want %d", ErrLengthMismatch, name, len(values), t.rows)
	}
	out := t.Clone()
	col := Column{Name: name, Values: slices.Clone(values)}
	if i, ok := out.index[name]; ok {
		out.columns[i] = col
		return out, nil
	}
	out.columns = append(out.columns, col)
	out.index[name] = len(out.columns) - 1
	out.rows = len(values)
	return out, nil
}

// MapColumn returns a table whose named column has fn applied to every
// cell. The first error from fn aborts the operation.
func (t *Table) MapColumn(name string, fn func(any) (any, error)) (*Table, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	values := make([]any, t.rows)
	for r, v := range t.columns[i].Values {
		mapped, err := fn(v)
		if err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", name, r, err)
		}
		values[r] = mapped
	}
	return t.WithColumn(name, values)
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c.Name] = i
	}
}
