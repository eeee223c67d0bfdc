package table

import "fmt"

// LeftJoin attaches the named columns of right to every row of t, matching
// t[key] against right[key]. Rows of t are kept exactly once and in order;
// rows without a match get null cells. When right repeats a key, its first
// row wins. Only the requested columns are taken from right.
func (t *Table) LeftJoin(right *Table, key string, cols ...string) (*Table, error) {
	if !t.Has(key) {
		return nil, fmt.Errorf("left join: left %w: %q", ErrColumnNotFound, key)
	}
	if !right.Has(key) {
		return nil, fmt.Errorf("left join: right %w: %q", ErrColumnNotFound, key)
	}
	for _, c := range cols {
		if !right.Has(c) {
			return nil, fmt.Errorf("left join: right %w: %q", ErrColumnNotFound, c)
		}
	}

	lookup := make(map[string]int, right.Len())
	rightKeys := right.columns[right.index[key]].Values
	for r, v := range rightKeys {
		k, ok := Key(v)
		if !ok {
			continue
		}
		if _, seen := lookup[k]; !seen {
			lookup[k] = r
		}
	}

	out := t.Clone()
	leftKeys := t.columns[t.index[key]].Values
	for _, c := range cols {
		src := right.columns[right.index[c]].Values
		values := make([]any, t.rows)
		for r, v := range leftKeys {
			k, ok := Key(v)
			if !ok {
				continue
			}
			if m, found := lookup[k]; found {
				values[r] = src[m]
			}
		}
		var err error
		out, err = out.WithColumn(c, values)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
