package table

import (
	"fmt"
	"slices"
)

// PivotMean groups rows by (index, columns), averages the non-null numeric
// cells of values per group and spreads the result wide: one row per
// distinct index value (ascending, see Compare) and one column per category.
//
// Categories are emitted in the given order; when order is empty the
// distinct non-null values of the columns column are used, sorted. Rows
// whose category is null still contribute their index value, so every index
// value appears in the output. Groups without a numeric value yield a null
// cell, never zero.
func (t *Table) PivotMean(index, columns, values string, order []string) (*Table, error) {
	for _, name := range []string{index, columns, values} {
		if !t.Has(name) {
			return nil, fmt.Errorf("pivot: %w: %q", ErrColumnNotFound, name)
		}
	}
	idx := t.columns[t.index[index]].Values
	cats := t.columns[t.index[columns]].Values
	vals := t.columns[t.index[values]].Values

	type acc struct {
		sum float64
		n   int
	}
	groups := make(map[string]map[string]*acc)
	var keys []any
	seenKey := make(map[string]bool)
	seenCat := make(map[string]bool)
	var discovered []string

	for r := range t.rows {
		k, ok := Key(idx[r])
		if !ok {
			continue
		}
		if !seenKey[k] {
			seenKey[k] = true
			keys = append(keys, idx[r])
			groups[k] = make(map[string]*acc)
		}
		cat, ok := Key(cats[r])
		if !ok {
			continue
		}
		if !seenCat[cat] {
			seenCat[cat] = true
			discovered = append(discovered, cat)
		}
		v, ok := Float(vals[r])
		if !ok {
			continue
		}
		a := groups[k][cat]
		if a == nil {
			a = &acc{}
			groups[k][cat] = a
		}
		a.sum += v
		a.n++
	}

	if len(order) == 0 {
		order = discovered
		slices.Sort(order)
	}
	slices.SortStableFunc(keys, Compare)

	cols := make([]Column, 0, len(order)+1)
	cols = append(cols, Column{Name: index, Values: keys})
	for _, cat := range order {
		cells := make([]any, len(keys))
		for i, kv := range keys {
			k, _ := Key(kv)
			if a := groups[k][cat]; a != nil && a.n > 0 {
				cells[i] = a.sum / float64(a.n)
			}
		}
		cols = append(cols, Column{Name: cat, Values: cells})
	}
	return New(cols...)
}
