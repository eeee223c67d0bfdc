package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/field-survey-etl/internal/table"
	"github.com/jonboulle/clockwork"
)

var clock clockwork.Clock = clockwork.NewRealClock()

// SetClock replaces the clock used by NewOutput; nil restores the real one.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}

// Output is the product of a successful run, handed to the sink.
type Output struct {
	RunID       string
	ProcessedAt time.Time
	Fields      *table.Table
	Summary     *table.Table
}

// NewOutput stamps a run's tables with the current time.
func NewOutput(runID string, fields, summary *table.Table) Output {
	return Output{
		RunID:       runID,
		ProcessedAt: clock.Now().UTC(),
		Fields:      fields,
		Summary:     summary,
	}
}

// Record is one table row with the key it is published under.
type Record struct {
	Key    string
	Values map[string]any
}

// Records returns the rows of t keyed by keyColumn, in table order.
// Non-finite floats become null so every record is JSON-encodable.
func Records(t *table.Table, keyColumn string) ([]Record, error) {
	if !t.Has(keyColumn) {
		return nil, fmt.Errorf("%w: missing key column %q", ErrSchemaMismatch, keyColumn)
	}
	out := make([]Record, t.Len())
	for r := range t.Len() {
		values := t.Row(r)
		for name, v := range values {
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				values[name] = nil
			}
		}
		key, _ := table.Key(values[keyColumn])
		out[r] = Record{Key: key, Values: values}
	}
	return out, nil
}
