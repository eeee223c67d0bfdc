package domain

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/field-survey-etl/internal/table"
	"golang.org/x/sync/errgroup"
)

// ParseCounts tallies message outcomes.
type ParseCounts struct {
	Matched   int
	Unmatched int
}

// AnnotateMeasurements parses every Message cell and returns a copy of t with
// two aligned columns appended: Measurement (null for no match) and Value
// (null for no match). Unmatched rows are kept.
//
// With workers > 1 rows are parsed in contiguous chunks concurrently; each
// row's result depends only on its own message, so the output is the same as
// a sequential pass.
func AnnotateMeasurements(t *table.Table, patterns Patterns, workers int, logger *slog.Logger) (*table.Table, ParseCounts, error) {
	if err := requireColumns(t, ColStationID, ColMessage); err != nil {
		return nil, ParseCounts{}, err
	}
	messages, _ := t.Column(ColMessage)
	results := make([]Measurement, len(messages))

	parse := func(lo, hi int) {
		for r := lo; r < hi; r++ {
			results[r] = ExtractMeasurement(messageText(messages[r]), patterns)
			if results[r].IsMatch() {
				logger.Debug("measurement extracted", "row", r, "measurement", results[r].Category())
			} else {
				logger.Debug("no measurement match found", "row", r)
			}
		}
	}

	if workers <= 1 || len(messages) < 2 {
		parse(0, len(messages))
	} else {
		chunk := (len(messages) + workers - 1) / workers
		var g errgroup.Group
		g.SetLimit(workers)
		for lo := 0; lo < len(messages); lo += chunk {
			hi := min(lo+chunk, len(messages))
			g.Go(func() error {
				parse(lo, hi)
				return nil
			})
		}
		_ = g.Wait() // parse never fails
	}

	categories := make([]any, len(results))
	values := make([]any, len(results))
	var counts ParseCounts
	for r, m := range results {
		if !m.IsMatch() {
			counts.Unmatched++
			continue
		}
		counts.Matched++
		categories[r] = m.Category()
		values[r] = m.Value()
	}

	out, err := t.WithColumn(ColMeasurement, categories)
	if err != nil {
		return nil, ParseCounts{}, fmt.Errorf("annotate measurements: %w", err)
	}
	out, err = out.WithColumn(ColValue, values)
	if err != nil {
		return nil, ParseCounts{}, fmt.Errorf("annotate measurements: %w", err)
	}
	return out, counts, nil
}

// StationMeans averages Value per station and measurement category and
// pivots the result to one row per station with one column per category,
// in pattern order. Categories a station never reported are null.
func StationMeans(t *table.Table, patterns Patterns) (*table.Table, error) {
	if err := requireColumns(t, ColStationID, ColMeasurement, ColValue); err != nil {
		return nil, err
	}
	out, err := t.PivotMean(ColStationID, ColMeasurement, ColValue, patterns.Categories())
	if err != nil {
		return nil, fmt.Errorf("station means: %w", err)
	}
	return out, nil
}

func messageText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	k, _ := table.Key(v)
	return k
}
