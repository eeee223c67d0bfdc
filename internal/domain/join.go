package domain

import (
	"fmt"

	"github.com/couchcryptid/field-survey-etl/internal/table"
)

// AttachStation left-joins fields to mapping on Field_ID and appends the
// Weather_station column. Every field row is kept once and in order; rows
// without a mapping get a null station. No other mapping column is copied.
// The second result counts unmapped rows.
func AttachStation(fields, mapping *table.Table) (*table.Table, int, error) {
	if err := requireColumns(fields, ColFieldID); err != nil {
		return nil, 0, fmt.Errorf("field table: %w", err)
	}
	if err := requireColumns(mapping, ColFieldID, ColWeatherStation); err != nil {
		return nil, 0, fmt.Errorf("station mapping: %w", err)
	}
	if fields.Has(ColWeatherStation) {
		fields = fields.Drop(ColWeatherStation)
	}

	out, err := fields.LeftJoin(mapping, ColFieldID, ColWeatherStation)
	if err != nil {
		return nil, 0, fmt.Errorf("attach station: %w", err)
	}

	unmapped := 0
	for r := range out.Len() {
		if out.Value(r, ColWeatherStation) == nil {
			unmapped++
		}
	}
	return out, unmapped, nil
}
