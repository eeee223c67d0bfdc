package domain

import (
	"testing"

	"github.com/couchcryptid/field-survey-etl/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachStation(t *testing.T) {
	fields, err := table.New(
		table.Column{Name: ColFieldID, Values: []any{int64(3), int64(7), int64(1)}},
		table.Column{Name: ColCropType, Values: []any{"tea", "rice", "maize"}},
	)
	require.NoError(t, err)
	mapping, err := table.New(
		table.Column{Name: ColMappingIndex, Values: []any{int64(0), int64(1)}},
		table.Column{Name: ColFieldID, Values: []any{int64(1), int64(3)}},
		table.Column{Name: ColWeatherStation, Values: []any{int64(4), int64(0)}},
	)
	require.NoError(t, err)

	out, unmapped, err := AttachStation(fields, mapping)
	require.NoError(t, err)

	assert.Equal(t, []string{ColFieldID, ColCropType, ColWeatherStation}, out.Columns())
	assert.Equal(t, 3, out.Len())
	assert.Equal(t, 1, unmapped)

	ids, _ := out.Column(ColFieldID)
	assert.Equal(t, []any{int64(3), int64(7), int64(1)}, ids, "field order is preserved")
	stations, _ := out.Column(ColWeatherStation)
	assert.Equal(t, []any{int64(0), nil, int64(4)}, stations, "Field_ID 7 has no mapping")
}

func TestAttachStation_ReplacesExistingStation(t *testing.T) {
	fields, err := table.New(
		table.Column{Name: ColFieldID, Values: []any{int64(1)}},
		table.Column{Name: ColWeatherStation, Values: []any{"stale"}},
	)
	require.NoError(t, err)
	mapping, err := table.New(
		table.Column{Name: ColFieldID, Values: []any{int64(1)}},
		table.Column{Name: ColWeatherStation, Values: []any{int64(2)}},
	)
	require.NoError(t, err)

	out, _, err := AttachStation(fields, mapping)
	require.NoError(t, err)
	assert.Equal(t, []string{ColFieldID, ColWeatherStation}, out.Columns())
	assert.Equal(t, int64(2), out.Value(0, ColWeatherStation))
}

func TestAttachStation_SchemaMismatch(t *testing.T) {
	fields, err := table.New(table.Column{Name: ColFieldID, Values: []any{int64(1)}})
	require.NoError(t, err)
	mapping, err := table.New(table.Column{Name: ColFieldID, Values: []any{int64(1)}})
	require.NoError(t, err)

	_, _, err = AttachStation(fields, mapping)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "station mapping")
}

func TestAttachStation_TextIDsMatchExactly(t *testing.T) {
	fields, err := table.New(table.Column{Name: ColFieldID, Values: []any{"007", "01"}})
	require.NoError(t, err)
	mapping, err := table.New(
		table.Column{Name: ColFieldID, Values: []any{"7", "01"}},
		table.Column{Name: ColWeatherStation, Values: []any{"S9", "S1"}},
	)
	require.NoError(t, err)

	out, unmapped, err := AttachStation(fields, mapping)
	require.NoError(t, err)
	assert.Equal(t, 1, unmapped)
	stations, _ := out.Column(ColWeatherStation)
	assert.Equal(t, []any{nil, "S1"}, stations)
}
