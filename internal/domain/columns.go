package domain

import "errors"

// Column names used by the pipeline.
const (
	ColFieldID        = "Field_ID"
	ColElevation      = "Elevation"
	ColCropType       = "Crop_type"
	ColAnnualYield    = "Annual_yield"
	ColWeatherStation = "Weather_station"

	ColStationID   = "Weather_station_ID"
	ColMessage     = "Message"
	ColMeasurement = "Measurement"
	ColValue       = "Value"

	// ColMappingIndex is the unnamed row-index column written by the tool
	// that exported the station mapping CSV.
	ColMappingIndex = "Unnamed: 0"
)

// swapLabel is the temporary column name used while exchanging two columns.
const swapLabel = "__temp_name_for_swap__"

var (
	// ErrSchemaMismatch is returned when an expected column is absent or
	// holds values of the wrong kind.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInvalidKey is returned when Field_ID is null or repeated.
	ErrInvalidKey = errors.New("invalid field key")
)

// DefaultCropTypes is the canonical crop vocabulary.
var DefaultCropTypes = []string{"cassava", "tea", "wheat", "potato", "banana", "coffee", "rice", "maize"}
