// Package domain models the Maji Ndogo farm survey and weather station data
// and the corrections applied to it.
//
// # Data Sources
//
// Field records come from the survey database: four feature tables
// (geographic, weather, soil and crop, farm management) left-joined on
// Field_ID. Weather telemetry and the field-to-station mapping are
// published as CSV files with a header row.
//
// # Known Data-Entry Errors
//
// Swapped columns:
//
//	The source database labels the yield figures "Crop_type" and the crop
//	names "Annual_yield". The pair is configured once and exchanged by name
//	through a temporary label, see [SwapColumns].
//
// Crop typos:
//
//	Crop names carry a small set of known misspellings ("cassaval",
//	"wheatn", "teaa"). A corrections map rewrites them; anything not in the
//	map passes through unchanged. The canonical vocabulary is
//	cassava, tea, wheat, potato, banana, coffee, rice, maize.
//
// Negative elevations:
//
//	Some Elevation values were recorded with the wrong sign. They are sign
//	errors, not invalid measurements, and are replaced by their absolute
//	value.
//
// # Weather Messages
//
// Each station emits free-text lines such as
//
//	"Silent now, but after 25.4mm, the fields are lush and cool."
//	"Pollution at 0.12, the air is clearing"
//
// A message is matched against an ordered list of named regular
// expressions; the first pattern that matches decides the category and the
// first numeric capture group gives the value, see [ExtractMeasurement].
// Messages that match nothing are kept as [NoMatch] so they can be audited.
package domain
