package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/field-survey-etl/internal/config"
	"github.com/couchcryptid/field-survey-etl/internal/domain"
	"github.com/couchcryptid/field-survey-etl/internal/observability"
	"github.com/couchcryptid/field-survey-etl/internal/source"
	"github.com/couchcryptid/field-survey-etl/internal/table"
)

// Fetcher acquires a raw table. *source.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, d source.Descriptor) (*table.Table, error)
}

// FieldProcessor takes the field survey from the database to a cleaned,
// station-annotated table. Its steps must run in order, each exactly once.
// A failed step leaves the processor where it was.
type FieldProcessor struct {
	settings config.FieldSettings
	fetcher  Fetcher
	logger   *slog.Logger
	metrics  *observability.Metrics

	stage        Stage
	table        *table.Table
	unmapped     int
	unknownCrops []string
}

// NewFieldProcessor creates a FieldProcessor in StageEmpty.
func NewFieldProcessor(settings config.FieldSettings, fetcher Fetcher, logger *slog.Logger, metrics *observability.Metrics) *FieldProcessor {
	return &FieldProcessor{
		settings: settings,
		fetcher:  fetcher,
		logger:   logger,
		metrics:  metrics,
	}
}

// Stage reports the last completed step.
func (p *FieldProcessor) Stage() Stage { return p.stage }

// Table returns the current field table, nil before Ingest.
func (p *FieldProcessor) Table() *table.Table { return p.table }

// Unmapped is the number of fields MapWeatherStations found no station for.
func (p *FieldProcessor) Unmapped() int { return p.unmapped }

// UnknownCrops lists crop names outside valid_crop_types after corrections.
func (p *FieldProcessor) UnknownCrops() []string { return p.unknownCrops }

// Ingest runs the configured query against the survey database.
func (p *FieldProcessor) Ingest(ctx context.Context) error {
	if err := expectStage("ingest fields", p.stage, StageEmpty); err != nil {
		return err
	}
	t, err := p.fetcher.Fetch(ctx, source.Query{Target: p.settings.DBPath, SQL: p.settings.SQLQuery})
	if err != nil {
		return fmt.Errorf("ingest fields: %w", err)
	}
	if err := domain.CheckFieldIDs(t); err != nil {
		return fmt.Errorf("ingest fields: %w", err)
	}

	p.metrics.RowsIngested.WithLabelValues("field").Add(float64(t.Len()))
	p.logger.Info("field data ingested", "rows", t.Len(), "columns", len(t.Columns()))
	p.table = t
	p.stage = StageIngested
	return nil
}

// RenameColumns exchanges the labels of the configured column pair.
func (p *FieldProcessor) RenameColumns() error {
	if err := expectStage("rename columns", p.stage, StageIngested); err != nil {
		return err
	}
	a, b, err := p.settings.SwapPair()
	if err != nil {
		return fmt.Errorf("rename columns: %w", err)
	}
	t, err := domain.SwapColumns(p.table, a, b)
	if err != nil {
		return fmt.Errorf("rename columns: %w", err)
	}

	p.logger.Info("columns swapped", "first", a, "second", b)
	p.table = t
	p.stage = StageColumnsCorrected
	return nil
}

// ApplyCorrections makes elevations non-negative and replaces misspelled
// crop types. With valid_crop_types configured, crop names still outside
// the vocabulary are logged.
func (p *FieldProcessor) ApplyCorrections() error {
	if err := expectStage("apply corrections", p.stage, StageColumnsCorrected); err != nil {
		return err
	}
	t, err := domain.AbsColumn(p.table, domain.ColElevation)
	if err != nil {
		return fmt.Errorf("apply corrections: %w", err)
	}
	t, err = domain.CorrectValues(t, domain.ColCropType, p.settings.ValuesToRename.Map())
	if err != nil {
		return fmt.Errorf("apply corrections: %w", err)
	}

	if len(p.settings.ValidCropTypes) > 0 {
		unknown, err := domain.UnknownValues(t, domain.ColCropType, p.settings.ValidCropTypes)
		if err != nil {
			return fmt.Errorf("apply corrections: %w", err)
		}
		if len(unknown) > 0 {
			p.logger.Warn("crop types outside vocabulary", "values", unknown)
		}
		p.unknownCrops = unknown
	}

	p.logger.Info("value corrections applied", "corrections", len(p.settings.ValuesToRename))
	p.table = t
	p.stage = StageValuesCorrected
	return nil
}

// MapWeatherStations fetches the field-to-station mapping and attaches a
// Weather_station to every field. Fields without a mapping keep a null
// station.
func (p *FieldProcessor) MapWeatherStations(ctx context.Context) error {
	if err := expectStage("map weather stations", p.stage, StageValuesCorrected); err != nil {
		return err
	}
	mapping, err := p.fetcher.Fetch(ctx, source.CSV{URL: p.settings.WeatherMappingCSV})
	if err != nil {
		return fmt.Errorf("map weather stations: %w", err)
	}
	p.metrics.RowsIngested.WithLabelValues("mapping").Add(float64(mapping.Len()))

	t, unmapped, err := domain.AttachStation(p.table, mapping)
	if err != nil {
		return fmt.Errorf("map weather stations: %w", err)
	}
	if unmapped > 0 {
		p.logger.Warn("fields without a weather station", "count", unmapped)
	}
	p.metrics.UnmappedFields.Add(float64(unmapped))

	p.logger.Info("weather stations mapped", "rows", t.Len(), "unmapped", unmapped)
	p.table = t
	p.unmapped = unmapped
	p.stage = StageStationJoined
	return nil
}

// Process runs every remaining step in order.
func (p *FieldProcessor) Process(ctx context.Context) error {
	steps := []struct {
		from Stage
		run  func() error
	}{
		{StageEmpty, func() error { return p.Ingest(ctx) }},
		{StageIngested, p.RenameColumns},
		{StageColumnsCorrected, p.ApplyCorrections},
		{StageValuesCorrected, func() error { return p.MapWeatherStations(ctx) }},
	}
	for _, s := range steps {
		if p.stage > s.from {
			continue
		}
		if err := s.run(); err != nil {
			return err
		}
	}
	return nil
}
