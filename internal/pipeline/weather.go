package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/field-survey-etl/internal/domain"
	"github.com/couchcryptid/field-survey-etl/internal/observability"
	"github.com/couchcryptid/field-survey-etl/internal/source"
	"github.com/couchcryptid/field-survey-etl/internal/table"
)

// WeatherProcessor turns free-text station messages into measurements and
// per-station means.
type WeatherProcessor struct {
	csvURL   string
	patterns domain.Patterns
	workers  int
	fetcher  Fetcher
	logger   *slog.Logger
	metrics  *observability.Metrics

	stage  Stage
	table  *table.Table
	counts domain.ParseCounts
}

// NewWeatherProcessor creates a WeatherProcessor in StageEmpty. workers
// bounds concurrent message parsing.
func NewWeatherProcessor(csvURL string, patterns domain.Patterns, workers int, fetcher Fetcher, logger *slog.Logger, metrics *observability.Metrics) *WeatherProcessor {
	return &WeatherProcessor{
		csvURL:   csvURL,
		patterns: patterns,
		workers:  workers,
		fetcher:  fetcher,
		logger:   logger,
		metrics:  metrics,
	}
}

// Stage reports the last completed step.
func (p *WeatherProcessor) Stage() Stage { return p.stage }

// Table returns the current weather table, nil before Ingest.
func (p *WeatherProcessor) Table() *table.Table { return p.table }

// Counts reports parse outcomes from ProcessMessages.
func (p *WeatherProcessor) Counts() domain.ParseCounts { return p.counts }

// Ingest downloads the station message file.
func (p *WeatherProcessor) Ingest(ctx context.Context) error {
	if err := expectStage("ingest weather", p.stage, StageEmpty); err != nil {
		return err
	}
	t, err := p.fetcher.Fetch(ctx, source.CSV{URL: p.csvURL})
	if err != nil {
		return fmt.Errorf("ingest weather: %w", err)
	}

	p.metrics.RowsIngested.WithLabelValues("weather").Add(float64(t.Len()))
	p.logger.Info("weather data ingested", "rows", t.Len())
	p.table = t
	p.stage = StageIngested
	return nil
}

// ProcessMessages annotates every row with its Measurement and Value.
// Rows no pattern matches stay in the table with null annotations.
func (p *WeatherProcessor) ProcessMessages() error {
	if err := expectStage("process messages", p.stage, StageIngested); err != nil {
		return err
	}
	t, counts, err := domain.AnnotateMeasurements(p.table, p.patterns, p.workers, p.logger)
	if err != nil {
		return fmt.Errorf("process messages: %w", err)
	}

	p.metrics.MessagesParsed.WithLabelValues("matched").Add(float64(counts.Matched))
	p.metrics.MessagesParsed.WithLabelValues("unmatched").Add(float64(counts.Unmatched))
	p.logger.Info("weather messages processed", "matched", counts.Matched, "unmatched", counts.Unmatched)
	p.table = t
	p.counts = counts
	p.stage = StageMessagesProcessed
	return nil
}

// CalculateMeans returns one row per station with the mean value of each
// measurement, columns in pattern order.
func (p *WeatherProcessor) CalculateMeans() (*table.Table, error) {
	if err := expectStage("calculate means", p.stage, StageMessagesProcessed); err != nil {
		return nil, err
	}
	summary, err := domain.StationMeans(p.table, p.patterns)
	if err != nil {
		return nil, fmt.Errorf("calculate means: %w", err)
	}
	return summary, nil
}

// Process ingests and parses, then returns the station means.
func (p *WeatherProcessor) Process(ctx context.Context) (*table.Table, error) {
	if p.stage == StageEmpty {
		if err := p.Ingest(ctx); err != nil {
			return nil, err
		}
	}
	if p.stage == StageIngested {
		if err := p.ProcessMessages(); err != nil {
			return nil, err
		}
	}
	return p.CalculateMeans()
}
