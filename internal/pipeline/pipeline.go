// Package pipeline runs the field survey and weather station processors
// and hands their output to the sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/field-survey-etl/internal/config"
	"github.com/couchcryptid/field-survey-etl/internal/domain"
	"github.com/couchcryptid/field-survey-etl/internal/observability"
	"github.com/couchcryptid/field-survey-etl/internal/table"
	"github.com/google/uuid"
)

// Loader writes a run's output to the destination.
type Loader interface {
	Load(ctx context.Context, out domain.Output) error
}

// Stats summarizes one run.
type Stats struct {
	FieldRows      int      `json:"field_rows"`
	UnmappedFields int      `json:"unmapped_fields"`
	Messages       int      `json:"messages"`
	Matched        int      `json:"matched"`
	Unmatched      int      `json:"unmatched"`
	Stations       int      `json:"stations"`
	UnknownCrops   []string `json:"unknown_crops,omitempty"`
}

// Status describes the most recent runs.
type Status struct {
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastStats   *Stats    `json:"last_stats,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Result is everything a successful run produced.
type Result struct {
	RunID      string
	Fields     *table.Table // cleaned, station-annotated field records
	Weather    *table.Table // station messages with Measurement and Value
	Summary    *table.Table // per-station means
	Stats      Stats
	FinishedAt time.Time
}

// Pipeline orchestrates complete extract-transform-load runs.
type Pipeline struct {
	settings *config.Pipeline
	patterns domain.Patterns
	workers  int
	fetcher  Fetcher
	loader   Loader
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	mu     sync.Mutex
	status Status
}

// New creates a Pipeline. settings must already be validated; a nil loader
// keeps results in memory only. workers bounds concurrent message parsing.
func New(settings *config.Pipeline, fetcher Fetcher, loader Loader, workers int, logger *slog.Logger, metrics *observability.Metrics) (*Pipeline, error) {
	patterns, err := settings.Weather.Patterns()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		settings: settings,
		patterns: patterns,
		workers:  max(workers, 1),
		fetcher:  fetcher,
		loader:   loader,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Status reports the latest successful run and the error of the latest
// run if it failed.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run performs one full run. Any failure aborts the run and nothing is
// loaded.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	start := time.Now()

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	res, err := p.run(ctx, runID, logger)
	if err != nil {
		p.metrics.Runs.WithLabelValues("failure").Inc()
		p.mu.Lock()
		p.status.LastError = err.Error()
		p.mu.Unlock()
		logger.Error("pipeline run failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	p.metrics.Runs.WithLabelValues("success").Inc()
	p.metrics.LastSuccess.Set(float64(res.FinishedAt.Unix()))
	stats := res.Stats
	p.mu.Lock()
	p.status = Status{LastRunID: res.RunID, LastSuccess: res.FinishedAt, LastStats: &stats}
	p.mu.Unlock()
	p.ready.Store(true)
	logger.Info("pipeline run finished",
		"field_rows", res.Stats.FieldRows,
		"unmapped_fields", res.Stats.UnmappedFields,
		"messages", res.Stats.Messages,
		"unmatched_messages", res.Stats.Unmatched,
		"stations", res.Stats.Stations,
		"duration", time.Since(start),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, logger *slog.Logger) (*Result, error) {
	field := NewFieldProcessor(p.settings.Field, p.fetcher, logger, p.metrics)
	weather := NewWeatherProcessor(p.settings.Weather.WeatherCSVPath, p.patterns, p.workers, p.fetcher, logger, p.metrics)

	steps := []struct {
		name string
		run  func() error
	}{
		{"field_ingest", func() error { return field.Ingest(ctx) }},
		{"field_rename", field.RenameColumns},
		{"field_correct", field.ApplyCorrections},
		{"field_join", func() error { return field.MapWeatherStations(ctx) }},
		{"weather_ingest", func() error { return weather.Ingest(ctx) }},
		{"weather_parse", weather.ProcessMessages},
	}
	for _, s := range steps {
		if err := p.timed(s.name, s.run); err != nil {
			return nil, err
		}
	}

	var summary *table.Table
	err := p.timed("weather_means", func() error {
		var err error
		summary, err = weather.CalculateMeans()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := domain.NewOutput(runID, field.Table(), summary)
	if p.loader != nil {
		if err := p.timed("load", func() error { return p.loader.Load(ctx, out) }); err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
	}

	counts := weather.Counts()
	return &Result{
		RunID:   runID,
		Fields:  field.Table(),
		Weather: weather.Table(),
		Summary: summary,
		Stats: Stats{
			FieldRows:      field.Table().Len(),
			UnmappedFields: field.Unmapped(),
			Messages:       weather.Table().Len(),
			Matched:        counts.Matched,
			Unmatched:      counts.Unmatched,
			Stations:       summary.Len(),
			UnknownCrops:   field.UnknownCrops(),
		},
		FinishedAt: out.ProcessedAt,
	}, nil
}

func (p *Pipeline) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}

// Serve runs the pipeline immediately and then every interval until ctx is
// cancelled. A failed run is retried with exponential backoff, capped at
// interval.
func (p *Pipeline) Serve(ctx context.Context, interval time.Duration) error {
	p.logger.Info("pipeline scheduler started", "interval", interval)

	backoff := 200 * time.Millisecond
	for {
		wait := interval
		if _, err := p.Run(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			wait = min(backoff, interval)
			backoff = nextBackoff(backoff, interval)
		} else {
			backoff = 200 * time.Millisecond
		}

		if !sleepWithContext(ctx, wait) {
			break
		}
	}

	p.logger.Info("pipeline scheduler stopping", "reason", ctx.Err())
	return nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
