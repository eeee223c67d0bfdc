// Command etl cleans the Maji Ndogo field survey, parses weather station
// messages, and publishes both to Kafka.
package main

import (
	"fmt"
	"log/slog"
	"os"

	kafkaadapter "github.com/couchcryptid/field-survey-etl/internal/adapter/kafka"
	"github.com/couchcryptid/field-survey-etl/internal/config"
	"github.com/couchcryptid/field-survey-etl/internal/observability"
	"github.com/couchcryptid/field-survey-etl/internal/pipeline"
	"github.com/couchcryptid/field-survey-etl/internal/source"
	_ "github.com/marcboeker/go-duckdb" // registers "duckdb"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var pipelinePath string

	root := &cobra.Command{
		Use:   "etl",
		Short: "Clean the field survey and summarize weather station messages.",
		Long: `etl loads the Maji Ndogo field survey from its database, fixes the swapped
crop columns, misspelled crop names and negative elevations, attaches each
field's weather station, and averages the measurements parsed from station
messages. Results are published to Kafka when KAFKA_BROKERS is set.

Service settings come from the environment; pipeline behavior comes from the
YAML file named by --config or PIPELINE_CONFIG.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&pipelinePath, "config", "", "pipeline config file (overrides PIPELINE_CONFIG)")

	root.AddCommand(
		newRunCmd(&pipelinePath),
		newServeCmd(&pipelinePath),
		newExtractCmd(&pipelinePath),
		newCheckCmd(&pipelinePath),
	)
	return root
}

// app holds the wired components shared by run and serve.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	pipeline *pipeline.Pipeline
	writer   *kafkaadapter.Writer
}

func newApp(pipelinePath string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return nil, err
	}
	if pipelinePath != "" {
		cfg.PipelineConfig = pipelinePath
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	settings, err := config.LoadPipeline(cfg.PipelineConfig)
	if err != nil {
		logger.Error("failed to load pipeline config", "path", cfg.PipelineConfig, "error", err)
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	// Kafka sink is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var loader pipeline.Loader
	if cfg.KafkaEnabled {
		a.writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		loader = a.writer
		logger.Info("kafka sink enabled",
			"brokers", cfg.KafkaBrokers,
			"field_topic", cfg.KafkaFieldTopic,
			"summary_topic", cfg.KafkaSummaryTopic,
		)
	} else {
		logger.Info("kafka sink disabled")
	}

	fetcher := source.NewFetcher(cfg.FetchTimeout, logger)
	a.pipeline, err = pipeline.New(settings, fetcher, loader, cfg.ParseWorkers, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return a, nil
}

func (a *app) close() {
	if a.writer == nil {
		return
	}
	if err := a.writer.Close(); err != nil {
		a.logger.Error("kafka writer close error", "error", err)
	}
}
