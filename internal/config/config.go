package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
// Pipeline behavior (sources, corrections, patterns) lives in the YAML file
// named by PipelineConfig; see LoadPipeline.
type Config struct {
	PipelineConfig  string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	RunInterval  time.Duration
	FetchTimeout time.Duration
	ParseWorkers int

	// Kafka sink configuration.
	KafkaBrokers      []string
	KafkaEnabled      bool
	KafkaFieldTopic   string
	KafkaSummaryTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	runInterval, err := parseDuration("RUN_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	parseWorkers, err := strconv.Atoi(sharedcfg.EnvOrDefault("PARSE_WORKERS", "1"))
	if err != nil || parseWorkers < 1 {
		return nil, errors.New("invalid PARSE_WORKERS: must be a positive integer")
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		PipelineConfig:  sharedcfg.EnvOrDefault("PIPELINE_CONFIG", "pipeline.yml"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RunInterval:  runInterval,
		FetchTimeout: fetchTimeout,
		ParseWorkers: parseWorkers,

		KafkaBrokers:      brokers,
		KafkaEnabled:      kafkaEnabled,
		KafkaFieldTopic:   sharedcfg.EnvOrDefault("KAFKA_FIELD_TOPIC", "field-records"),
		KafkaSummaryTopic: sharedcfg.EnvOrDefault("KAFKA_SUMMARY_TOPIC", "weather-station-summary"),
	}

	if cfg.PipelineConfig == "" {
		return nil, errors.New("PIPELINE_CONFIG is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && (cfg.KafkaFieldTopic == "" || cfg.KafkaSummaryTopic == "") {
		return nil, errors.New("KAFKA_FIELD_TOPIC and KAFKA_SUMMARY_TOPIC are required when the sink is enabled")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key + ": must be a positive duration")
	}
	return d, nil
}
