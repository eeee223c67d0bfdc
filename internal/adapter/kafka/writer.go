package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/field-survey-etl/internal/config"
	"github.com/couchcryptid/field-survey-etl/internal/domain"
	"github.com/couchcryptid/field-survey-etl/internal/observability"
	"github.com/couchcryptid/field-survey-etl/internal/table"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	tableFields  = "fields"
	tableSummary = "summary"
)

// Writer publishes run output to Kafka, one message per row: field records
// keyed by Field_ID and station summaries keyed by station ID.
// It implements pipeline.Loader.
type Writer struct {
	writer       *kafkago.Writer
	fieldTopic   string
	summaryTopic string
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewWriter creates a Kafka producer for the configured field and summary topics.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{
		writer:       w,
		fieldTopic:   cfg.KafkaFieldTopic,
		summaryTopic: cfg.KafkaSummaryTopic,
		metrics:      metrics,
		logger:       logger,
	}
}

// Load serializes both tables of out and publishes them in a single
// WriteMessages call.
func (w *Writer) Load(ctx context.Context, out domain.Output) error {
	fields, err := serializeTable(out, out.Fields, domain.ColFieldID, w.fieldTopic, tableFields)
	if err != nil {
		return err
	}
	summary, err := serializeTable(out, out.Summary, domain.ColStationID, w.summaryTopic, tableSummary)
	if err != nil {
		return err
	}

	msgs := append(fields, summary...)
	if len(msgs) == 0 {
		return nil
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish run %s: %w", out.RunID, err)
	}

	w.metrics.RecordsPublished.WithLabelValues(tableFields).Add(float64(len(fields)))
	w.metrics.RecordsPublished.WithLabelValues(tableSummary).Add(float64(len(summary)))
	w.logger.Info("run output published",
		"run_id", out.RunID,
		"field_records", len(fields),
		"station_summaries", len(summary),
	)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeTable marshals every row of t into a message for topic.
func serializeTable(out domain.Output, t *table.Table, keyColumn, topic, name string) ([]kafkago.Message, error) {
	if t == nil {
		return nil, nil
	}
	records, err := domain.Records(t, keyColumn)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", name, err)
	}

	headers := []kafkago.Header{
		{Key: "run_id", Value: []byte(out.RunID)},
		{Key: "processed_at", Value: []byte(out.ProcessedAt.Format(time.RFC3339))},
		{Key: "table", Value: []byte(name)},
	}
	msgs := make([]kafkago.Message, len(records))
	for i, rec := range records {
		data, err := json.Marshal(rec.Values)
		if err != nil {
			return nil, fmt.Errorf("serialize %s record %s: %w", name, rec.Key, err)
		}
		msgs[i] = kafkago.Message{
			Topic:   topic,
			Key:     []byte(rec.Key),
			Value:   data,
			Headers: headers,
		}
	}
	return msgs, nil
}
