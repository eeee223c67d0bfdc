//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/field-survey-etl/internal/adapter/kafka"
	"github.com/couchcryptid/field-survey-etl/internal/config"
	"github.com/couchcryptid/field-survey-etl/internal/domain"
	"github.com/couchcryptid/field-survey-etl/internal/observability"
	"github.com/couchcryptid/field-survey-etl/internal/pipeline"
	"github.com/couchcryptid/field-survey-etl/internal/source"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	_ "modernc.org/sqlite"
)

const (
	testFieldTopic   = "test-field-records"
	testSummaryTopic = "test-station-summary"
)

const mappingCSV = `,Field_ID,Weather_station
0,40734,4
1,30629,0
`

const weatherCSV = `Weather_station_ID,Message
4,"Rainfall: 10mm recorded"
4,"After 30 mm the river rose"
0,"Temperature hovered at 21.5 C"
0,"sensor offline"
0,"Pollution at 0.4"
`

// publishedMessage holds a deserialized message read from a sink topic.
type publishedMessage struct {
	Key     string
	Values  map[string]any
	Headers map[string]string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// readPublished reads n messages from topic.
func readPublished(ctx context.Context, t *testing.T, broker, topic string, n int) []publishedMessage {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]publishedMessage, 0, n)
	for range n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from %s", topic)

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		var values map[string]any
		require.NoError(t, json.Unmarshal(msg.Value, &values))
		out = append(out, publishedMessage{Key: string(msg.Key), Values: values, Headers: headers})
	}
	return out
}

// surveyDB writes a two-table survey database and returns its target URL.
func surveyDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "survey.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE geographic_features (Field_ID INTEGER, Elevation REAL)`,
		`CREATE TABLE soil_and_crop_features (Field_ID INTEGER, Crop_type REAL, Annual_yield TEXT)`,
		`INSERT INTO geographic_features VALUES (40734, 786.05), (30629, -674.34), (39924, 826.53)`,
		`INSERT INTO soil_and_crop_features VALUES (40734, 0.75, 'cassaval'), (30629, 1.46, 'wheatn'), (39924, 0.87, 'tea')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return "sqlite:///" + path
}

func csvServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mapping.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, mappingCSV)
	})
	mux.HandleFunc("GET /weather.csv", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, weatherCSV)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func pipelineSettings(t *testing.T, dbTarget, baseURL string) *config.Pipeline {
	t.Helper()
	doc := fmt.Sprintf(`
field:
  db_path: %s
  sql_query: SELECT * FROM geographic_features LEFT JOIN soil_and_crop_features USING (Field_ID)
  columns_to_rename:
    Annual_yield: Crop_type
    Crop_type: Annual_yield
  values_to_rename:
    cassaval: cassava
    wheatn: wheat
  weather_mapping_csv: %s/mapping.csv
  valid_crop_types: [cassava, tea, wheat]
weather:
  weather_csv_path: %s/weather.csv
  regex_patterns:
    Rainfall: '(\d+(\.\d+)?)\s?mm'
    Temperature: '(\d+(\.\d+)?)\s?C'
    Pollution_level: '=\s*(-?\d+(\.\d+)?)|Pollution at \s*(-?\d+(\.\d+)?)'
`, dbTarget, baseURL, baseURL)
	p, err := config.ParsePipeline([]byte(doc))
	require.NoError(t, err)
	return p
}

// TestPipelineEndToEnd runs the full pipeline against a SQLite survey, HTTP
// CSV sources and a real Kafka broker, then reads back both sink topics.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testFieldTopic)
	createTopic(t, broker, testSummaryTopic)

	cfg := &config.Config{
		KafkaBrokers:      []string{broker},
		KafkaEnabled:      true,
		KafkaFieldTopic:   testFieldTopic,
		KafkaSummaryTopic: testSummaryTopic,
	}
	metrics := observability.NewMetricsForTesting()
	writer := kafka.NewWriter(cfg, metrics, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	srv := csvServer(t)
	settings := pipelineSettings(t, surveyDB(t), srv.URL)
	fetcher := source.NewFetcher(10*time.Second, discardLogger())

	p, err := pipeline.New(settings, fetcher, writer, 2, discardLogger(), metrics)
	require.NoError(t, err)

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.FieldRows)
	assert.Equal(t, 1, res.Stats.UnmappedFields)
	assert.Empty(t, res.Stats.UnknownCrops)
	require.NoError(t, p.CheckReadiness(ctx))

	fields := readPublished(ctx, t, broker, testFieldTopic, 3)
	byKey := make(map[string]publishedMessage, len(fields))
	for _, m := range fields {
		byKey[m.Key] = m
		assert.Equal(t, res.RunID, m.Headers["run_id"])
		assert.Equal(t, "fields", m.Headers["table"])
		assert.NotEmpty(t, m.Headers["processed_at"])
	}

	require.Contains(t, byKey, "40734")
	assert.Equal(t, "cassava", byKey["40734"].Values[domain.ColCropType])
	assert.InDelta(t, 0.75, byKey["40734"].Values[domain.ColAnnualYield], 1e-9)
	assert.InDelta(t, 4, byKey["40734"].Values[domain.ColWeatherStation], 0)

	require.Contains(t, byKey, "30629")
	assert.Equal(t, "wheat", byKey["30629"].Values[domain.ColCropType])
	assert.InDelta(t, 674.34, byKey["30629"].Values[domain.ColElevation], 1e-9)

	require.Contains(t, byKey, "39924")
	assert.Nil(t, byKey["39924"].Values[domain.ColWeatherStation], "unmapped field keeps a null station")

	summaries := readPublished(ctx, t, broker, testSummaryTopic, 2)
	stations := make(map[string]publishedMessage, len(summaries))
	for _, m := range summaries {
		stations[m.Key] = m
		assert.Equal(t, "summary", m.Headers["table"])
	}
	require.Contains(t, stations, "4")
	assert.InDelta(t, 20.0, stations["4"].Values["Rainfall"], 1e-9)
	assert.Nil(t, stations["4"].Values["Temperature"])
	require.Contains(t, stations, "0")
	assert.InDelta(t, 21.5, stations["0"].Values["Temperature"], 1e-9)
	assert.InDelta(t, 0.4, stations["0"].Values["Pollution_level"], 1e-9)
}

// TestPipelineSourceFailure verifies nothing reaches the sink when a source
// is unreachable.
func TestPipelineSourceFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testFieldTopic)
	createTopic(t, broker, testSummaryTopic)

	cfg := &config.Config{
		KafkaBrokers:      []string{broker},
		KafkaFieldTopic:   testFieldTopic,
		KafkaSummaryTopic: testSummaryTopic,
	}
	metrics := observability.NewMetricsForTesting()
	writer := kafka.NewWriter(cfg, metrics, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	srv := csvServer(t)
	settings := pipelineSettings(t, surveyDB(t), srv.URL)
	settings.Weather.WeatherCSVPath = srv.URL + "/missing.csv"

	p, err := pipeline.New(settings, source.NewFetcher(10*time.Second, discardLogger()), writer, 1, discardLogger(), metrics)
	require.NoError(t, err)

	_, err = p.Run(ctx)
	require.ErrorIs(t, err, source.ErrConnection)
	require.Error(t, p.CheckReadiness(ctx))

	conn, err := kafkago.DialLeader(ctx, "tcp", broker, testFieldTopic, 0)
	require.NoError(t, err)
	defer conn.Close()
	last, err := conn.ReadLastOffset()
	require.NoError(t, err)
	assert.Equal(t, int64(0), last, "field topic stays empty")
}
