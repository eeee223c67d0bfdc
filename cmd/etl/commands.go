package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/field-survey-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/field-survey-etl/internal/config"
	"github.com/couchcryptid/field-survey-etl/internal/domain"
	"github.com/couchcryptid/field-survey-etl/internal/source"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/cobra"
)

func newRunCmd(pipelinePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*pipelinePath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := a.pipeline.Run(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "run\t%s\n", res.RunID)
			fmt.Fprintf(w, "field records\t%d\n", res.Stats.FieldRows)
			fmt.Fprintf(w, "unmapped fields\t%d\n", res.Stats.UnmappedFields)
			fmt.Fprintf(w, "messages\t%d (%d unmatched)\n", res.Stats.Messages, res.Stats.Unmatched)
			fmt.Fprintf(w, "stations\t%d\n", res.Stats.Stations)
			if len(res.Stats.UnknownCrops) > 0 {
				fmt.Fprintf(w, "unknown crops\t%s\n", strings.Join(res.Stats.UnknownCrops, ", "))
			}
			return w.Flush()
		},
	}
}

func newServeCmd(pipelinePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on RUN_INTERVAL and serve health, readiness, status and metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*pipelinePath)
			if err != nil {
				return err
			}
			defer a.close()
			logger := a.logger

			srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.pipeline, a.pipeline, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Start HTTP server.
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", "error", err)
				}
			}()

			// Start scheduled runs.
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := a.pipeline.Serve(ctx, a.cfg.RunInterval); err != nil {
					logger.Error("pipeline error", "error", err)
				}
			}()

			<-ctx.Done()
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
			select {
			case <-done:
			case <-shutdownCtx.Done():
				logger.Warn("pipeline run did not stop before the shutdown timeout")
			}

			logger.Info("shutdown complete")
			return nil
		},
	}
}

func newExtractCmd(pipelinePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [message...]",
		Short: "Print the measurement the configured patterns extract from each message.",
		Long: `extract applies the weather.regex_patterns of the pipeline config to each
argument, or to each line of standard input when no arguments are given, and
prints the message with its outcome.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadPipeline(resolvePipelinePath(*pipelinePath))
			if err != nil {
				return err
			}
			patterns, err := settings.Weather.Patterns()
			if err != nil {
				return err
			}

			messages := args
			if len(messages) == 0 {
				if messages, err = readLines(cmd.InOrStdin()); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, msg := range messages {
				fmt.Fprintf(w, "%s\t%s\n", domain.ExtractMeasurement(msg, patterns), msg)
			}
			return w.Flush()
		},
	}
}

func newCheckCmd(pipelinePath *string) *cobra.Command {
	var probe bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the pipeline config and optionally probe its sources.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolvePipelinePath(*pipelinePath)
			settings, err := config.LoadPipeline(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			a, b, _ := settings.Field.SwapPair()
			fmt.Fprintf(out, "%s: ok\n", path)
			fmt.Fprintf(out, "  swap %s <-> %s, %d value corrections, %d patterns\n",
				a, b, len(settings.Field.ValuesToRename), len(settings.Weather.RegexPatterns))
			if !probe {
				return nil
			}

			fetcher := source.NewFetcher(timeout, discardLogger())
			sources := []source.Descriptor{
				source.Query{Target: settings.Field.DBPath, SQL: settings.Field.SQLQuery},
				source.CSV{URL: settings.Field.WeatherMappingCSV},
				source.CSV{URL: settings.Weather.WeatherCSVPath},
			}
			var failed []error
			for _, d := range sources {
				t, err := fetcher.Fetch(cmd.Context(), d)
				if err != nil {
					fmt.Fprintf(out, "  FAIL %s: %v\n", d, err)
					failed = append(failed, err)
					continue
				}
				fmt.Fprintf(out, "  PASS %s: %d rows, %d columns\n", d, t.Len(), len(t.Columns()))
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d sources failed: %w", len(failed), len(sources), errors.Join(failed...))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "fetch every source and report its size")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "HTTP timeout for --probe")
	return cmd
}

func resolvePipelinePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return sharedcfg.EnvOrDefault("PIPELINE_CONFIG", "pipeline.yml")
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
