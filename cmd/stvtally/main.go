// Command stvtally counts every question of an election file with the
// Single Transferable Vote, Hare-Clark method and prints the results as JSON.
//
// Usage:
//
//	stvtally -config election.yaml [-output results.json] [-metrics metrics.prom]
//
// Logging is configured with GOTALLY_LOG_LEVEL and GOTALLY_LOG_FORMAT_JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ahrav/go-tally/infrastructure/middleware"
	"github.com/ahrav/go-tally/internal/application"
	"github.com/ahrav/go-tally/internal/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Election YAML file (required)")
		outputPath  = flag.String("output", "", "Write results to this file instead of stdout")
		metricsPath = flag.String("metrics", "", "Write Prometheus text-format metrics to this file")
	)
	flag.Parse()

	log := logger.NewLogger()
	if *configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, log, *configPath, *outputPath, *metricsPath); err != nil {
		log.Error().Err(err).Str("config", *configPath).Msg("tally failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *zerolog.Logger, configPath, outputPath, metricsPath string) error {
	loader, err := application.NewElectionLoader()
	if err != nil {
		return err
	}
	election, err := loader.LoadFromFile(configPath)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	service, err := application.NewTallyService(
		application.NewDefaultUnitRegistry(),
		election.Tally,
		application.WithMetrics(middleware.NewPrometheusMetrics(registry)),
		application.WithLogger(*log),
	)
	if err != nil {
		return err
	}
	log.Info().Str("election", election.Election.ID).Int("questions", len(election.Questions)).Msg("election loaded")

	result, err := service.TallyElection(ctx, election)
	if err != nil {
		return err
	}

	if err := writeResults(outputPath, result); err != nil {
		return err
	}

	if metricsPath != "" {
		if err := prometheus.WriteToTextfile(metricsPath, registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

// writeResults encodes result as indented JSON to path, or to stdout when
// path is empty. A failed close is reported since it may lose the output.
func writeResults(path string, result any) error {
	if path == "" {
		return encodeResults(os.Stdout, result)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := encodeResults(f, result); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}

func encodeResults(w io.Writer, result any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}
