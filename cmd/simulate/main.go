// Command simulate runs YAML staking scenarios against an in-memory chain
// and prints a step-by-step report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"fsp-staking/internal/logger"
	"fsp-staking/internal/observability"
	"fsp-staking/internal/scenario"
)

func main() {
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "console", "Log format (console, json)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] scenario.yaml [scenario.yaml...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger.Initialize(*logLevel, *logFormat)
	runner := scenario.NewRunner(logger.Logger, observability.NewMetrics("simulate", prometheus.NewRegistry()))
	ctx := context.Background()

	failed := 0
	for i, path := range flag.Args() {
		if i > 0 {
			fmt.Println()
		}
		if err := runFile(ctx, runner, path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d scenarios failed\n", failed, flag.NArg())
		os.Exit(1)
	}
}

func runFile(ctx context.Context, runner *scenario.Runner, path string) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	report, runErr := runner.Run(ctx, sc)
	if report != nil {
		if err := report.Write(os.Stdout); err != nil {
			return err
		}
	}
	return runErr
}
