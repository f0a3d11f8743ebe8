package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/studiowebux/loadcli/internal/logging"
	"github.com/studiowebux/loadcli/internal/run"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(run.ExitConfigError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loadcli",
	Short: "loadcli - HTTP load testing tool",
	Long: `loadcli generates concurrent synthetic traffic against an HTTP endpoint
from a declarative scenario file, aggregates per-request metrics, evaluates
pass/fail thresholds, and emits a report.

A scenario declares virtual users, duration or iteration count, pacing,
the request to execute (inline or a .http file), checks, custom metrics,
thresholds, and output artifacts.

Examples:
  loadcli run scenario.yaml                      # Run a scenario
  loadcli run scenario.yaml --vus 50             # Override virtual users
  loadcli run scenario.yaml -o json=summary.json # Add a JSON artifact
  loadcli run scenario.yaml -e token=abc123      # Provide a variable

Exit codes: 0 all thresholds passed, 2 configuration error,
3 fatal run error, 4 thresholds failed.`,
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Execute a load test scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.New(flagLogLevel)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.SetGlobal(logger)
		defer logging.Sync()

		extraVars, err := parseVars(flagExtraVars)
		if err != nil {
			return err
		}

		opts := run.Options{
			ScenarioPath: args[0],
			VUs:          flagVUs,
			Duration:     flagDuration,
			Iterations:   flagIterations,
			Pacing:       flagPacing,
			Outputs:      flagOutputs,
			ExtraVars:    extraVars,
			EnvFile:      flagEnvFile,
		}

		// The first signal drains gracefully; unregistering the handler
		// right after lets a second signal kill the process.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			stop()
		}()

		code := run.New(opts).Execute(ctx)
		if code != run.ExitOK {
			os.Exit(code)
		}
		return nil
	},
}

// Flags for run command
var (
	flagVUs        int
	flagDuration   time.Duration
	flagIterations int64
	flagPacing     time.Duration
	flagOutputs    []string
	flagExtraVars  []string
	flagEnvFile    string
	flagLogLevel   string
)

func init() {
	runCmd.Flags().IntVarP(&flagVUs, "vus", "u", 0, "Override virtual user count")
	runCmd.Flags().DurationVarP(&flagDuration, "duration", "d", 0, "Override test duration")
	runCmd.Flags().Int64VarP(&flagIterations, "iterations", "i", 0, "Override iteration cap")
	runCmd.Flags().DurationVar(&flagPacing, "pacing", 0, "Override pacing delay between iterations")
	runCmd.Flags().StringArrayVarP(&flagOutputs, "out", "o", []string{}, "Output (text, json=path, sqlite=path, prometheus=addr), can be repeated")
	runCmd.Flags().StringArrayVarP(&flagExtraVars, "extra-vars", "e", []string{}, "Set variable (key=value), can be repeated")
	runCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "Load environment variables from file")
	runCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug/info/warn/error)")

	rootCmd.AddCommand(runCmd)
}

func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q (expected key=value)", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
