// Package cmd provides the CLI commands for logsift.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/logsift/logsift/internal/config"
	"github.com/logsift/logsift/internal/logging"
	"github.com/logsift/logsift/internal/profiling"
	"github.com/logsift/logsift/pkg/version"
)

// Root flags shared by the run commands.
var (
	configPath      string
	reportPath      string
	modelPath       string
	saveModelPath   string
	jsonOutput      bool
	flagThreshold   float32
	flagBeforeCtx   int
	flagAfterCtx    int
	flagCtxDistance int
	flagTarDepth    int
	flagWorkers     int
)

// Profiling and logging flags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()

	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the logsift CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logsift",
		Short: "Extract anomalous lines from log files",
		Long: `Logsift compares a target log against nominal baselines and reports
the lines whose tokenized shape is unlike anything in the baseline.

Baselines are discovered automatically (rotated siblings, prior successful
CI builds) or given explicitly with the diff command.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("logsift version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration")
	pf.StringVar(&reportPath, "report", "", "Write the binary report to this path")
	pf.StringVar(&modelPath, "model", "", "Reuse a trained model instead of training")
	pf.StringVar(&saveModelPath, "save-model", "", "Persist the trained model to this path")
	pf.BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	pf.Float32Var(&flagThreshold, "threshold", 0, "Anomaly distance threshold (default 0.3)")
	pf.IntVar(&flagBeforeCtx, "before-context", 0, "Lines of context before an anomaly (default 3)")
	pf.IntVar(&flagAfterCtx, "after-context", 0, "Lines of context after an anomaly (default 1)")
	pf.IntVar(&flagCtxDistance, "context-distance", 0, "Maximum gap between merged anomalies (default 5)")
	pf.IntVar(&flagTarDepth, "max-tar-depth", 0, "Nested tarball traversal depth (default 2)")
	pf.IntVar(&flagWorkers, "workers", 0, "Worker pool size (default: CPU count)")

	pf.StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	pf.StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")
	pf.BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newPathCmd())
	cmd.AddCommand(newURLCmd())
	cmd.AddCommand(newDiffCmd())
	cmd.AddCommand(newJournalCmd())
	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newCheckModelCmd())
	cmd.AddCommand(newReadCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig builds the effective configuration from file, environment, and
// flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.FromEnv()
	if flagThreshold > 0 {
		cfg.Threshold = flagThreshold
	}
	if flagBeforeCtx > 0 {
		cfg.BeforeContext = flagBeforeCtx
	}
	if flagAfterCtx > 0 {
		cfg.AfterContext = flagAfterCtx
	}
	if flagCtxDistance > 0 {
		cfg.ContextDistance = flagCtxDistance
	}
	if flagTarDepth > 0 {
		cfg.MaxTarDepth = flagTarDepth
	}
	if flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	return cfg, nil
}

func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	if debugMode {
		loggingCleanup, err = logging.SetupDefault()
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}
	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}
	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
