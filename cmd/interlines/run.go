package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Jalkey-Chen/InterLines/internal/capability"
	"github.com/Jalkey-Chen/InterLines/internal/observability"
	"github.com/Jalkey-Chen/InterLines/internal/run"
	"github.com/Jalkey-Chen/InterLines/internal/types"
)

var (
	flagWorkers     int
	flagMaxReplans  int
	flagNoTrace     bool
	flagSnapshotDir string
)

var runCmd = &cobra.Command{
	Use:   "run <document>...",
	Short: "Run documents through the translation pipeline",
	Long: `Run reads each document, plans a task graph from its profile, executes
the graph, and writes a trace. Multiple documents run concurrently.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&flagWorkers, "workers", 0, "Concurrent node limit per run (0 = config default)")
	runCmd.Flags().IntVar(&flagMaxReplans, "max-replans", -1, "Replan budget per run (-1 = config default)")
	runCmd.Flags().BoolVar(&flagNoTrace, "no-trace", false, "Disable trace recording")
	runCmd.Flags().StringVar(&flagSnapshotDir, "snapshot-dir", "", "Write a YAML snapshot per run into this directory")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := loggerFrom(ctx)

	provider, err := observability.InitTracing(ctx, cfg.Tracing.Enabled, cfg.Tracing.Endpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := observability.ShutdownTracing(cmd.Context(), provider); err != nil {
			logger.Warn("span export incomplete", "error", err)
		}
	}()

	registry := capability.NewRegistry()
	if err := capability.RegisterBuiltins(registry); err != nil {
		return err
	}

	workers := cfg.Engine.MaxWorkers
	if flagWorkers > 0 {
		workers = flagWorkers
	}
	maxReplans := cfg.Engine.MaxReplans
	if flagMaxReplans >= 0 {
		maxReplans = flagMaxReplans
	}
	traceDir := ""
	if cfg.Trace.Enabled && !flagNoTrace {
		traceDir = cfg.Trace.Dir
	}

	runner := run.NewRunner(registry,
		run.WithLogger(logger),
		run.WithTracer(provider.Tracer("interlines")),
		run.WithMaxWorkers(workers),
		run.WithMaxReplans(maxReplans),
		run.WithNodeTimeout(cfg.Engine.NodeTimeout),
		run.WithRetryPolicy(cfg.Retry.Policy()),
		run.WithTraceDir(traceDir),
	)

	g, ctx := errgroup.WithContext(ctx)
	results := make([]*run.Result, len(args))

	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			document, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read document %s: %w", path, err)
			}

			result, err := runner.Execute(ctx, document)
			if err != nil {
				return fmt.Errorf("run for %s: %w", path, err)
			}
			results[i] = result

			if flagSnapshotDir != "" {
				if err := os.MkdirAll(flagSnapshotDir, 0o755); err != nil {
					return err
				}
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				snapPath := filepath.Join(flagSnapshotDir, name+".yaml")
				if err := result.WriteSnapshot(snapPath); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err = g.Wait()
	for i, result := range results {
		if result == nil {
			continue
		}
		printResult(cmd, args[i], result)
	}
	return err
}

func printResult(cmd *cobra.Command, path string, result *run.Result) {
	statusColor := color.New(color.FgRed)
	switch result.Status {
	case types.RunStatusSucceeded:
		statusColor = color.New(color.FgGreen)
	case types.RunStatusPartialSuccess:
		statusColor = color.New(color.FgYellow)
	case types.RunStatusCancelled:
		statusColor = color.New(color.FgYellow)
	}

	cmd.Printf("%s: %s  run=%s replans=%d duration=%s\n",
		path,
		statusColor.Sprint(result.Status),
		result.RunID,
		result.Replans,
		result.Duration.Round(time.Millisecond),
	)
	if result.TracePath != "" {
		cmd.Printf("  trace: %s\n", result.TracePath)
	}
	if brief := result.Brief(); brief != nil {
		cmd.Printf("  brief: %s/%s rev %d\n", brief.Kind, brief.Key, brief.Revision)
	}
}
