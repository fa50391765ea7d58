package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Jalkey-Chen/InterLines/internal/config"
	"github.com/Jalkey-Chen/InterLines/internal/observability"
)

var (
	flagConfigFile string
	flagHomeDir    string
	flagLogLevel   string
	flagLogFormat  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "interlines",
	Short: "InterLines - plain-language document translation engine",
	Long: `InterLines turns dense institutional documents into layered
plain-language explanations: parsed blocks, explanation cards, an
optional timeline, a narrative, and a public brief.

Every run is recorded to an append-only trace that can be replayed
deterministically without invoking any capability.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig is called before any command runs to load configuration.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	homeDir := flagHomeDir
	if homeDir == "" {
		homeDir = os.Getenv("INTERLINES_HOME")
	}
	if homeDir == "" {
		homeDir = config.DefaultHomeDir()
	}

	configFile := flagConfigFile
	if configFile == "" {
		configFile = config.DefaultConfigPath(homeDir)
	}

	config.LoadDotenv()

	loader := config.NewLoader(config.NewValidator())
	loaded, err := loader.LoadWithDefaults(configFile)
	if err != nil {
		return err
	}
	if flagHomeDir != "" {
		loaded.Core.HomeDir = flagHomeDir
	}
	if flagLogLevel != "" {
		loaded.Logging.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		loaded.Logging.Format = flagLogFormat
	}
	cfg = loaded

	logger := observability.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	cmd.SetContext(withLogger(cmd.Context(), logger))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagHomeDir, "home", "", "Home directory (default ~/.interlines)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: json, text")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)
}
