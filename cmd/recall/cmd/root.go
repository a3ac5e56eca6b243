// Package cmd provides the CLI commands for recall.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/keepmark/recall/internal/config"
	"github.com/keepmark/recall/internal/logging"
	"github.com/keepmark/recall/internal/recallerr"
	"github.com/keepmark/recall/pkg/recall"
	"github.com/keepmark/recall/pkg/version"
)

// Persistent flags, bound in NewRootCmd.
var (
	configPath     string
	dataDir        string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the recall CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Semantic search over your saved bookmarks and notes",
		Long: `Recall indexes your bookmarks and notes into a local vector store
and answers natural-language questions about them, with citations back
to the saved sources.

Content is chunked and embedded locally via Ollama by default; the
hosted Gemini backend is available with an API key.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("recall version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default <data-dir>/recall.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.recall)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newRetryCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI with signal-aware cancellation. Interrupts cancel
// in-flight work; indexing commits what is already complete.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, recallerr.FormatForCLI(err))
	}
	return err
}

// setupLogging loads .env overrides and installs the process logger.
func setupLogging(*cobra.Command, []string) error {
	// A missing .env file is fine.
	_ = godotenv.Load()

	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Fall back to stderr-only rather than refusing to run.
		logCfg.FilePath = ""
		logger, cleanup, err = logging.Setup(logCfg)
		if err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// loadConfig resolves configuration with CLI flag overrides applied.
func loadConfig() (*config.Config, error) {
	if dataDir != "" {
		os.Setenv("RECALL_DATA_DIR", dataDir)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// openEngine builds the engine for a command invocation.
func openEngine(ctx context.Context) (*recall.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	engine, err := recall.New(ctx, cfg, recall.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, err
	}
	return engine, cfg, nil
}
