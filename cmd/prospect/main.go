package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"prospectpipe/internal/config"
	"prospectpipe/internal/logging"
)

var (
	// Global flags
	verbose   bool
	cfgPath   string
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// Shared terminal styles.
var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "prospect",
	Short: "prospect - Apollo.io contact extraction pipeline",
	Long: `prospect drives Apollo.io people search with an LLM browser agent,
captures the filtered search URL, and hands it to an Apify actor to
extract contacts at scale.

A typical run:
  prospect run --domains companies.csv --category c_suite`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
		}
		if err := logging.Initialize(workspace); err != nil {
			return fmt.Errorf("failed to initialize file logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig reads the workspace config with env overrides applied.
func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = filepath.Join(workspace, ".prospect", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// outputDir resolves the configured output directory against the workspace.
func outputDir(cfg *config.Config) string {
	if filepath.IsAbs(cfg.Output.Dir) {
		return cfg.Output.Dir
	}
	return filepath.Join(workspace, cfg.Output.Dir)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default .prospect/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "workspace directory (default cwd)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "overall command timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(bypassCmd)
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("error: ")+err.Error())
		os.Exit(1)
	}
}
