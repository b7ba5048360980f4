package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/scratchpad/config"
	"github.com/caffeineduck/scratchpad/studio"
)

var rootCmd = &cobra.Command{
	Use:   "scratchpad",
	Short: "Browser-free scratchpad for HTML, CSS, JavaScript and Python",
	Long: `scratchpad - an editor-less web IDE core.

Files live in a workspace of open artifacts. Markup, style and script are
composed into a sandboxed preview document; JavaScript runs in a fresh
WebAssembly instance per run; Python runs in one long-lived WebAssembly
interpreter whose globals persist between runs. Terminal sessions drive
all of it with shell-like commands.

Configuration is read from scratchpad.yaml (working directory or
$XDG_CONFIG_HOME/scratchpad), SCRATCHPAD_* environment variables and flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default: ./scratchpad.yaml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.Bool("no-cache", false, "Disable compilation cache")
	pf.String("python", "", "Path to the Python interpreter module")
	pf.String("js", "", "Path to the QuickJS interpreter module")
	pf.Duration("timeout", 0, "Execution timeout (default from config: 30s)")
	pf.String("memory", "", "Memory limit: 1mb, 16mb, 64mb, 256mb, 1gb")
	pf.String("packages", "", "Python packages directory mounted read-only")
	pf.String("workspace", "", "Directory loaded as the workspace")
	pf.String("manifest", "", "YAML workspace manifest (wins over --workspace)")
}

// loadConfig reads configuration with this command's flags applied.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	return config.Load(file, cmd.Flags())
}

// newLogger returns the command logger, writing to the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*log.Logger, error) {
	return studio.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level)
}

// openStudio loads configuration and wires a studio for cmd.
func openStudio(ctx context.Context, cmd *cobra.Command, opts ...studio.Option) (*studio.Studio, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		logger.Debug("config loaded", "file", cfg.File)
	}

	opts = append([]studio.Option{studio.WithLogger(logger)}, opts...)
	st, err := studio.New(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("start studio: %w", err)
	}
	return st, nil
}
