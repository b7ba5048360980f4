package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/scratchpad/config"
	"github.com/caffeineduck/scratchpad/language"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [python|javascript...]",
	Short: "Download interpreter modules",
	Long: `Download the WebAssembly interpreter modules to their configured paths.

Each module is fetched from runtime.<name>.url (or --python-url / --js-url)
into runtime.<name>.path. Modules that already exist are left alone.
Without arguments both modules are fetched.`,
	ValidArgs: []string{"python", "javascript", "js"},
	Args:      cobra.OnlyValidArgs,
	RunE:      runFetch,
}

func init() {
	fetchCmd.Flags().String("python-url", "", "Download URL for the Python module")
	fetchCmd.Flags().String("js-url", "", "Download URL for the QuickJS module")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{"python", "javascript"}
	}

	var errs []error
	for _, name := range args {
		var mod config.ModuleConfig
		switch name {
		case "python":
			mod = cfg.Runtime.Python
		case "javascript", "js":
			name = "javascript"
			mod = cfg.Runtime.JavaScript
		}

		if name == "javascript" && mod.Path == "" && mod.URL == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: embedded\n", name)
			continue
		}

		src := language.Source{Path: mod.Path, URL: mod.URL}
		if err := src.Fetch(cmd.Context()); err != nil {
			if errors.Is(err, language.ErrNotConfigured) {
				err = fmt.Errorf("%s: no URL configured (set runtime.%s.url)", name, name)
			}
			logger.Error("fetch failed", "module", name, "err", err)
			errs = append(errs, err)
			continue
		}
		logger.Info("module ready", "module", name, "path", mod.Path)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, mod.Path)
	}
	return errors.Join(errs...)
}
