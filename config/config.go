// Package config loads scratchpad settings from defaults, an optional YAML
// file, SCRATCHPAD_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "scratchpad"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SCRATCHPAD"
)

// Config is the full configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Serve     ServeConfig     `mapstructure:"serve"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ModuleConfig locates one interpreter module.
type ModuleConfig struct {
	Path string `mapstructure:"path"`
	URL  string `mapstructure:"url"`
}

// RuntimeConfig configures the interpreters and their executor.
type RuntimeConfig struct {
	Python ModuleConfig `mapstructure:"python"`
	// JavaScript overrides the embedded QuickJS module when Path or URL is
	// set.
	JavaScript ModuleConfig  `mapstructure:"javascript"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// Memory is a size such as "256mb"; see executor.ParseMemoryLimit.
	Memory string `mapstructure:"memory"`
	Cache  bool   `mapstructure:"cache"`
	// Preload starts loading the Python runtime at startup instead of on
	// first use.
	Preload  bool   `mapstructure:"preload"`
	Packages string `mapstructure:"packages"`
}

// ServeConfig configures the HTTP API.
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// WorkspaceConfig selects the artifacts opened at startup.
type WorkspaceConfig struct {
	// Dir is loaded as the workspace when set.
	Dir string `mapstructure:"dir"`
	// Manifest is a YAML workspace manifest; it wins over Dir.
	Manifest string `mapstructure:"manifest"`
}

// Dir returns $XDG_CONFIG_HOME/scratchpad, or ~/.config/scratchpad.
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", AppName)
	}
	return ""
}

// ModuleDir returns the default directory for downloaded interpreter
// modules.
func ModuleDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName, "modules")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", AppName, "modules")
	}
	return filepath.Join(os.TempDir(), AppName, "modules")
}

// PackageDir returns the default directory for installed Python packages.
func PackageDir() string {
	return filepath.Join(filepath.Dir(ModuleDir()), "packages")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Runtime: RuntimeConfig{
			Python:  ModuleConfig{Path: filepath.Join(ModuleDir(), "python.wasm")},
			Timeout: 30 * time.Second,
			Memory:  "256mb",
			Cache:   true,
		},
		Serve: ServeConfig{Addr: "127.0.0.1:8080"},
	}
}

// flagKeys maps command-line flags to config keys. Flags a command does not
// define are skipped.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"timeout":    "runtime.timeout",
	"memory":     "runtime.memory",
	"preload":    "runtime.preload",
	"packages":   "runtime.packages",
	"python":     "runtime.python.path",
	"js":         "runtime.javascript.path",
	"python-url": "runtime.python.url",
	"js-url":     "runtime.javascript.url",
	"addr":       "serve.addr",
	"workspace":  "workspace.dir",
	"manifest":   "workspace.manifest",
}

// Load reads configuration. An explicit file must exist; otherwise
// scratchpad.yaml is looked up in the working directory and then in Dir.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("runtime.python.path", d.Runtime.Python.Path)
	v.SetDefault("runtime.python.url", d.Runtime.Python.URL)
	v.SetDefault("runtime.javascript.path", d.Runtime.JavaScript.Path)
	v.SetDefault("runtime.javascript.url", d.Runtime.JavaScript.URL)
	v.SetDefault("runtime.timeout", d.Runtime.Timeout)
	v.SetDefault("runtime.memory", d.Runtime.Memory)
	v.SetDefault("runtime.cache", d.Runtime.Cache)
	v.SetDefault("runtime.preload", d.Runtime.Preload)
	v.SetDefault("runtime.packages", d.Runtime.Packages)
	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("workspace.dir", d.Workspace.Dir)
	v.SetDefault("workspace.manifest", d.Workspace.Manifest)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := Dir(); dir != "" {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
		if f := flags.Lookup("no-cache"); f != nil && f.Changed {
			v.Set("runtime.cache", false)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	// A JavaScript URL without a path still needs somewhere to download to.
	if js := &cfg.Runtime.JavaScript; js.URL != "" && js.Path == "" {
		js.Path = filepath.Join(ModuleDir(), "qjs.wasm")
	}

	if cfg.Runtime.Timeout < 0 {
		return nil, fmt.Errorf("runtime.timeout must not be negative, got %v", cfg.Runtime.Timeout)
	}

	return &cfg, nil
}
