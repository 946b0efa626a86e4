// Package config loads sdb's configuration: an optional .sdb.yaml file in
// the user's home directory or working directory, overridable by
// environment variables and command-line flags. Grounded in the pack's
// viper+yaml.v3 configuration-layering pattern, since the teacher (a 2015
// single-binary debugger) has no config file of its own to generalize.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is sdb's resolved configuration.
type Config struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `mapstructure:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"log_format"`
	// HistorySize is the configured size of the REPL's command history. It is
	// loaded but not read: session.History is unbounded and the REPL's
	// readline history limit is fixed at 1000 entries.
	HistorySize int `mapstructure:"history_size"`
	// StopAtEntry is the configured stop-at-entry behavior. It is loaded but
	// not read: session.Start always continues to main's post-prologue
	// statement.
	StopAtEntry bool `mapstructure:"stop_at_entry"`
}

func defaults() Config {
	return Config{
		LogLevel:    "info",
		LogFormat:   "text",
		HistorySize: 1000,
		StopAtEntry: true,
	}
}

// Load resolves configuration from, in increasing precedence: built-in
// defaults, a .sdb.yaml file (working directory, then $HOME), environment
// variables prefixed SDB_, and flags already bound into fs.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()

	d := defaults()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("history_size", d.HistorySize)
	v.SetDefault("stop_at_entry", d.StopAtEntry)

	v.SetConfigName(".sdb")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("sdb")
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
