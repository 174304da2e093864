// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cfg holds the mount daemon's configuration surface and its
// cobra/viper flag bindings.
package cfg

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is populated by viper from flags and an optional config file;
// flags win over the file, per cobra/viper convention. Environment
// variables are not bound.
type Config struct {
	Mountpoint string `mapstructure:"mountpoint" yaml:"mountpoint"`
	WatchDir   string `mapstructure:"watch-dir" yaml:"watch-dir"`

	DBPath string `mapstructure:"db-path" yaml:"db-path"`

	EmbeddingDim        int `mapstructure:"embedding-dim" yaml:"embedding-dim"`
	EmbeddingQueueDepth int `mapstructure:"embedding-queue-depth" yaml:"embedding-queue-depth"`

	QueryTTL       time.Duration `mapstructure:"query-ttl" yaml:"query-ttl"`
	DebounceWindow time.Duration `mapstructure:"debounce-window" yaml:"debounce-window"`
	DispatcherTick time.Duration `mapstructure:"dispatcher-tick" yaml:"dispatcher-tick"`

	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

type LoggingConfig struct {
	Severity string `mapstructure:"severity" yaml:"severity"`
	Format   string `mapstructure:"format" yaml:"format"`
	FilePath string `mapstructure:"file-path" yaml:"file-path"`
}

// Default returns the configuration a bare invocation runs with: the
// watch-dir defaults to the current working directory by the CLI layer, not
// here, per spec §6.
func Default() Config {
	return Config{
		DBPath:              defaultDBPath(),
		EmbeddingDim:        768,
		EmbeddingQueueDepth: 100,
		QueryTTL:            10 * time.Minute,
		DebounceWindow:      500 * time.Millisecond,
		DispatcherTick:      100 * time.Millisecond,
		Logging: LoggingConfig{
			Severity: "info",
			Format:   "text",
		},
	}
}

// BindFlags registers the CLI surface and binds every flag into viper under
// the same key Config's mapstructure tags expect.
func BindFlags(flagSet *pflag.FlagSet) error {
	d := Default()

	flagSet.String("db-path", d.DBPath, "Path to the index database file.")
	if err := viper.BindPFlag("db-path", flagSet.Lookup("db-path")); err != nil {
		return err
	}

	flagSet.Int("embedding-dim", d.EmbeddingDim, "Dimension of the embedding model's output vectors.")
	if err := viper.BindPFlag("embedding-dim", flagSet.Lookup("embedding-dim")); err != nil {
		return err
	}

	flagSet.Int("embedding-queue-depth", d.EmbeddingQueueDepth, "Bound on the embedding service's request channel.")
	if err := viper.BindPFlag("embedding-queue-depth", flagSet.Lookup("embedding-queue-depth")); err != nil {
		return err
	}

	flagSet.Duration("query-ttl", d.QueryTTL, "How long an unread QueryBinding survives before the sweeper prunes it.")
	if err := viper.BindPFlag("query-ttl", flagSet.Lookup("query-ttl")); err != nil {
		return err
	}

	flagSet.Duration("debounce-window", d.DebounceWindow, "Quiescent interval collapsing a burst of filesystem events per path into one.")
	if err := viper.BindPFlag("debounce-window", flagSet.Lookup("debounce-window")); err != nil {
		return err
	}

	flagSet.Duration("dispatcher-tick", d.DispatcherTick, "Oracle dispatcher poll interval.")
	if err := viper.BindPFlag("dispatcher-tick", flagSet.Lookup("dispatcher-tick")); err != nil {
		return err
	}

	flagSet.String("log-severity", d.Logging.Severity, "Minimum log severity: trace, debug, info, warning, error, off.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.String("log-format", d.Logging.Format, "Log wire format: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.String("log-file", d.Logging.FilePath, "Optional path to a rotating log file; empty logs to stderr.")
	return viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))
}

func defaultDBPath() string {
	dir, err := userStateDir()
	if err != nil {
		return "cortexfs.db"
	}
	return dir + "/index.db"
}
