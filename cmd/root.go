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

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cortexfs/cortexfs/internal/cfg"
)

var (
	cfgFile      string
	bindErr      error
	unmarshalErr error
	MountConfig  cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "cortexfs [flags] mountpoint [watch-dir]",
	Short: "Mount a semantic-search view over a directory tree",
	Long: `cortexfs is a FUSE adapter that projects a directory tree as a
virtual filesystem of natural-language search queries: reading a path
under /search/<phrase>/ returns the files in watch-dir whose content is
closest to <phrase>, ranked by embedding similarity.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}

		mountPoint, watchDir, err := populateArgs(args)
		if err != nil {
			return err
		}
		MountConfig.Mountpoint = mountPoint
		MountConfig.WatchDir = watchDir

		if err := validateConfig(&MountConfig); err != nil {
			return err
		}

		return runMount(cmd.Context(), &MountConfig)
	},
}

// populateArgs resolves the positional mountpoint and optional watch-dir
// arguments to absolute paths. watch-dir defaults to the current working
// directory when omitted.
func populateArgs(args []string) (mountPoint, watchDir string, err error) {
	mountPoint, err = filepath.Abs(args[0])
	if err != nil {
		return "", "", fmt.Errorf("canonicalizing mount point: %w", err)
	}

	if len(args) == 2 {
		watchDir, err = filepath.Abs(args[1])
		if err != nil {
			return "", "", fmt.Errorf("canonicalizing watch directory: %w", err)
		}
		return mountPoint, watchDir, nil
	}

	watchDir, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("resolving current directory: %w", err)
	}
	return mountPoint, watchDir, nil
}

func validateConfig(c *cfg.Config) error {
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding-dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.EmbeddingQueueDepth <= 0 {
		return fmt.Errorf("embedding-queue-depth must be positive, got %d", c.EmbeddingQueueDepth)
	}
	if info, err := os.Stat(c.WatchDir); err != nil || !info.IsDir() {
		return fmt.Errorf("watch directory %q is not a directory", c.WatchDir)
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to an optional YAML config file")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig)
		return
	}

	resolved, err := filepath.Abs(cfgFile)
	if err != nil {
		unmarshalErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		unmarshalErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig)
}
