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
	"context"
	"fmt"

	"github.com/jacobsa/fuse"

	"github.com/cortexfs/cortexfs/clock"
	"github.com/cortexfs/cortexfs/internal/cfg"
	"github.com/cortexfs/cortexfs/internal/embed"
	"github.com/cortexfs/cortexfs/internal/face"
	"github.com/cortexfs/cortexfs/internal/librarian"
	"github.com/cortexfs/cortexfs/internal/logger"
	"github.com/cortexfs/cortexfs/internal/oracle"
	"github.com/cortexfs/cortexfs/internal/perms"
	"github.com/cortexfs/cortexfs/internal/state"
	"github.com/cortexfs/cortexfs/internal/store"
)

// runMount wires the Store, the embedding Actor, the shared State, the
// Oracle's dispatcher loop, the Librarian's filesystem watch, and the
// Face's FUSE server together, then blocks until the mount is unmounted
// or the process context is canceled.
func runMount(ctx context.Context, c *cfg.Config) error {
	logger.SetLoggingLevel(c.Logging.Severity)
	logger.SetLogFormat(c.Logging.Format)
	if c.Logging.FilePath != "" {
		if err := logger.InitLogFile(c.Logging.FilePath, 100, 5, false); err != nil {
			return fmt.Errorf("initializing log file: %w", err)
		}
	}

	logger.Infof("opening index store at %s", c.DBPath)
	db, err := store.Open(c.DBPath, c.EmbeddingDim)
	if err != nil {
		return fmt.Errorf("opening index store: %w", err)
	}
	defer db.Close()

	// No embedding runtime is wired into this build's dependency set, so
	// the dedicated-thread actor serves a deterministic hash-based model.
	// Swap newModel for a real one once an inference runtime is vendored.
	actor, err := embed.NewActor(ctx, func() (embed.Model, error) {
		return embed.NewFakeModel(c.EmbeddingDim), nil
	}, c.EmbeddingQueueDepth)
	if err != nil {
		return fmt.Errorf("starting embedding actor: %w", err)
	}

	st := state.New(clock.RealClock{})

	lib, err := librarian.New(c.WatchDir, st)
	if err != nil {
		return fmt.Errorf("constructing librarian: %w", err)
	}
	lib.SetDebounceWindow(c.DebounceWindow)
	if err := lib.Start(); err != nil {
		return fmt.Errorf("starting librarian: %w", err)
	}
	defer lib.Stop()

	orc := oracle.New(st, db, actor, oracle.WithTick(c.DispatcherTick))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := orc.Run(runCtx); err != nil && err != context.Canceled {
			logger.Errorf("oracle dispatcher exited: %v", err)
		}
	}()

	sweeperDone := make(chan struct{})
	go st.RunSweeper(sweeperDone, c.QueryTTL, c.DispatcherTick)
	defer close(sweeperDone)

	uid, gid, err := perms.MountIdentity()
	if err != nil {
		return fmt.Errorf("resolving mount identity: %w", err)
	}

	fs := face.New(st, uid, gid)
	server := face.Server(fs)

	mountCfg := getFuseMountConfig()

	logger.Infof("mounting %s (watching %s)", c.Mountpoint, c.WatchDir)
	mfs, err := fuse.Mount(c.Mountpoint, server, mountCfg)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	if err := mfs.Join(runCtx); err != nil {
		return fmt.Errorf("serving file system: %w", err)
	}

	logger.Infof("unmounted %s", c.Mountpoint)
	return nil
}

func getFuseMountConfig() *fuse.MountConfig {
	return &fuse.MountConfig{
		FSName:     "cortexfs",
		Subtype:    "cortexfs",
		VolumeName: "cortexfs",
		// The Face only ever serves one inode per path and never mutates the
		// tree out from under a lookup, so parallel dir ops are safe.
		EnableParallelDirOps: true,
	}
}
