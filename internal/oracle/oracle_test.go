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

package oracle_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortexfs/cortexfs/clock"
	"github.com/cortexfs/cortexfs/internal/embed"
	"github.com/cortexfs/cortexfs/internal/oracle"
	"github.com/cortexfs/cortexfs/internal/state"
	"github.com/cortexfs/cortexfs/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestOracle(t *testing.T) (*oracle.Oracle, *state.State, *store.Store) {
	t.Helper()

	ctx := context.Background()
	actor, err := embed.NewActor(ctx, func() (embed.Model, error) {
		return embed.NewFakeModel(4), nil
	}, 4)
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(t.TempDir(), "index.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := state.New(clock.RealClock{})
	o := oracle.New(st, db, actor)
	return o, st, db
}

func TestIndexFileThenSearchFindsIt(t *testing.T) {
	o, st, db := newTestOracle(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("a document about brown foxes"), 0o644))

	st.EnqueueEvent(state.PendingEvent{Path: path, Kind: state.EventIndex})
	o.RunOnce(ctx)

	rec, err := db.GetFileByPath(path)
	require.NoError(t, err)
	require.Greater(t, rec.FileID, int64(0))

	inode, created := st.GetOrCreateBinding("brown foxes")
	require.True(t, created)
	o.RunOnce(ctx)

	results, ok := st.GetResults(inode)
	require.True(t, ok)
	require.NotEmpty(t, results)
	require.Equal(t, path, results[0].AbsPath)
}

func TestDeleteEventRemovesFileRecord(t *testing.T) {
	o, st, db := newTestOracle(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "temp.txt")
	require.NoError(t, os.WriteFile(path, []byte("ephemeral content"), 0o644))

	st.EnqueueEvent(state.PendingEvent{Path: path, Kind: state.EventIndex})
	o.RunOnce(ctx)

	_, err := db.GetFileByPath(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	st.EnqueueEvent(state.PendingEvent{Path: path, Kind: state.EventDelete})
	o.RunOnce(ctx)

	_, err = db.GetFileByPath(path)
	require.Error(t, err)
}

func TestEmptyFileProducesNoRecord(t *testing.T) {
	o, st, db := newTestOracle(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	st.EnqueueEvent(state.PendingEvent{Path: path, Kind: state.EventIndex})
	o.RunOnce(ctx)

	_, err := db.GetFileByPath(path)
	require.Error(t, err)
}

// flakyExtractor simulates a file still being written: the first few
// calls come back empty, as extract.Default does for a zero-size file,
// before the content "arrives".
type flakyExtractor struct {
	failures int
	calls    int
	text     string
}

func (e *flakyExtractor) Extract(path string) (string, error) {
	e.calls++
	if e.calls <= e.failures {
		return "", nil
	}
	return e.text, nil
}

func TestIndexFileRetriesEmptyExtractionBeforeSucceeding(t *testing.T) {
	ctx := context.Background()
	actor, err := embed.NewActor(ctx, func() (embed.Model, error) {
		return embed.NewFakeModel(4), nil
	}, 4)
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(t.TempDir(), "index.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := state.New(clock.RealClock{})
	fx := &flakyExtractor{failures: 2, text: "a document about brown foxes"}
	o := oracle.New(st, db, actor, oracle.WithExtractor(fx))

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o644))

	st.EnqueueEvent(state.PendingEvent{Path: path, Kind: state.EventIndex})
	o.RunOnce(ctx)

	rec, err := db.GetFileByPath(path)
	require.NoError(t, err)
	require.Greater(t, rec.FileID, int64(0))
	require.Equal(t, 3, fx.calls)
}

func TestQueryForVanishedBindingIsNoop(t *testing.T) {
	o, st, _ := newTestOracle(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	inode, _ := st.GetOrCreateBinding("vanished phrase")
	st.SweepExpired(0)

	o.RunOnce(ctx)

	_, ok := st.GetResults(inode)
	require.False(t, ok)
}
