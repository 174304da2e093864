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

// Package oracle is the asynchronous brain: a dispatcher loop that drains
// pending file events from the Librarian and pending queries from the
// Face, and a bounded worker pool that turns each into an index_file,
// handle_delete, or process_query work unit.
package oracle

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cortexfs/cortexfs/internal/chunk"
	"github.com/cortexfs/cortexfs/internal/embed"
	"github.com/cortexfs/cortexfs/internal/extract"
	"github.com/cortexfs/cortexfs/internal/logger"
	"github.com/cortexfs/cortexfs/internal/semerr"
	"github.com/cortexfs/cortexfs/internal/state"
	"github.com/cortexfs/cortexfs/internal/store"
)

// maxExtractAttempts and extractRetryBackoff bound the retry loop around
// text extraction: a file mid-write shows up as size==0 or a transient
// permission-denied from the writer still holding it open, not a real
// extraction failure.
const (
	maxExtractAttempts  = 20
	extractRetryBackoff = 100 * time.Millisecond
)

// Oracle owns the dispatcher loop and the shared collaborators every work
// unit needs: the index store, the embedding actor, the extractor, and
// the shared in-memory state.
type Oracle struct {
	st        *state.State
	db        *store.Store
	embedding *embed.Actor
	extractor extract.Extractor

	tick       time.Duration
	maxWorkers int

	inFlightQueries *dedupSet
	inFlightFiles   *dedupSet
}

// Option configures an Oracle at construction time.
type Option func(*Oracle)

// WithExtractor substitutes the text extractor; the zero value uses
// extract.Default{}.
func WithExtractor(e extract.Extractor) Option {
	return func(o *Oracle) { o.extractor = e }
}

// WithTick overrides the dispatcher's polling interval.
func WithTick(d time.Duration) Option {
	return func(o *Oracle) { o.tick = d }
}

// WithMaxWorkers bounds how many index_file/process_query work units may
// run concurrently.
func WithMaxWorkers(n int) Option {
	return func(o *Oracle) { o.maxWorkers = n }
}

const (
	defaultTick       = 100 * time.Millisecond
	defaultMaxWorkers = 8
)

// New constructs an Oracle wired to st and db, and the given embedding
// actor. The embedding actor's channel handle lives here, not in
// internal/state, since the Oracle is its only caller.
func New(st *state.State, db *store.Store, a *embed.Actor, opts ...Option) *Oracle {
	o := &Oracle{
		st:              st,
		db:              db,
		embedding:       a,
		extractor:       extract.Default{},
		tick:            defaultTick,
		maxWorkers:      defaultMaxWorkers,
		inFlightQueries: newDedupSet(),
		inFlightFiles:   newDedupSet(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run blocks, polling every tick for pending file events and query
// phrases needing a search, dispatching each onto the bounded worker
// pool, until ctx is canceled.
func (o *Oracle) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.dispatchRound(ctx)
		}
	}
}

// RunOnce executes a single dispatch round synchronously: every phrase
// needing a search and every pending file event currently queued is
// processed before RunOnce returns. Useful for tests and for draining the
// queues once at shutdown.
func (o *Oracle) RunOnce(ctx context.Context) {
	o.dispatchRound(ctx)
}

func (o *Oracle) dispatchRound(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxWorkers)

	for _, phrase := range o.st.PhrasesNeedingSearch() {
		if !o.inFlightQueries.tryAdd(phrase) {
			continue
		}
		phrase := phrase
		g.Go(func() error {
			defer o.inFlightQueries.remove(phrase)
			if err := o.processQuery(gctx, phrase); err != nil {
				logger.Errorf("oracle: process_query(%q): %v", phrase, err)
			}
			return nil
		})
	}

	for _, ev := range o.st.DrainEvents() {
		ev := ev
		if !o.inFlightFiles.tryAdd(ev.Path) {
			continue
		}
		g.Go(func() error {
			defer o.inFlightFiles.remove(ev.Path)
			var err error
			switch ev.Kind {
			case state.EventDelete:
				err = o.handleDelete(gctx, ev.Path)
			default:
				err = o.indexFile(gctx, ev.Path)
			}
			if err != nil {
				logger.Errorf("oracle: work unit for %s: %v", ev.Path, err)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// processQuery embeds the query phrase, runs the nearest-chunk-per-file
// search, and publishes the results under the phrase's bound inode.
func (o *Oracle) processQuery(ctx context.Context, phrase string) error {
	traceID := uuid.NewString()
	logger.Debugf("oracle[%s]: searching %q", traceID, phrase)

	inode, ok := o.st.LookupPhraseInode(phrase)
	if !ok {
		return nil // binding was pruned by the TTL sweeper before we got here
	}

	queryVec, err := o.embedding.Request(ctx, phrase)
	if err != nil {
		// Publish an empty result so the Face stops answering EAGAIN; the
		// failure itself is still surfaced to the caller for logging.
		if _, stillBound := o.st.LookupPhraseInode(phrase); stillBound {
			o.st.PublishResults(inode, nil)
		}
		return semerr.Wrap(semerr.EmbeddingFailure, "processQuery", err)
	}

	hits, err := o.db.SearchNearest(queryVec)
	if err != nil {
		return err
	}

	results := make([]state.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, state.SearchResult{
			FileID:   h.FileID,
			AbsPath:  h.AbsPath,
			Score:    1.0 - h.Distance,
			Filename: baseName(h.AbsPath),
		})
	}

	// Confirm the phrase's inode hasn't been reassigned out from under us by
	// a pruning race before publishing.
	if current, ok := o.st.LookupPhraseInode(phrase); !ok || current != inode {
		return nil
	}

	o.st.PublishResults(inode, results)
	return nil
}

// indexFile runs the full index_file work unit: extract, chunk, register,
// embed, and transactionally replace the file's chunk set.
func (o *Oracle) indexFile(ctx context.Context, path string) error {
	traceID := uuid.NewString()
	logger.Debugf("oracle[%s]: indexing %s", traceID, path)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with a delete; let the next DELETE intent handle it.
			return nil
		}
		return semerr.Wrap(semerr.IoFailure, "indexFile: stat", err)
	}

	text, err := o.extractWithRetry(ctx, traceID, path)
	if err != nil {
		return err
	}
	if text == "" {
		logger.Debugf("oracle[%s]: %s produced no extractable text, skipping", traceID, path)
		return nil
	}

	pieces := chunk.Split(text, chunk.DefaultMaxTokens)
	if len(pieces) == 0 {
		return nil
	}

	fileID, err := o.db.UpsertFile(path, hostInode(info), info.ModTime().Unix(), info.Size(), info.IsDir())
	if err != nil {
		return err
	}

	vecs, err := o.embedding.RequestBatch(ctx, pieces)
	if err != nil {
		return semerr.Wrap(semerr.EmbeddingFailure, "indexFile: embed batch", err)
	}

	embeddings := make([]store.Chunk, len(vecs))
	for i, vec := range vecs {
		embeddings[i] = store.Chunk{Embedding: vec}
	}

	if err := o.db.ReplaceChunks(fileID, embeddings); err != nil {
		return err
	}

	o.st.InvalidateResults()
	logger.Infof("oracle[%s]: indexed %s (%d chunks)", traceID, path, len(embeddings))
	return nil
}

// handleDelete performs the atomic FileRecord+chunk cleanup the Librarian
// is forbidden from doing itself. If the path has reappeared by the time
// this runs, the delete notification was spurious and we re-index instead.
func (o *Oracle) handleDelete(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return o.indexFile(ctx, path)
	}

	rec, err := o.db.GetFileByPath(path)
	if err != nil {
		if err == semerr.ErrNotFound {
			return nil
		}
		return err
	}

	if err := o.db.DeleteFile(rec.FileID); err != nil {
		return err
	}

	o.st.InvalidateResults()
	logger.Infof("oracle: deleted %s", path)
	return nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// extractWithRetry retries text extraction on the two signatures of "this
// file is still being written by someone else": a permission-denied stat
// or open, and an extraction that comes back empty for a non-empty write
// in progress. After maxExtractAttempts it gives up and treats the file
// as empty, which indexFile already handles as a no-op success.
func (o *Oracle) extractWithRetry(ctx context.Context, traceID, path string) (string, error) {
	for attempt := 1; attempt <= maxExtractAttempts; attempt++ {
		text, err := o.extractor.Extract(path)
		if err == nil && text != "" {
			return text, nil
		}
		if err != nil && !isPermissionDenied(err) {
			return "", err
		}

		logger.Debugf("oracle[%s]: %s not yet readable (attempt %d/%d), retrying", traceID, path, attempt, maxExtractAttempts)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(extractRetryBackoff):
		}
	}

	return "", nil
}

func isPermissionDenied(err error) bool {
	return errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES)
}

// hostInode extracts the real on-disk inode number from info, where the
// platform exposes one. info.Sys() is *syscall.Stat_t on Linux.
func hostInode(info os.FileInfo) uint64 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return stat.Ino
	}
	return 0
}
