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

// Package state holds the in-memory records shared by the Face, the
// Oracle, and the Librarian: the phrase->inode QueryBindings, the
// inode->results ResultBindings, and the pending file-event queue. Model
// it as arenas of typed records plus concurrent maps indexed by stable
// keys — no back-pointers, no weak references.
package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexfs/cortexfs/clock"
)

// SearchResult is one hit returned by the Oracle's searcher.
type SearchResult struct {
	FileID   int64
	AbsPath  string
	Score    float32
	Filename string
}

// EventKind tags a PendingEvent as an indexing or deletion intent.
type EventKind int

const (
	EventIndex EventKind = iota
	EventDelete
)

// PendingEvent is a path the Librarian observed changing, tagged with the
// intent the Oracle should act on.
type PendingEvent struct {
	Path string
	Kind EventKind
}

// State is the shared arena. The zero value is not usable; use New.
type State struct {
	clock clock.Clock

	bindingsMu sync.RWMutex
	bindings   map[string]uint64 // phrase -> inode
	lastRead   map[uint64]time.Time

	resultsMu    sync.RWMutex
	results      map[uint64][]SearchResult // inode -> results; absent key means pending
	indexVersion uint64

	pendingMu sync.Mutex
	pending   []PendingEvent
}

func New(c clock.Clock) *State {
	return &State{
		clock:    c,
		bindings: make(map[string]uint64),
		lastRead: make(map[uint64]time.Time),
		results:  make(map[uint64][]SearchResult),
	}
}

// GetOrCreateBinding returns the inode assigned to phrase, creating and
// recording one if this is the first time the phrase has been seen. The
// returned bool is true when a new binding was created. Touches lastRead
// either way, since both paths represent a Face read of the binding.
func (s *State) GetOrCreateBinding(phrase string) (inode uint64, created bool) {
	s.bindingsMu.Lock()
	defer s.bindingsMu.Unlock()

	if ino, ok := s.bindings[phrase]; ok {
		s.lastRead[ino] = s.clock.Now()
		return ino, false
	}

	ino = QueryInode(phrase)
	s.bindings[phrase] = ino
	s.lastRead[ino] = s.clock.Now()
	return ino, true
}

// TouchBinding refreshes the last-read time for inode, used whenever the
// Face resolves a query directory that already has a binding.
func (s *State) TouchBinding(inode uint64) {
	s.bindingsMu.Lock()
	defer s.bindingsMu.Unlock()
	if _, ok := s.lastRead[inode]; ok {
		s.lastRead[inode] = s.clock.Now()
	}
}

// LookupPhraseInode returns the inode bound to phrase, if any.
func (s *State) LookupPhraseInode(phrase string) (uint64, bool) {
	s.bindingsMu.RLock()
	defer s.bindingsMu.RUnlock()
	ino, ok := s.bindings[phrase]
	return ino, ok
}

// GetResults returns the materialized result list for inode. ok is false
// when the search has not completed yet; a present-but-empty slice means
// the search completed with no hits. This distinction is load-bearing for
// the Face's EAGAIN-vs-empty-directory policy.
func (s *State) GetResults(inode uint64) (results []SearchResult, ok bool) {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()
	results, ok = s.results[inode]
	return
}

// PublishResults records the outcome of a completed search for inode. A nil
// or empty slice still counts as present.
func (s *State) PublishResults(inode uint64, results []SearchResult) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	if results == nil {
		results = []SearchResult{}
	}
	s.results[inode] = results
}

// InvalidateResults clears every ResultBinding, forcing the next lookup of
// each query directory to recompute, and bumps the index version so
// anything caching results by version knows they're stale. Called
// whenever the index mutates.
func (s *State) InvalidateResults() {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	s.results = make(map[uint64][]SearchResult)
	atomic.AddUint64(&s.indexVersion, 1)
}

// IndexVersion returns the number of times the index has mutated since
// startup. It monotonically increases; there is no wraparound handling
// since 2^64 indexing rounds is not a reachable concern.
func (s *State) IndexVersion() uint64 {
	return atomic.LoadUint64(&s.indexVersion)
}

// EnqueueEvent appends a pending file event, preserving arrival order for a
// given path.
func (s *State) EnqueueEvent(ev PendingEvent) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending = append(s.pending, ev)
}

// DrainEvents atomically removes and returns every pending event.
func (s *State) DrainEvents() []PendingEvent {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	drained := s.pending
	s.pending = nil
	return drained
}

// BoundPhrases returns every phrase with a live QueryBinding, for the
// Face's readdir(search_ino) listing.
func (s *State) BoundPhrases() []string {
	s.bindingsMu.RLock()
	defer s.bindingsMu.RUnlock()
	phrases := make([]string, 0, len(s.bindings))
	for p := range s.bindings {
		phrases = append(phrases, p)
	}
	return phrases
}

// BoundInodes returns the inode of every live QueryBinding, for the
// Face's linear scan across materialized result sets.
func (s *State) BoundInodes() []uint64 {
	s.bindingsMu.RLock()
	defer s.bindingsMu.RUnlock()
	inodes := make([]uint64, 0, len(s.bindings))
	for _, ino := range s.bindings {
		inodes = append(inodes, ino)
	}
	return inodes
}

// PhrasesNeedingSearch returns every bound phrase whose ResultBinding is
// still absent, for the dispatcher to schedule process_query work units.
func (s *State) PhrasesNeedingSearch() []string {
	s.bindingsMu.RLock()
	phrases := make(map[string]uint64, len(s.bindings))
	for p, ino := range s.bindings {
		phrases[p] = ino
	}
	s.bindingsMu.RUnlock()

	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()

	var pending []string
	for p, ino := range phrases {
		if _, ok := s.results[ino]; !ok {
			pending = append(pending, p)
		}
	}
	return pending
}

// SweepExpired prunes QueryBindings whose inode has not been read within
// ttl, along with any ResultBinding for that inode. Spec §9 Open Question
// (ii): the TTL sweeper this module carries.
func (s *State) SweepExpired(ttl time.Duration) (pruned int) {
	now := s.clock.Now()

	s.bindingsMu.Lock()
	var staleInodes []uint64
	for phrase, ino := range s.bindings {
		if now.Sub(s.lastRead[ino]) >= ttl {
			delete(s.bindings, phrase)
			delete(s.lastRead, ino)
			staleInodes = append(staleInodes, ino)
		}
	}
	s.bindingsMu.Unlock()

	if len(staleInodes) == 0 {
		return 0
	}

	s.resultsMu.Lock()
	for _, ino := range staleInodes {
		delete(s.results, ino)
	}
	s.resultsMu.Unlock()

	return len(staleInodes)
}

// RunSweeper blocks, sweeping expired QueryBindings every tick until done
// is closed. Intended to run on its own goroutine for the lifetime of the
// process.
func (s *State) RunSweeper(done <-chan struct{}, ttl, tick time.Duration) {
	for {
		select {
		case <-done:
			return
		case <-s.clock.After(tick):
			s.SweepExpired(ttl)
		}
	}
}
