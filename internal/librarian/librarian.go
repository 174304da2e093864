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

// Package librarian watches a directory tree and translates filesystem
// activity into pending index/delete events. It never touches the index
// store itself: the Librarian is the observer, not the executioner, since
// deleting a FileRecord before its chunks orphans them in the vector
// index — only the Oracle is allowed to perform that atomic cleanup.
package librarian

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cortexfs/cortexfs/internal/bouncer"
	"github.com/cortexfs/cortexfs/internal/logger"
	"github.com/cortexfs/cortexfs/internal/state"
)

// defaultDebounceWindow is how long the Librarian waits for a burst of
// events on the same path to go quiet before posting a single pending event.
const defaultDebounceWindow = 500 * time.Millisecond

// Librarian owns an fsnotify watcher and a dedicated goroutine that
// translates raw filesystem events into debounced PendingEvents on State.
type Librarian struct {
	root  string
	st    *state.State
	watch *fsnotify.Watcher

	debounceWindow time.Duration

	pendingMu sync.Mutex
	pending   map[string]*time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Librarian rooted at root, publishing pending events to
// st. The caller must call Start to begin watching.
func New(root string, st *state.State) (*Librarian, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Librarian{
		root:           root,
		st:             st,
		watch:          w,
		debounceWindow: defaultDebounceWindow,
		pending:        make(map[string]*time.Timer),
		done:           make(chan struct{}),
	}, nil
}

// SetDebounceWindow overrides the default 500ms debounce window; intended
// for tests that want to shrink it.
func (l *Librarian) SetDebounceWindow(d time.Duration) {
	l.debounceWindow = d
}

// Start performs the initial recursive scan, registers watches on every
// surviving directory, and launches the event loop goroutine.
func (l *Librarian) Start() error {
	if err := l.scanAndWatch(l.root); err != nil {
		return err
	}

	l.wg.Add(1)
	go l.eventLoop()
	return nil
}

// Stop signals the event loop to exit and closes the underlying watcher.
func (l *Librarian) Stop() error {
	close(l.done)
	l.wg.Wait()
	return l.watch.Close()
}

// scanAndWatch walks root once at startup, queuing an index intent for
// every surviving file and adding every surviving directory to the
// fsnotify watch list, matching the Librarian's initial-scan-then-watch
// sequencing.
func (l *Librarian) scanAndWatch(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warnf("librarian: error walking %s: %v", path, err)
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if bouncer.IsNoise(name) && path != root {
				return filepath.SkipDir
			}
			if werr := l.watch.Add(path); werr != nil {
				logger.Warnf("librarian: failed to watch %s: %v", path, werr)
			}
			return nil
		}

		if bouncer.IsNoise(name) {
			return nil
		}

		l.st.EnqueueEvent(state.PendingEvent{Path: path, Kind: state.EventIndex})
		return nil
	})
}

// eventLoop drains fsnotify events onto debounce timers, one per path, and
// fires a PendingEvent once a path has gone quiet for debounceWindow.
func (l *Librarian) eventLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.done:
			return

		case ev, ok := <-l.watch.Events:
			if !ok {
				return
			}
			l.handleEvent(ev)

		case err, ok := <-l.watch.Errors:
			if !ok {
				return
			}
			logger.Errorf("librarian: watcher error: %v", err)
		}
	}
}

func (l *Librarian) handleEvent(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if bouncer.IsNoise(name) {
		return
	}

	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, err := fsIsDir(ev.Name); err == nil && info {
			if werr := l.watch.Add(ev.Name); werr != nil {
				logger.Warnf("librarian: failed to watch new directory %s: %v", ev.Name, werr)
			}
			l.scanAndWatch(ev.Name)
			return
		}
	}

	kind := state.EventIndex
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		kind = state.EventDelete
	}

	l.debounce(ev.Name, kind)
}

// debounce resets any in-flight timer for path and schedules a fresh one;
// only the last event kind observed within the quiet window survives.
func (l *Librarian) debounce(path string, kind state.EventKind) {
	l.pendingMu.Lock()
	defer l.pendingMu.Unlock()

	if t, exists := l.pending[path]; exists {
		t.Stop()
	}

	l.pending[path] = time.AfterFunc(l.debounceWindow, func() {
		l.st.EnqueueEvent(state.PendingEvent{Path: path, Kind: kind})

		l.pendingMu.Lock()
		delete(l.pending, path)
		l.pendingMu.Unlock()
	})
}

func fsIsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
