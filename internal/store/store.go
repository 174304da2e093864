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

// Package store is the Index Store: a vector-augmented SQLite database
// holding the file registry and the chunk-level embedding index.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/cortexfs/cortexfs/internal/semerr"
)

func init() {
	sqlite_vec.Auto()
}

// FileRecord mirrors one row of file_registry.
type FileRecord struct {
	FileID    int64
	AbsPath   string
	Inode     uint64
	Mtime     int64
	Size      int64
	IsDir     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one (file_id, embedding) row ready for insertion into vec_index.
type Chunk struct {
	Embedding []float32
}

// SearchHit is one row out of the nearest-chunk-per-file aggregation query.
type SearchHit struct {
	FileID   int64
	AbsPath  string
	Distance float32
}

// Store wraps the single writer *sql.DB connection. Only one writer is
// permitted at a time per spec §5; the mutex enforces that at the Go level
// in addition to SQLite's own single-writer semantics.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	dim  int
	path string
}

// Open opens or creates the database at path, sets the pragmas spec §6
// mandates, and ensures the schema exists. dim is the embedding model's
// output dimension, used to size the vec0 virtual table column.
func Open(path string, dim int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, semerr.Wrap(semerr.IoFailure, "Open: mkdir", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, semerr.Wrap(semerr.DatabaseFailure, "Open: sql.Open", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, semerr.Wrap(semerr.DatabaseFailure, "Open: "+pragma, err)
		}
	}

	s := &Store{db: db, dim: dim, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS file_registry (
	file_id INTEGER PRIMARY KEY AUTOINCREMENT,
	abs_path TEXT NOT NULL UNIQUE,
	inode INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	is_dir INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_index USING vec0(
	file_id INTEGER,
	embedding float[%d] distance_metric=cosine
);

CREATE TABLE IF NOT EXISTS tags (
	tag_id INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_tag_id INTEGER,
	name TEXT NOT NULL,
	UNIQUE(parent_tag_id, name),
	FOREIGN KEY(parent_tag_id) REFERENCES tags(tag_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS file_tags (
	file_id INTEGER NOT NULL,
	tag_id INTEGER NOT NULL,
	display_name TEXT,
	added_at INTEGER DEFAULT (unixepoch()),
	PRIMARY KEY (file_id, tag_id),
	FOREIGN KEY (file_id) REFERENCES file_registry(file_id) ON DELETE CASCADE,
	FOREIGN KEY (tag_id) REFERENCES tags(tag_id) ON DELETE CASCADE
);
`, s.dim)

	if _, err := s.db.Exec(schema); err != nil {
		return semerr.Wrap(semerr.DatabaseFailure, "migrate", err)
	}
	return nil
}

// UpsertFile registers abs_path, preserving file_id across re-registration
// and advancing updated_at. Matches spec §3's FileRecord invariant.
func (s *Store) UpsertFile(absPath string, inode uint64, mtime, size int64, isDir bool) (fileID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO file_registry (abs_path, inode, mtime, size, is_dir)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(abs_path) DO UPDATE SET
			mtime = excluded.mtime,
			size = excluded.size,
			inode = excluded.inode,
			updated_at = CURRENT_TIMESTAMP
	`, absPath, inode, mtime, size, boolToInt(isDir))
	if err != nil {
		return 0, semerr.Wrap(semerr.DatabaseFailure, "UpsertFile", err)
	}

	// SQLite leaves last_insert_rowid untouched when the DO UPDATE branch
	// runs, so the id is always read back by path rather than trusted from
	// LastInsertId.
	var id int64
	if err := s.db.QueryRow(`SELECT file_id FROM file_registry WHERE abs_path = ?`, absPath).Scan(&id); err != nil {
		return 0, semerr.Wrap(semerr.DatabaseFailure, "UpsertFile: lookup after conflict", err)
	}
	return id, nil
}

// GetFileByPath returns the FileRecord for absPath, or semerr.ErrNotFound.
func (s *Store) GetFileByPath(absPath string) (*FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT file_id, abs_path, inode, mtime, size, is_dir, created_at, updated_at
		FROM file_registry WHERE abs_path = ?`, absPath)

	var rec FileRecord
	var isDir int
	if err := row.Scan(&rec.FileID, &rec.AbsPath, &rec.Inode, &rec.Mtime, &rec.Size, &isDir, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, semerr.ErrNotFound
		}
		return nil, semerr.Wrap(semerr.DatabaseFailure, "GetFileByPath", err)
	}
	rec.IsDir = isDir != 0
	return &rec, nil
}

// DeleteFile removes the FileRecord and all of its chunks atomically, per
// spec §4.2 handle_delete.
func (s *Store) DeleteFile(fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return semerr.Wrap(semerr.DatabaseFailure, "DeleteFile: begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM vec_index WHERE file_id = ?`, fileID); err != nil {
		return semerr.Wrap(semerr.DatabaseFailure, "DeleteFile: vec_index", err)
	}
	if _, err := tx.Exec(`DELETE FROM file_registry WHERE file_id = ?`, fileID); err != nil {
		return semerr.Wrap(semerr.DatabaseFailure, "DeleteFile: file_registry", err)
	}

	if err := tx.Commit(); err != nil {
		return semerr.Wrap(semerr.DatabaseFailure, "DeleteFile: commit", err)
	}
	return nil
}

// ReplaceChunks deletes every existing chunk for fileID and inserts the
// given embeddings in one transaction, so readers never observe a partial
// chunk set for a file_id (spec §4.2 step 6).
func (s *Store) ReplaceChunks(fileID int64, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return semerr.Wrap(semerr.DatabaseFailure, "ReplaceChunks: begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM vec_index WHERE file_id = ?`, fileID); err != nil {
		return semerr.Wrap(semerr.DatabaseFailure, "ReplaceChunks: delete", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO vec_index (file_id, embedding) VALUES (?, ?)`)
	if err != nil {
		return semerr.Wrap(semerr.DatabaseFailure, "ReplaceChunks: prepare", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		raw, err := sqlite_vec.SerializeFloat32(c.Embedding)
		if err != nil {
			return semerr.Wrap(semerr.DatabaseFailure, "ReplaceChunks: serialize", err)
		}
		if _, err := stmt.Exec(fileID, raw); err != nil {
			return semerr.Wrap(semerr.DatabaseFailure, "ReplaceChunks: insert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return semerr.Wrap(semerr.DatabaseFailure, "ReplaceChunks: commit", err)
	}
	return nil
}

// candidatePoolSize and resultLimit match spec §4.2 process_query: search
// the 100 nearest chunks, aggregate to the best 20 files.
const (
	candidatePoolSize = 100
	resultLimit       = 20
)

// SearchNearest performs the nearest-chunk-per-file aggregation query from
// spec §4.2 step 2, returning up to resultLimit hits ordered by ascending
// distance (best first).
func (s *Store) SearchNearest(queryEmbedding []float32) ([]SearchHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, semerr.Wrap(semerr.DatabaseFailure, "SearchNearest: serialize", err)
	}

	rows, err := s.db.Query(`
		SELECT fr.file_id, fr.abs_path, MIN(v.distance) AS best_distance
		FROM (
			SELECT file_id, distance FROM vec_index
			WHERE embedding MATCH ?
			ORDER BY distance ASC
			LIMIT ?
		) v
		JOIN file_registry fr ON v.file_id = fr.file_id
		GROUP BY fr.file_id
		ORDER BY best_distance ASC
		LIMIT ?
	`, raw, candidatePoolSize, resultLimit)
	if err != nil {
		return nil, semerr.Wrap(semerr.DatabaseFailure, "SearchNearest: query", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.FileID, &h.AbsPath, &h.Distance); err != nil {
			return nil, semerr.Wrap(semerr.DatabaseFailure, "SearchNearest: scan", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, semerr.Wrap(semerr.DatabaseFailure, "SearchNearest: rows", err)
	}
	return hits, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
