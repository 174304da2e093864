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

// Package face is the synchronous, kernel-facing side of the mount: a
// fuseutil.FileSystem implementation that only ever reads from shared
// state. It never touches disk, the embedding model, or the database —
// every handler must return within a few milliseconds, so any work that
// takes longer belongs to the Oracle instead.
package face

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/cortexfs/cortexfs/internal/semerr"
	"github.com/cortexfs/cortexfs/internal/state"
)

const attrTTL = time.Second

// maxNameLen bounds every entry name this file system vends. jacobsa/fuse's
// StatFSOp carries no namelen field of its own (the FUSE wire protocol's
// statfs reply has none), so the limit is enforced here, at the one call
// site that accepts a kernel-supplied name.
const maxNameLen = 255

// Face implements fuseutil.FileSystem over a virtual tree rooted at
// state.RootInode. It holds no disk-backed data itself; everything it
// answers is derived from the shared State the Oracle and Librarian also
// touch.
type Face struct {
	fuseutil.NotImplementedFileSystem

	st       *state.State
	uid, gid uint32

	mu         sync.Mutex
	dirHandles map[fuseops.HandleID]uint64
	nextHandle fuseops.HandleID
}

// New constructs a Face backed by st, attributing every inode to uid/gid
// (the mounting user's identity, per spec §6).
func New(st *state.State, uid, gid uint32) *Face {
	return &Face{
		st:         st,
		uid:        uid,
		gid:        gid,
		dirHandles: make(map[fuseops.HandleID]uint64),
	}
}

func (f *Face) Init(op *fuseops.InitOp) error {
	return nil
}

// StatFS answers statfs(2) with an empty, synthetic file system: every
// capacity counter is zero since nothing here is backed by real block
// storage. No name limit is reported here; maxNameLen is enforced in
// LookUpInode instead.
func (f *Face) StatFS(op *fuseops.StatFSOp) error {
	op.BlockSize = 0
	op.Blocks = 0
	op.BlocksFree = 0
	op.BlocksAvailable = 0
	op.IoSize = 0
	op.Inodes = 0
	op.InodesFree = 0
	return nil
}

// dirAttrs builds the attributes for a virtual directory inode. Every
// directory in this tree looks identical to the kernel regardless of
// which inode it is; ino is accepted for call-site symmetry with
// fileAttrs and in case a future metadata entry needs to vary it.
func (f *Face) dirAttrs(ino uint64) fuseops.InodeAttributes {
	now := time.Now()
	return fuseops.InodeAttributes{
		Nlink: 2,
		Mode:  0o755 | os.ModeDir,
		Atime: now,
		Mtime: now,
		Ctime: now,
		Uid:   f.uid,
		Gid:   f.gid,
	}
}

// fileAttrs builds the attributes for a virtual result-entry inode.
func (f *Face) fileAttrs(size uint64) fuseops.InodeAttributes {
	now := time.Now()
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  0o644,
		Size:  size,
		Atime: now,
		Mtime: now,
		Ctime: now,
		Uid:   f.uid,
		Gid:   f.gid,
	}
}

// entryName formats a search result's directory entry name, e.g.
// "0.87_report.md".
func entryName(r state.SearchResult) string {
	return fmt.Sprintf("%.2f_%s", r.Score, r.Filename)
}

// entryBody formats a search result's file contents.
func entryBody(r state.SearchResult) string {
	return fmt.Sprintf("%s\nScore: %.2f", r.AbsPath, r.Score)
}

// LookUpInode resolves (parent, name) to a child inode and its attributes.
// Per spec §4.1 this has three cases: root's two fixed children, a
// query-phrase directory under the search directory, and a result file
// under a query-phrase directory.
func (f *Face) LookUpInode(op *fuseops.LookUpInodeOp) (err error) {
	if !utf8.ValidString(op.Name) {
		return semerr.Errno(semerr.Wrap(semerr.InvalidPath, "LookUpInode", errors.New("name is not valid utf-8")))
	}
	if len(op.Name) > maxNameLen {
		return syscall.ENAMETOOLONG
	}

	switch op.Parent {
	case fuseops.InodeID(state.RootInode):
		switch op.Name {
		case "metadata":
			op.Entry.Child = fuseops.InodeID(state.MetadataInode)
			op.Entry.Attributes = f.dirAttrs(state.MetadataInode)
			op.Entry.AttributesExpiration = time.Now().Add(attrTTL)
			return nil
		case "search":
			op.Entry.Child = fuseops.InodeID(state.SearchInode)
			op.Entry.Attributes = f.dirAttrs(state.SearchInode)
			op.Entry.AttributesExpiration = time.Now().Add(attrTTL)
			return nil
		default:
			return syscall.ENOENT
		}

	case fuseops.InodeID(state.MetadataInode):
		return syscall.ENOENT

	case fuseops.InodeID(state.SearchInode):
		return f.lookUpQueryDir(op)

	default:
		return f.lookUpResultEntry(op)
	}
}

// lookUpQueryDir binds op.Name as a query phrase, per spec §4.1's
// lookup(3, phrase) algorithm: a present ResultBinding answers directory
// attributes immediately; an absent one upserts the QueryBinding, relies
// on the Oracle's dispatcher to notice the unresolved binding on its next
// tick, and answers EAGAIN so the caller retries. No synchronous
// computation happens here.
func (f *Face) lookUpQueryDir(op *fuseops.LookUpInodeOp) error {
	phrase := op.Name
	inode, created := f.st.GetOrCreateBinding(phrase)
	if !created {
		f.st.TouchBinding(inode)
	}

	if _, ok := f.st.GetResults(inode); !ok {
		return syscall.EAGAIN
	}

	op.Entry.Child = fuseops.InodeID(inode)
	op.Entry.Attributes = f.dirAttrs(inode)
	op.Entry.AttributesExpiration = time.Now().Add(attrTTL)
	return nil
}

// lookUpResultEntry handles a lookup whose parent is (speculatively) a
// query-phrase directory: if name matches an entry in the parent's
// materialized results, derive the child's inode deterministically from
// (parent, name) and reply with regular-file attributes. A parent with no
// published results, or a name not among them, answers ENOENT.
func (f *Face) lookUpResultEntry(op *fuseops.LookUpInodeOp) error {
	parent := uint64(op.Parent)
	results, ok := f.st.GetResults(parent)
	if !ok {
		return syscall.ENOENT
	}

	for _, r := range results {
		if entryName(r) != op.Name {
			continue
		}
		childIno := state.ResultInode(parent, op.Name)
		op.Entry.Child = fuseops.InodeID(childIno)
		op.Entry.Attributes = f.fileAttrs(uint64(len(entryBody(r))))
		op.Entry.AttributesExpiration = time.Now().Add(attrTTL)
		return nil
	}

	return syscall.ENOENT
}

// GetInodeAttributes answers getattr for any inode previously vended by
// LookUpInode or ReadDir, per spec §4.1: reserved inodes and QueryBindings
// are directories, everything else is a result file found by scanning the
// materialized result sets.
func (f *Face) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	ino := uint64(op.Inode)

	switch ino {
	case state.RootInode, state.MetadataInode, state.SearchInode:
		op.Attributes = f.dirAttrs(ino)
		op.AttributesExpiration = time.Now().Add(attrTTL)
		return nil
	}

	_, isQueryDir := f.st.GetResults(ino)
	for _, bound := range f.st.BoundInodes() {
		if bound == ino {
			isQueryDir = true
			break
		}
	}
	if isQueryDir {
		op.Attributes = f.dirAttrs(ino)
		op.AttributesExpiration = time.Now().Add(attrTTL)
		return nil
	}

	body, ok := f.findResultBody(ino)
	if !ok {
		return syscall.ENOENT
	}

	op.Attributes = f.fileAttrs(uint64(len(body)))
	op.AttributesExpiration = time.Now().Add(attrTTL)
	return nil
}

// findResultBody performs the linear scan over every materialized
// ResultBinding described in spec §4.1's read(file_ino) algorithm,
// looking for the (parent, encoded name) pair whose derived inode
// matches target.
func (f *Face) findResultBody(target uint64) (string, bool) {
	for _, parent := range f.st.BoundInodes() {
		results, ok := f.st.GetResults(parent)
		if !ok {
			continue
		}
		for _, r := range results {
			name := entryName(r)
			if state.ResultInode(parent, name) == target {
				return entryBody(r), true
			}
		}
	}
	return "", false
}

func (f *Face) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	return syscall.EROFS
}

func (f *Face) ForgetInode(op *fuseops.ForgetInodeOp) error {
	return nil
}

// OpenDir allows opening any of the virtual directories; the read-only
// surface has nothing to validate beyond what LookUpInode already did.
func (f *Face) OpenDir(op *fuseops.OpenDirOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	h := f.nextHandle
	f.nextHandle++
	f.dirHandles[h] = uint64(op.Inode)
	op.Handle = h
	return nil
}

// ReadDir lists a virtual directory's children, per spec §4.1's
// readdir(search_ino) algorithm generalized to every directory inode in
// the tree.
func (f *Face) ReadDir(op *fuseops.ReadDirOp) error {
	f.mu.Lock()
	ino, ok := f.dirHandles[op.Handle]
	f.mu.Unlock()
	if !ok {
		return syscall.EINVAL
	}

	entries := f.direntsFor(ino)

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return syscall.EINVAL
	}

	op.Data = nil
	for i := int(op.Offset); i < len(entries); i++ {
		next := fuseutil.AppendDirent(op.Data, entries[i])
		if len(next) > op.Size {
			break
		}
		op.Data = next
	}

	return nil
}

// direntsFor enumerates the fixed or dynamic children of a directory
// inode. Root and the search directory are special-cased; a query-phrase
// directory's children come from its ResultBinding. The kernel synthesizes
// "." and ".." itself, so neither is emitted here.
func (f *Face) direntsFor(ino uint64) []fuseops.Dirent {
	var entries []fuseops.Dirent
	offset := fuseops.DirOffset(1)

	switch ino {
	case state.RootInode:
		entries = append(entries,
			fuseops.Dirent{Offset: offset, Inode: fuseops.InodeID(state.MetadataInode), Name: "metadata", Type: fuseops.DT_Directory})
		offset++
		entries = append(entries,
			fuseops.Dirent{Offset: offset, Inode: fuseops.InodeID(state.SearchInode), Name: "search", Type: fuseops.DT_Directory})
		return entries

	case state.MetadataInode:
		return entries

	case state.SearchInode:
		for _, phrase := range f.st.BoundPhrases() {
			phraseIno, ok := f.st.LookupPhraseInode(phrase)
			if !ok {
				continue
			}
			entries = append(entries, fuseops.Dirent{
				Offset: offset,
				Inode:  fuseops.InodeID(phraseIno),
				Name:   phrase,
				Type:   fuseops.DT_Directory,
			})
			offset++
		}
		return entries
	}

	results, ok := f.st.GetResults(ino)
	if !ok {
		return entries
	}
	for _, r := range results {
		name := entryName(r)
		entries = append(entries, fuseops.Dirent{
			Offset: offset,
			Inode:  fuseops.InodeID(state.ResultInode(ino, name)),
			Name:   name,
			Type:   fuseops.DT_File,
		})
		offset++
	}
	return entries
}

func (f *Face) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dirHandles, op.Handle)
	return nil
}

// OpenFile allows opening any result-entry inode read-only.
func (f *Face) OpenFile(op *fuseops.OpenFileOp) error {
	return nil
}

// ReadFile serves the formatted "{abs_path}\nScore: {score}" body for a
// result-entry inode, per spec §4.1's read(file_ino) algorithm.
func (f *Face) ReadFile(op *fuseops.ReadFileOp) error {
	body, ok := f.findResultBody(uint64(op.Inode))
	if !ok {
		return syscall.ENOENT
	}

	if op.Offset >= int64(len(body)) {
		op.Data = nil
		return nil
	}

	end := int(op.Offset) + op.Size
	if end > len(body) {
		end = len(body)
	}
	op.Data = []byte(body[op.Offset:end])
	return nil
}

func (f *Face) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

// The remaining ops are all mutating; the surface is read-mostly with
// virtual entries, so every one of them answers EROFS rather than
// pretending to support POSIX write-through semantics.

func (f *Face) MkDir(op *fuseops.MkDirOp) error                 { return syscall.EROFS }
func (f *Face) CreateFile(op *fuseops.CreateFileOp) error       { return syscall.EROFS }
func (f *Face) CreateSymlink(op *fuseops.CreateSymlinkOp) error { return syscall.EROFS }
func (f *Face) RmDir(op *fuseops.RmDirOp) error                 { return syscall.EROFS }
func (f *Face) Unlink(op *fuseops.UnlinkOp) error               { return syscall.EROFS }
func (f *Face) ReadSymlink(op *fuseops.ReadSymlinkOp) error     { return syscall.ENOENT }
func (f *Face) WriteFile(op *fuseops.WriteFileOp) error         { return syscall.EROFS }
func (f *Face) SyncFile(op *fuseops.SyncFileOp) error           { return nil }
func (f *Face) FlushFile(op *fuseops.FlushFileOp) error         { return nil }

var _ fuseutil.FileSystem = (*Face)(nil)

// Server wraps f as a fuse.Server ready to hand to fuse.Mount.
func Server(f *Face) fuse.Server {
	return fuseutil.NewFileSystemServer(f)
}
