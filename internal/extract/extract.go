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

// Package extract turns a file on disk into the plain text the Oracle
// hands to the embedding model. Per-format parsing is explicitly out of
// scope; the default Extractor here applies the same conservative
// boundary checks regardless of extension and leaves the door open for a
// richer Extractor to be substituted later.
package extract

import (
	"bytes"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/cortexfs/cortexfs/internal/semerr"
)

// maxFileSize caps how much of a file is ever read into memory. Files
// larger than this are treated as "nothing to index" rather than an error,
// matching the boundary behavior in spec §8.
const maxFileSize = 10 * 1024 * 1024

// binaryCheckBufferSize is how much of the file's head is sniffed for a
// null byte before committing to a full UTF-8 read.
const binaryCheckBufferSize = 8192

// Extractor turns a file into the text that should be chunked and
// embedded. An empty return with a nil error means "nothing to index" —
// not an error condition.
type Extractor interface {
	Extract(path string) (string, error)
}

// Default is the conservative extractor every component uses unless a
// caller substitutes a richer one. It never errors out of the index
// pipeline for a file that merely isn't text; it reports "no content"
// instead.
type Default struct{}

func (Default) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", semerr.Wrap(semerr.IoFailure, "Extract: stat", err)
	}
	if info.IsDir() {
		return "", semerr.Wrap(semerr.InvalidPath, "Extract", os.ErrInvalid)
	}
	if info.Size() == 0 {
		return "", nil
	}
	if info.Size() > maxFileSize {
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", semerr.Wrap(semerr.IoFailure, "Extract: open", err)
	}
	defer f.Close()

	head := make([]byte, binaryCheckBufferSize)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", semerr.Wrap(semerr.IoFailure, "Extract: sniff", err)
	}
	if bytes.IndexByte(head[:n], 0) != -1 {
		return "", nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", semerr.Wrap(semerr.IoFailure, "Extract: seek", err)
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		return "", semerr.Wrap(semerr.IoFailure, "Extract: read", err)
	}

	if !utf8.Valid(raw) {
		return "", nil
	}

	return normalize(string(raw)), nil
}

// normalize trims trailing whitespace per line and collapses runs of blank
// lines, the same light touch the original extractor applies before
// chunking regardless of file type.
func normalize(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
