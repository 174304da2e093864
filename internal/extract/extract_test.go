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

package extract_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cortexfs/cortexfs/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestExtractPlainText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", []byte("hello   \nworld\n\n\nend"))

	text, err := (extract.Default{}).Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n\nend", text)
}

func TestExtractEmptyFileYieldsNoContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", nil)

	text, err := (extract.Default{}).Extract(path)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractBinaryFileYieldsNoContent(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte{0xff, 0x00, 0x10}, 100)
	path := writeFile(t, dir, "blob.bin", content)

	text, err := (extract.Default{}).Extract(path)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractOversizedFileYieldsNoContent(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, 11*1024*1024)
	for i := range big {
		big[i] = 'a'
	}
	path := writeFile(t, dir, "huge.txt", big)

	text, err := (extract.Default{}).Extract(path)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractDirectoryIsInvalidPath(t *testing.T) {
	dir := t.TempDir()

	_, err := (extract.Default{}).Extract(dir)
	assert.Error(t, err)
}

func TestExtractMissingFile(t *testing.T) {
	_, err := (extract.Default{}).Extract(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
