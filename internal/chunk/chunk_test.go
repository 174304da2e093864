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

package chunk_test

import (
	"strings"
	"testing"

	"github.com/cortexfs/cortexfs/internal/chunk"
	"github.com/stretchr/testify/assert"
)

func TestSplitEmptyYieldsNoChunks(t *testing.T) {
	assert.Nil(t, chunk.Split("", 10))
	assert.Nil(t, chunk.Split("   \n\n  ", 10))
}

func TestSplitShortTextIsOneChunk(t *testing.T) {
	chunks := chunk.Split("one short paragraph of text", 10)
	assert.Equal(t, []string{"one short paragraph of text"}, chunks)
}

func TestSplitRespectsParagraphBreaks(t *testing.T) {
	text := "first paragraph here\n\nsecond paragraph here"
	chunks := chunk.Split(text, 10)
	assert.Equal(t, []string{"first paragraph here", "second paragraph here"}, chunks)
}

func TestSplitCapsLongParagraphAtMaxTokens(t *testing.T) {
	words := make([]string, 50)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ")

	chunks := chunk.Split(text, 10)
	assert.Len(t, chunks, 5)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(strings.Fields(c)), 10)
	}
}

func TestSplitPrefersSentenceBoundaries(t *testing.T) {
	text := "Short sentence one. Short sentence two. Short sentence three."
	chunks := chunk.Split(text, 5)
	assert.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(strings.Fields(c)), 5)
	}
}

func TestSplitDefaultsMaxTokensWhenNonPositive(t *testing.T) {
	chunks := chunk.Split("a few words here", 0)
	assert.Equal(t, []string{"a few words here"}, chunks)
}
