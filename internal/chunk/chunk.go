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

// Package chunk splits extracted text into bounded pieces for embedding.
// The boundary policy is deterministic and implementation-defined: prefer
// paragraph breaks, fall back to sentence breaks, and hard-wrap anything
// that still exceeds the token cap. Order is preserved but carries no
// externally observable meaning (spec's chunking step is "order preserved
// but not observable").
package chunk

import "strings"

// DefaultMaxTokens bounds chunk size, approximated as whitespace-delimited
// words since the embedding model's own tokenizer is not exposed here.
const DefaultMaxTokens = 256

// Split divides text into chunks of at most maxTokens "tokens" (words),
// preferring to break on paragraph, then sentence boundaries. Returns nil
// for empty input.
func Split(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	for _, para := range paragraphs(text) {
		chunks = append(chunks, splitUnit(para, maxTokens)...)
	}
	return chunks
}

func paragraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitUnit chunks a single paragraph, falling back to sentence boundaries
// and then a hard word-count wrap if a single sentence still overflows.
func splitUnit(paragraph string, maxTokens int) []string {
	words := strings.Fields(paragraph)
	if len(words) <= maxTokens {
		return []string{paragraph}
	}

	sentences := splitSentences(paragraph)
	var out []string
	var buf []string

	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.Join(buf, " "))
			buf = nil
		}
	}

	for _, sentence := range sentences {
		sentenceWords := strings.Fields(sentence)
		if len(sentenceWords) > maxTokens {
			flush()
			out = append(out, hardWrap(sentenceWords, maxTokens)...)
			continue
		}
		if len(buf)+len(sentenceWords) > maxTokens {
			flush()
		}
		buf = append(buf, sentenceWords...)
	}
	flush()

	return out
}

func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	for _, r := range text {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func hardWrap(words []string, maxTokens int) []string {
	var out []string
	for len(words) > 0 {
		n := maxTokens
		if n > len(words) {
			n = len(words)
		}
		out = append(out, strings.Join(words[:n], " "))
		words = words[n:]
	}
	return out
}
