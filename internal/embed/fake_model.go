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

package embed

import "hash/fnv"

// FakeModel is a deterministic, dependency-free stand-in for a real
// embedding model, used by tests and by any caller that wants reproducible
// vectors without loading model weights. The vector is derived from a
// hash of the input text, so identical text always produces an identical
// vector and distinct text (almost always) produces a distinct one.
type FakeModel struct {
	dim int
}

// NewFakeModel returns a FakeModel producing vectors of the given
// dimension.
func NewFakeModel(dim int) *FakeModel {
	return &FakeModel{dim: dim}
}

func (m *FakeModel) Dim() int {
	return m.dim
}

func (m *FakeModel) Embed(text string) ([]float32, error) {
	vec := make([]float32, m.dim)
	h := fnv.New64a()
	seed := []byte(text)

	for i := range vec {
		h.Reset()
		h.Write(seed)
		h.Write([]byte{byte(i)})
		sum := h.Sum64()
		// Map into [-1, 1] so cosine distance behaves sensibly.
		vec[i] = float32(sum%2000)/1000.0 - 1.0
	}
	return vec, nil
}

// EmbedBatch embeds each text independently; the fake model has no real
// batched forward pass to fold them into.
func (m *FakeModel) EmbedBatch(texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}
