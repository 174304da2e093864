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

package bouncer_test

import (
	"testing"

	"github.com/cortexfs/cortexfs/internal/bouncer"
	"github.com/stretchr/testify/assert"
)

func TestIsNoise(t *testing.T) {
	cases := []struct {
		name  string
		noise bool
	}{
		{"notes.md", false},
		{".hidden", true},
		{"backup~", true},
		{"Thumbs.db", true},
		{"DESKTOP.INI", true},
		{"$RECYCLE.BIN", true},
		{"archive.ZIP", true},
		{"installer.msi", true},
		{"session.swp", true},
		{"New Folder (2)", true},
		{"new folder", true},
		{"report.pdf", false},
		{"no-extension", false},
		{"trailing.", false},
	}

	for _, c := range cases {
		assert.Equal(t, c.noise, bouncer.IsNoise(c.name), "name=%q", c.name)
	}
}

func TestIsNoisePure(t *testing.T) {
	// Repeated calls with the same input must agree; the classifier has no
	// hidden state.
	for i := 0; i < 3; i++ {
		assert.True(t, bouncer.IsNoise(".git"))
		assert.False(t, bouncer.IsNoise("readme.txt"))
	}
}
