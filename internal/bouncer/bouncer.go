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

// Package bouncer classifies filenames as noise (OS metadata, backups,
// archives, binaries, hidden files) so the Librarian never indexes them.
package bouncer

import "strings"

var ignoredExact = map[string]bool{
	"thumbs.db":                   true,
	"ehthumbs.db":                 true,
	"desktop.ini":                 true,
	"icon?":                       true,
	"folder.jpg":                  true,
	"autorun.inf":                 true,
	"$recycle.bin":                true,
	"system volume information":   true,
}

var ignoredExtensions = map[string]bool{
	// Archives.
	"zip": true, "tar": true, "gz": true, "rar": true, "7z": true, "iso": true, "dmg": true,
	// Binaries/system.
	"exe": true, "dll": true, "so": true, "dylib": true, "sys": true, "cab": true, "msi": true,
	// Swap/temp.
	"swp": true, "tmp": true, "bak": true, "ds_store": true, "partial": true, "crdownload": true,
}

// IsNoise decides whether name is system noise rather than human intent.
// It is a pure function of name alone.
func IsNoise(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return true
	}

	lower := strings.ToLower(name)

	if ignoredExact[lower] {
		return true
	}

	if idx := strings.LastIndex(lower, "."); idx != -1 && idx+1 < len(lower) {
		if ignoredExtensions[lower[idx+1:]] {
			return true
		}
	}

	if strings.HasPrefix(lower, "new folder") {
		return true
	}

	return false
}
