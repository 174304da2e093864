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

package state

import "hash/fnv"

// Reserved inodes per spec §4.1: root, the metadata directory, the search
// directory. Every dynamically derived inode must stay disjoint from these.
const (
	RootInode     uint64 = 1
	MetadataInode uint64 = 2
	SearchInode   uint64 = 3
)

// dynamicInodeBit is reserved so dynamic inodes never collide with small,
// kernel-expected reserved inodes — spec §9 "determinism of derived inodes".
const dynamicInodeBit = uint64(1) << 63

// domain separators keep the phrase-inode space and the result-entry-inode
// space from colliding even when their hash inputs happen to coincide.
const (
	domainQuery  byte = 'Q'
	domainResult byte = 'R'
)

func hashWithDomain(domain byte, s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte{domain})
	h.Write([]byte(s))
	return h.Sum64() | dynamicInodeBit
}

// QueryInode derives the stable inode for a query phrase.
func QueryInode(phrase string) uint64 {
	return hashWithDomain(domainQuery, phrase)
}

// ResultInode derives the stable inode for a result entry, scoped by its
// parent search-phrase inode so the same filename under two different
// phrases never collides.
func ResultInode(parent uint64, encodedName string) uint64 {
	return hashWithDomain(domainResult, encode64(parent)+"\x00"+encodedName)
}

func encode64(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
