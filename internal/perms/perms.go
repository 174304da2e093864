// Copyright 2015 Google Inc. All Rights Reserved.
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

// System permissions-related code.
package perms

import (
	"fmt"
	"os"
	"strconv"
)

// MyUserAndGroup returns the UID and GID of the user running this process.
func MyUserAndGroup() (uid uint32, gid uint32, err error) {
	uid = uint32(os.Getuid())
	gid = uint32(os.Getgid())
	return
}

// MountIdentity returns the UID/GID that served files should be attributed
// to. When the process is running elevated (invoked via sudo), it resolves
// SUDO_UID/SUDO_GID so the mount is served with the invoking user's
// identity rather than root's, per spec §6; otherwise it falls back to
// MyUserAndGroup.
func MountIdentity() (uid uint32, gid uint32, err error) {
	uid, gid, err = MyUserAndGroup()
	if err != nil {
		return
	}

	if uid != 0 {
		return
	}

	sudoUID, sudoUIDSet := os.LookupEnv("SUDO_UID")
	sudoGID, sudoGIDSet := os.LookupEnv("SUDO_GID")
	if !sudoUIDSet || !sudoGIDSet {
		return
	}

	parsedUID, parseErr := strconv.ParseUint(sudoUID, 10, 32)
	if parseErr != nil {
		err = fmt.Errorf("parsing SUDO_UID %q: %w", sudoUID, parseErr)
		return
	}

	parsedGID, parseErr := strconv.ParseUint(sudoGID, 10, 32)
	if parseErr != nil {
		err = fmt.Errorf("parsing SUDO_GID %q: %w", sudoGID, parseErr)
		return
	}

	uid = uint32(parsedUID)
	gid = uint32(parsedGID)
	return
}
