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

// Package pidfile writes and removes the mount daemon's process-id file,
// the Go equivalent of the source's writePID (redisfs.c).
package pidfile

import (
	"fmt"
	"os"
	"strconv"
)

// Write truncates (or creates) path and writes the calling process's PID
// to it, matching writePID's O_CREAT|O_TRUNC|O_WRONLY, 0644 semantics.
func Write(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("pidfile: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return fmt.Errorf("pidfile: write %s: %w", path, err)
	}

	return nil
}

// Remove deletes path, ignoring a not-exist error so shutdown cleanup is
// idempotent.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: remove %s: %w", path, err)
	}
	return nil
}
