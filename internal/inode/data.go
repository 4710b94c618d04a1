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

package inode

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/skx/redisfs/internal/store"
)

// ErrNoTarget is returned by ReadTarget when a LINK inode has no TARGET
// field, which should never happen for a well-formed link but is surfaced
// rather than panicking.
var ErrNoTarget = errors.New("inode: symlink has no target")

const (
	modeBitDir  = 1 << 31 // mirrors os.ModeDir's role in composing st_mode
	modeBitLink = 1 << 30 // mirrors os.ModeSymlink's role
)

// ReadData issues a ranged read of the DATA field for [offset, offset+size).
// GETRANGE's end index is inclusive, so the wire command uses
// offset+size-1 (spec.md §9 calls out the source's own off-by-one here).
// If the modern store rejects GETRANGE, the read is retried under the
// legacy SUBSTR name with identical argument semantics.
func (s *Store) ReadData(id int64, offset, size int64) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}

	key := store.InodeKey(s.prefix, id, store.FieldData)
	end := offset + size - 1

	reply, err := s.client.Do("GETRANGE", key, strconv.FormatInt(offset, 10), strconv.FormatInt(end, 10))
	if err != nil && store.IsSemanticError(err) {
		reply, err = s.client.Do("SUBSTR", key, strconv.FormatInt(offset, 10), strconv.FormatInt(end, 10))
	}
	if err != nil {
		if store.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("GETRANGE/SUBSTR %s: %w", key, err)
	}

	data, _ := reply.([]byte)
	return data, nil
}

// WriteData implements the source's two write paths: a full overwrite when
// offset is zero, and an append-style pipeline otherwise. fastMode skips
// the MTIME update on offset writes, per spec.md §4.3/§4.4.
func (s *Store) WriteData(id int64, data []byte, offset int64, fastMode bool) (int, error) {
	key := store.InodeKey(s.prefix, id, store.FieldData)

	if offset == 0 {
		_, err := s.client.Do("MSET",
			store.InodeKey(s.prefix, id, store.FieldSize), strconv.Itoa(len(data)),
			store.InodeKey(s.prefix, id, store.FieldMtime), s.nowSeconds(),
			key, data,
		)
		if err != nil {
			return 0, fmt.Errorf("overwrite inode %d: %w", id, err)
		}
		return len(data), nil
	}

	cmds := []store.Command{
		{Name: "INCRBY", Args: []interface{}{store.InodeKey(s.prefix, id, store.FieldSize), len(data)}},
		{Name: "APPEND", Args: []interface{}{key, data}},
	}
	if !fastMode {
		cmds = append(cmds, store.Command{
			Name: "SET",
			Args: []interface{}{store.InodeKey(s.prefix, id, store.FieldMtime), s.nowSeconds()},
		})
	}

	replies, err := s.client.Pipeline(cmds)
	if err != nil {
		return 0, fmt.Errorf("append-write inode %d: %w", id, err)
	}
	for _, r := range replies {
		if rerr, ok := r.(error); ok {
			return 0, fmt.Errorf("append-write inode %d: %w", id, rerr)
		}
	}

	return len(data), nil
}

// Truncate implements the source's truncate-to-zero-only semantics: delete
// DATA, reset SIZE and MTIME. Truncation to a non-zero size is explicitly
// out of scope (spec.md §4.3).
func (s *Store) Truncate(id int64) error {
	key := store.InodeKey(s.prefix, id, store.FieldData)

	if _, err := s.client.Do("DEL", key); err != nil {
		return fmt.Errorf("DEL data for inode %d: %w", id, err)
	}

	_, err := s.client.Do("MSET",
		store.InodeKey(s.prefix, id, store.FieldSize), "0",
		store.InodeKey(s.prefix, id, store.FieldMtime), s.nowSeconds(),
	)
	if err != nil {
		return fmt.Errorf("reset size/mtime for inode %d: %w", id, err)
	}

	return nil
}
