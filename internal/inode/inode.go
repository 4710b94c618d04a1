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

// Package inode wraps the group of per-field keys that make up one redisfs
// inode: creation, attribute reads and updates, data I/O and teardown. It
// plays the role the teacher's mutable.Content and lease.FileLeaser play
// for a GCS object's local cache, but here every read and write is a RESP
// round trip against the field keys themselves — there is no local
// buffering, matching spec.md's explicit exclusion of partial-page caching.
package inode

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/skx/redisfs/internal/store"
)

// Attrs is the POSIX-style attribute record assembled from an inode's
// per-field keys.
type Attrs struct {
	Type  string
	Mode  uint32
	Size  uint64
	UID   uint32
	GID   uint32
	Atime time.Time
	Ctime time.Time
	Mtime time.Time
	Nlink uint32
}

// Store reads, writes and deletes the attribute and data fields of inodes
// under one key prefix.
type Store struct {
	client *store.Client
	prefix string
	clock  timeutil.Clock
}

// New returns a Store operating against client under prefix.
func New(client *store.Client, prefix string, clock timeutil.Clock) *Store {
	return &Store{client: client, prefix: prefix, clock: clock}
}

// Prefix returns the key prefix this Store operates under, for callers
// that need to address an inode's fields directly (rename's NAME update,
// for instance).
func (s *Store) Prefix() string {
	return s.prefix
}

// NextID allocates a fresh inode identifier from the global counter. The
// counter is never reused or decremented.
func (s *Store) NextID() (int64, error) {
	reply, err := s.client.Do("INCR", store.GlobalInodeKey(s.prefix))
	if err != nil {
		return 0, fmt.Errorf("INCR %s: %w", store.GlobalInodeKey(s.prefix), err)
	}

	id, ok := reply.(int64)
	if !ok {
		return 0, fmt.Errorf("INCR %s: unexpected reply type %T", store.GlobalInodeKey(s.prefix), reply)
	}

	return id, nil
}

// CreateParams bundles the per-type fields needed to populate a freshly
// allocated inode in a single grouped write.
type CreateParams struct {
	Type   string // TypeDir, TypeFile or TypeLink
	Name   string
	Mode   uint32
	UID    uint32
	GID    uint32
	Target string // LINK only
}

// Create allocates a new inode and writes every required attribute field
// for it in one grouped MSET, matching the source's "allocate, then
// populate" lifecycle (spec.md §3, Lifecycle).
func (s *Store) Create(p CreateParams) (id int64, err error) {
	id, err = s.NextID()
	if err != nil {
		return 0, err
	}

	now := s.nowSeconds()
	args := []interface{}{
		store.InodeKey(s.prefix, id, store.FieldName), p.Name,
		store.InodeKey(s.prefix, id, store.FieldType), p.Type,
		store.InodeKey(s.prefix, id, store.FieldMode), strconv.FormatUint(uint64(p.Mode), 10),
		store.InodeKey(s.prefix, id, store.FieldUID), strconv.FormatUint(uint64(p.UID), 10),
		store.InodeKey(s.prefix, id, store.FieldGID), strconv.FormatUint(uint64(p.GID), 10),
		store.InodeKey(s.prefix, id, store.FieldSize), "0",
		store.InodeKey(s.prefix, id, store.FieldAtime), now,
		store.InodeKey(s.prefix, id, store.FieldCtime), now,
		store.InodeKey(s.prefix, id, store.FieldMtime), now,
		store.InodeKey(s.prefix, id, store.FieldLink), "1",
	}

	if p.Type == store.TypeLink {
		args = append(args, store.InodeKey(s.prefix, id, store.FieldTarget), p.Target)
	}

	if _, err = s.client.Do("MSET", args...); err != nil {
		return 0, fmt.Errorf("MSET for new inode %d: %w", id, err)
	}

	return id, nil
}

// ReadAttrs assembles a POSIX-style attribute record for inode id with a
// single grouped multi-get, OR-ing in the directory/link mode bits the way
// the source composes st_mode from TYPE.
func (s *Store) ReadAttrs(id int64) (Attrs, error) {
	fields := []string{
		store.FieldType, store.FieldMode, store.FieldSize, store.FieldUID,
		store.FieldGID, store.FieldAtime, store.FieldCtime, store.FieldMtime,
		store.FieldLink,
	}

	args := make([]interface{}, len(fields))
	for i, f := range fields {
		args[i] = store.InodeKey(s.prefix, id, f)
	}

	reply, err := s.client.Do("MGET", args...)
	if err != nil {
		return Attrs{}, fmt.Errorf("MGET attrs for inode %d: %w", id, err)
	}

	values, ok := reply.([]interface{})
	if !ok || len(values) != len(fields) {
		return Attrs{}, fmt.Errorf("MGET attrs for inode %d: malformed reply", id)
	}

	var a Attrs
	a.Type = stringField(values[0])
	a.Mode = uint32(uintField(values[1]))
	a.Size = uintField(values[2])
	a.UID = uint32(uintField(values[3]))
	a.GID = uint32(uintField(values[4]))
	a.Atime = timeField(values[5])
	a.Ctime = timeField(values[6])
	a.Mtime = timeField(values[7])
	a.Nlink = uint32(uintField(values[8]))
	if a.Nlink == 0 {
		a.Nlink = 1
	}

	switch a.Type {
	case store.TypeDir:
		a.Mode |= modeBitDir
	case store.TypeLink:
		a.Mode |= modeBitLink
	}

	return a, nil
}

// UpdateMode implements chmod: MODE and MTIME, grouped.
func (s *Store) UpdateMode(id int64, mode uint32) error {
	_, err := s.client.Do("MSET",
		store.InodeKey(s.prefix, id, store.FieldMode), strconv.FormatUint(uint64(mode), 10),
		store.InodeKey(s.prefix, id, store.FieldMtime), s.nowSeconds(),
	)
	if err != nil {
		return fmt.Errorf("chmod inode %d: %w", id, err)
	}
	return nil
}

// UpdateOwner implements chown: UID, GID and MTIME, grouped.
func (s *Store) UpdateOwner(id int64, uid, gid uint32) error {
	_, err := s.client.Do("MSET",
		store.InodeKey(s.prefix, id, store.FieldUID), strconv.FormatUint(uint64(uid), 10),
		store.InodeKey(s.prefix, id, store.FieldGID), strconv.FormatUint(uint64(gid), 10),
		store.InodeKey(s.prefix, id, store.FieldMtime), s.nowSeconds(),
	)
	if err != nil {
		return fmt.Errorf("chown inode %d: %w", id, err)
	}
	return nil
}

// UpdateTimes implements utimens: ATIME and MTIME, grouped.
func (s *Store) UpdateTimes(id int64, atime, mtime time.Time) error {
	_, err := s.client.Do("MSET",
		store.InodeKey(s.prefix, id, store.FieldAtime), formatSeconds(atime),
		store.InodeKey(s.prefix, id, store.FieldMtime), formatSeconds(mtime),
	)
	if err != nil {
		return fmt.Errorf("utimens inode %d: %w", id, err)
	}
	return nil
}

// TouchAtime writes ATIME alone, used by open in non-fast mode.
func (s *Store) TouchAtime(id int64) error {
	_, err := s.client.Do("SET", store.InodeKey(s.prefix, id, store.FieldAtime), s.nowSeconds())
	if err != nil {
		return fmt.Errorf("touch atime inode %d: %w", id, err)
	}
	return nil
}

// ReadTarget returns the LINK target for a symlink inode.
func (s *Store) ReadTarget(id int64) (string, error) {
	reply, err := s.client.Do("GET", store.InodeKey(s.prefix, id, store.FieldTarget))
	if err != nil {
		if store.IsNil(err) {
			return "", ErrNoTarget
		}
		return "", fmt.Errorf("GET target for inode %d: %w", id, err)
	}

	return stringField(reply), nil
}

// Remove deletes every attribute field for id, whether or not each field
// was actually populated, matching the source's unconditional twelve-key
// teardown.
func (s *Store) Remove(id int64) error {
	args := make([]interface{}, len(store.AllFields))
	for i, f := range store.AllFields {
		args[i] = store.InodeKey(s.prefix, id, f)
	}

	if _, err := s.client.Do("DEL", args...); err != nil {
		return fmt.Errorf("DEL attrs for inode %d: %w", id, err)
	}

	return nil
}

func (s *Store) nowSeconds() string {
	return formatSeconds(s.clock.Now())
}

func formatSeconds(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
