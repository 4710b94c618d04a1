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

// Package resolver turns slash-separated paths into inode identifiers by
// walking the DIRENT sets one path component at a time. There is no path
// cache here: every lookup is a fresh walk from the root, the way the
// source resolves a path on every single call. Callers that need to avoid
// re-walking a known-good path are responsible for caching above this
// package; the fuseadapter's kernel-ID table stores paths, not inode IDs,
// so its calls re-walk as well.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skx/redisfs/internal/store"
)

// ErrNotFound is returned when a path component does not exist in its
// parent's directory listing.
var ErrNotFound = errors.New("resolver: no such file or directory")

// Resolver resolves paths against one inode namespace.
type Resolver struct {
	client *store.Client
	prefix string
}

// New returns a Resolver operating against client under prefix.
func New(client *store.Client, prefix string) *Resolver {
	return &Resolver{client: client, prefix: prefix}
}

// Resolve walks path from the root, one component at a time, and returns
// the inode identifier it names. "/" resolves to the root sentinel.
func (r *Resolver) Resolve(path string) (int64, error) {
	if path == "/" || path == "" {
		return store.RootInode, nil
	}

	parentPath, base := splitLast(path)

	parent, err := r.Resolve(parentPath)
	if err != nil {
		return 0, err
	}

	return r.lookupChild(parent, base)
}

// ResolveParent resolves the directory containing path and returns it
// along with path's final component, without requiring that component to
// exist. This is what unlink/rmdir/rename use: the parent must exist,
// the child need not.
func (r *Resolver) ResolveParent(path string) (parent int64, base string, err error) {
	if path == "/" || path == "" {
		return 0, "", fmt.Errorf("resolver: %q has no parent", path)
	}

	parentPath, base := splitLast(path)

	parent, err = r.Resolve(parentPath)
	if err != nil {
		return 0, "", err
	}

	return parent, base, nil
}

// lookupChild fetches the DIRENT set for parent, multi-gets every member's
// NAME field in one round trip, and returns the member whose name matches
// base. This is the spec's single-multiget directory scan (spec.md §4.2).
func (r *Resolver) lookupChild(parent int64, base string) (int64, error) {
	members, err := r.direntMembers(parent)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, ErrNotFound
	}

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = store.InodeKey(r.prefix, m, store.FieldName)
	}

	reply, err := r.client.Do("MGET", args...)
	if err != nil {
		return 0, fmt.Errorf("MGET names under inode %d: %w", parent, err)
	}

	names, ok := reply.([]interface{})
	if !ok || len(names) != len(members) {
		return 0, fmt.Errorf("MGET names under inode %d: malformed reply", parent)
	}

	for i, n := range names {
		nb, ok := n.([]byte)
		if !ok {
			continue
		}
		if string(nb) == base {
			return members[i], nil
		}
	}

	return 0, ErrNotFound
}

// direntMembers returns the member inode IDs of parent's DIRENT set.
func (r *Resolver) direntMembers(parent int64) ([]int64, error) {
	reply, err := r.client.Do("SMEMBERS", store.DirentKey(r.prefix, parent))
	if err != nil {
		if store.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("SMEMBERS dirent %d: %w", parent, err)
	}

	raw, ok := reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("SMEMBERS dirent %d: malformed reply", parent)
	}

	members := make([]int64, 0, len(raw))
	for _, v := range raw {
		b, ok := v.([]byte)
		if !ok {
			continue
		}
		id, err := store.ParseInodeID(string(b))
		if err != nil {
			continue
		}
		members = append(members, id)
	}

	return members, nil
}

// Members exposes a parent's child inode IDs for directory listing.
func (r *Resolver) Members(parent int64) ([]int64, error) {
	return r.direntMembers(parent)
}

// Link adds child to parent's DIRENT set.
func (r *Resolver) Link(parent, child int64) error {
	_, err := r.client.Do("SADD", store.DirentKey(r.prefix, parent), store.FormatInodeID(child))
	if err != nil {
		return fmt.Errorf("SADD dirent %d <- %d: %w", parent, child, err)
	}
	return nil
}

// Unlink removes child from parent's DIRENT set.
func (r *Resolver) Unlink(parent, child int64) error {
	_, err := r.client.Do("SREM", store.DirentKey(r.prefix, parent), store.FormatInodeID(child))
	if err != nil {
		return fmt.Errorf("SREM dirent %d <- %d: %w", parent, child, err)
	}
	return nil
}

// IsEmpty reports whether parent's DIRENT set has no members, used by
// rmdir to enforce ENOTEMPTY.
func (r *Resolver) IsEmpty(parent int64) (bool, error) {
	members, err := r.direntMembers(parent)
	if err != nil {
		return false, err
	}
	return len(members) == 0, nil
}

// splitLast splits path into its parent directory and final component, the
// way the source's own path-splitting helper does: a path with no interior
// slash has the root as its parent.
func splitLast(path string) (parent, base string) {
	path = strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/", path[idx+1:]
	}
	return path[:idx], path[idx+1:]
}
