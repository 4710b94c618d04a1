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

// Package ops implements the POSIX-shaped operation surface that the rest
// of redisfs is built around: every call resolves a path (or works on an
// inode id the caller already resolved), touches the store through
// internal/inode and internal/resolver, and returns a syscall.Errno for a
// POSIX-level failure the way the teacher's fs package returns fuse.Errno;
// a failure of the store itself is returned as the underlying error.
// Every exported method serializes on the same lock,
// playing the role the teacher's syncutil.InvariantMutex plays for the
// in-memory inode table: here the "invariant" being protected is the
// single RESP connection's request/response ordering, not memory shared
// between goroutines, but the discipline (hold one mutex for every
// operation, never partially released) is identical.
package ops

import (
	"fmt"
	"syscall"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"

	"github.com/skx/redisfs/internal/inode"
	"github.com/skx/redisfs/internal/resolver"
	"github.com/skx/redisfs/internal/store"
)

// Attrs is the attribute record handed back by GetAttr, matching the
// fields a POSIX stat(2) call needs.
type Attrs = inode.Attrs

// DirEntry is one entry in a ReadDir listing.
type DirEntry struct {
	Inode int64
	Name  string
	Type  string
}

// Ops is the filesystem's single Operation layer, the "sole subject" of
// the design this package implements. One Ops instance serves exactly one
// mount.
type Ops struct {
	mu syncutil.InvariantMutex

	client   *store.Client
	inodes   *inode.Store
	resolver *resolver.Resolver
	clock    timeutil.Clock
	log      logrus.FieldLogger

	readOnly bool
	fastMode bool
}

// Config bundles the construction-time parameters for an Ops instance.
type Config struct {
	Client   *store.Client
	Inodes   *inode.Store
	Resolver *resolver.Resolver
	Clock    timeutil.Clock
	Log      logrus.FieldLogger
	ReadOnly bool
	FastMode bool
}

// New constructs an Ops from cfg.
func New(cfg Config) *Ops {
	o := &Ops{
		client:   cfg.Client,
		inodes:   cfg.Inodes,
		resolver: cfg.Resolver,
		clock:    cfg.Clock,
		log:      cfg.Log,
		readOnly: cfg.ReadOnly,
		fastMode: cfg.FastMode,
	}
	o.mu = syncutil.NewInvariantMutex(o.checkInvariants)
	return o
}

// checkInvariants is run by mu on every Unlock while invariant checking is
// enabled (syncutil.EnableInvariantChecking). The one invariant worth
// asserting here is that construction-time configuration never mutates
// out from under a live Ops.
func (o *Ops) checkInvariants() {
	if o.client == nil || o.inodes == nil || o.resolver == nil {
		panic("ops: Ops used with a nil dependency")
	}
}

// lock acquires the global operation lock and verifies the store
// connection is alive, matching the source's redis_alive() check at the
// top of every handler. A failed reconnect ends the process: the
// filesystem cannot serve any request without its store.
func (o *Ops) lock() error {
	o.mu.Lock()
	if err := o.client.Ensure(); err != nil {
		o.mu.Unlock()
		o.log.WithError(err).Fatal("ops: store reconnect failed")
		return err
	}
	return nil
}

func (o *Ops) unlock() {
	o.mu.Unlock()
}

func (o *Ops) checkWritable() error {
	if o.readOnly {
		return syscall.EPERM
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case err == resolver.ErrNotFound:
		return syscall.ENOENT
	default:
		return err
	}
}

// GetAttr resolves path and returns its attributes. The root path resolves
// to the root sentinel and its attributes are synthesized rather than read
// from the store, since "/" has no inode record of its own.
func (o *Ops) GetAttr(path string) (int64, Attrs, error) {
	if err := o.lock(); err != nil {
		return 0, Attrs{}, err
	}
	defer o.unlock()

	id, err := o.resolver.Resolve(path)
	if err != nil {
		return 0, Attrs{}, translate(err)
	}

	if id == store.RootInode {
		return id, rootAttrs(), nil
	}

	attrs, err := o.inodes.ReadAttrs(id)
	if err != nil {
		return 0, Attrs{}, err
	}

	return id, attrs, nil
}

// rootAttrs synthesizes attributes for "/", which has no backing inode
// record of its own: it is the sentinel every top-level DIRENT set hangs
// off of, not a row in the store (spec.md §3).
func rootAttrs() Attrs {
	return Attrs{
		Type:  store.TypeDir,
		Mode:  0755,
		Nlink: 1,
	}
}

// ReadDir lists the members of the directory at path. An unresolvable path
// or a non-directory inode reports success with no entries rather than an
// error, matching fs_readdir's find_inode-fails-but-still-returns-0 behavior
// (redisfs.c:496-501): the source only ever lists what it can find.
func (o *Ops) ReadDir(path string) ([]DirEntry, error) {
	if err := o.lock(); err != nil {
		return nil, err
	}
	defer o.unlock()

	id, err := o.resolver.Resolve(path)
	if err != nil {
		return []DirEntry{}, nil
	}

	if id != store.RootInode {
		attrs, err := o.inodes.ReadAttrs(id)
		if err != nil {
			return nil, err
		}
		if attrs.Type != store.TypeDir {
			return []DirEntry{}, nil
		}
	}

	members, err := o.resolver.Members(id)
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(members))
	for _, m := range members {
		a, err := o.inodes.ReadAttrs(m)
		if err != nil {
			return nil, err
		}
		name, err := o.readName(m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DirEntry{Inode: m, Name: name, Type: a.Type})
	}

	return entries, nil
}

func (o *Ops) readName(id int64) (string, error) {
	key := store.InodeKey(o.inodes.Prefix(), id, store.FieldName)
	reply, err := o.client.Do("GET", key)
	if err != nil {
		if store.IsNil(err) {
			return "", nil
		}
		return "", fmt.Errorf("GET name for inode %d: %w", id, err)
	}
	b, _ := reply.([]byte)
	return string(b), nil
}

// Mkdir creates a new directory entry named base under parentPath.
func (o *Ops) Mkdir(parentPath, base string, mode uint32, uid, gid uint32) (int64, error) {
	if err := o.lock(); err != nil {
		return 0, err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return 0, err
	}

	parent, err := o.resolver.Resolve(parentPath)
	if err != nil {
		return 0, translate(err)
	}

	id, err := o.inodes.Create(inode.CreateParams{
		Type: store.TypeDir,
		Name: base,
		Mode: mode,
		UID:  uid,
		GID:  gid,
	})
	if err != nil {
		return 0, err
	}

	if err := o.resolver.Link(parent, id); err != nil {
		return 0, err
	}

	return id, nil
}

// Create makes a new regular file named base under parentPath and returns
// its inode id, ready for immediate Write calls.
func (o *Ops) Create(parentPath, base string, mode uint32, uid, gid uint32) (int64, error) {
	if err := o.lock(); err != nil {
		return 0, err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return 0, err
	}

	parent, err := o.resolver.Resolve(parentPath)
	if err != nil {
		return 0, translate(err)
	}

	id, err := o.inodes.Create(inode.CreateParams{
		Type: store.TypeFile,
		Name: base,
		Mode: mode,
		UID:  uid,
		GID:  gid,
	})
	if err != nil {
		return 0, err
	}

	if err := o.resolver.Link(parent, id); err != nil {
		return 0, err
	}

	return id, nil
}

// Open resolves path to its inode id and touches ATIME. In fast mode it
// short-circuits entirely and reports success without a store round trip,
// even when path does not exist, matching the source's open() fast path.
func (o *Ops) Open(path string) (int64, error) {
	if o.fastMode {
		return 0, nil
	}

	if err := o.lock(); err != nil {
		return 0, err
	}
	defer o.unlock()

	id, err := o.resolver.Resolve(path)
	if err != nil {
		return 0, translate(err)
	}

	if err := o.inodes.TouchAtime(id); err != nil {
		return 0, err
	}

	return id, nil
}

// Access resolves path and succeeds as long as it exists; in fast mode it
// short-circuits entirely and reports success without a store round trip,
// matching the source's access() fast path.
func (o *Ops) Access(path string) error {
	if o.fastMode {
		return nil
	}

	if err := o.lock(); err != nil {
		return err
	}
	defer o.unlock()

	_, err := o.resolver.Resolve(path)
	return translate(err)
}

// Read returns up to size bytes of inode id's data starting at offset.
func (o *Ops) Read(id int64, offset, size int64) ([]byte, error) {
	if err := o.lock(); err != nil {
		return nil, err
	}
	defer o.unlock()

	return o.inodes.ReadData(id, offset, size)
}

// Write stores data at offset in inode id.
func (o *Ops) Write(id int64, data []byte, offset int64) (int, error) {
	if err := o.lock(); err != nil {
		return 0, err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return 0, err
	}

	return o.inodes.WriteData(id, data, offset, o.fastMode)
}

// Truncate resets inode id's data to zero length.
func (o *Ops) Truncate(id int64) error {
	if err := o.lock(); err != nil {
		return err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return err
	}

	return o.inodes.Truncate(id)
}

// Symlink creates a LINK inode named base under parentPath pointing at
// target.
func (o *Ops) Symlink(parentPath, base, target string, uid, gid uint32) (int64, error) {
	if err := o.lock(); err != nil {
		return 0, err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return 0, err
	}

	parent, err := o.resolver.Resolve(parentPath)
	if err != nil {
		return 0, translate(err)
	}

	id, err := o.inodes.Create(inode.CreateParams{
		Type:   store.TypeLink,
		Name:   base,
		Mode:   0777,
		UID:    uid,
		GID:    gid,
		Target: target,
	})
	if err != nil {
		return 0, err
	}

	if err := o.resolver.Link(parent, id); err != nil {
		return 0, err
	}

	return id, nil
}

// Readlink returns the target of a symlink inode.
func (o *Ops) Readlink(path string) (string, error) {
	if err := o.lock(); err != nil {
		return "", err
	}
	defer o.unlock()

	id, err := o.resolver.Resolve(path)
	if err != nil {
		return "", translate(err)
	}

	target, err := o.inodes.ReadTarget(id)
	if err == inode.ErrNoTarget {
		return "", syscall.ENOENT
	}
	if err != nil {
		return "", err
	}

	return target, nil
}

// Unlink removes a directory entry and its backing inode.
func (o *Ops) Unlink(path string) error {
	if err := o.lock(); err != nil {
		return err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return err
	}

	parent, base, err := o.resolver.ResolveParent(path)
	if err != nil {
		return translate(err)
	}

	id, err := o.resolver.Resolve(path)
	if err != nil {
		return translate(err)
	}

	if err := o.resolver.Unlink(parent, id); err != nil {
		return err
	}

	return o.inodes.Remove(id)
}

// Rmdir removes an empty directory entry and its backing inode.
func (o *Ops) Rmdir(path string) error {
	if err := o.lock(); err != nil {
		return err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return err
	}

	parent, _, err := o.resolver.ResolveParent(path)
	if err != nil {
		return translate(err)
	}

	id, err := o.resolver.Resolve(path)
	if err != nil {
		return translate(err)
	}

	empty, err := o.resolver.IsEmpty(id)
	if err != nil {
		return err
	}
	if !empty {
		return syscall.ENOTEMPTY
	}

	if err := o.resolver.Unlink(parent, id); err != nil {
		return err
	}

	return o.inodes.Remove(id)
}

// Rename moves the entry at oldPath to newPath, unlinking any inode that
// already occupies newPath first. The source left a stale destination
// entry behind on overwrite; this is the corrected behavior (spec.md §9).
func (o *Ops) Rename(oldPath, newPath string) error {
	if err := o.lock(); err != nil {
		return err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return err
	}

	oldParent, _, err := o.resolver.ResolveParent(oldPath)
	if err != nil {
		return translate(err)
	}

	id, err := o.resolver.Resolve(oldPath)
	if err != nil {
		return translate(err)
	}

	newParent, newBase, err := o.resolver.ResolveParent(newPath)
	if err != nil {
		return translate(err)
	}

	if existing, err := o.resolver.Resolve(newPath); err == nil {
		if existing != id {
			if err := o.resolver.Unlink(newParent, existing); err != nil {
				return err
			}
			if err := o.inodes.Remove(existing); err != nil {
				return err
			}
		}
	} else if err != resolver.ErrNotFound {
		return err
	}

	if err := o.resolver.Unlink(oldParent, id); err != nil {
		return err
	}
	if err := o.resolver.Link(newParent, id); err != nil {
		return err
	}

	return o.renameField(id, newBase)
}

func (o *Ops) renameField(id int64, newName string) error {
	_, err := o.client.Do("SET", store.InodeKey(o.inodes.Prefix(), id, store.FieldName), newName)
	if err != nil {
		return fmt.Errorf("rename: SET name for inode %d: %w", id, err)
	}
	return nil
}

// Chmod updates an inode's permission bits.
func (o *Ops) Chmod(id int64, mode uint32) error {
	if err := o.lock(); err != nil {
		return err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return err
	}

	return o.inodes.UpdateMode(id, mode)
}

// Chown updates an inode's owning uid/gid.
func (o *Ops) Chown(id int64, uid, gid uint32) error {
	if err := o.lock(); err != nil {
		return err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return err
	}

	return o.inodes.UpdateOwner(id, uid, gid)
}

// Utimens updates an inode's access and modification times.
func (o *Ops) Utimens(id int64, atime, mtime time.Time) error {
	if err := o.lock(); err != nil {
		return err
	}
	defer o.unlock()

	if err := o.checkWritable(); err != nil {
		return err
	}

	return o.inodes.UpdateTimes(id, atime, mtime)
}
