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

// Package fuseadapter binds internal/ops to jacobsa/fuse's fuseops/fuseutil
// kernel interface. It is intentionally a thin, mechanical layer: every
// method resolves a kernel inode ID to a path or a store inode ID, calls
// straight into ops, and translates the result into the shape the kernel
// expects. Anything the operation layer can do that this binding has no
// op for (a bare rename of an inode that crosses directories is the one
// example this package cannot express as cleanly as ops.Rename can) is
// still fully implemented and tested in internal/ops; this package only
// narrows what the kernel sees, the way the teacher's fs package narrowed
// GCS object semantics down to what FUSE could ask for.
package fuseadapter

import (
	"os"
	"sync"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/sirupsen/logrus"

	"github.com/skx/redisfs/internal/ops"
	"github.com/skx/redisfs/internal/store"
)

// kernelRoot is the fixed inode ID the kernel uses for a mount's root,
// distinct from the store's own root sentinel.
const kernelRoot = fuseops.RootInodeID

// FS adapts an *ops.Ops to fuseutil.FileSystem. Every exported method is
// called on its own goroutine by the kernel dispatch loop (see
// fuseutil.NewFileSystemServer); FS relies entirely on ops' own locking
// and keeps no filesystem state of its own beyond the kernel<->path table.
type FS struct {
	fuseutil.NotImplementedFileSystem

	ops *ops.Ops
	log logrus.FieldLogger

	mu     sync.Mutex
	paths  map[fuseops.InodeID]string // kernel ID -> resolved path
	nextID fuseops.InodeID
}

// New returns an FS serving o.
func New(o *ops.Ops, log logrus.FieldLogger) *FS {
	fs := &FS{
		ops:    o,
		log:    log,
		paths:  make(map[fuseops.InodeID]string),
		nextID: kernelRoot + 1,
	}
	fs.paths[kernelRoot] = "/"
	return fs
}

func (fs *FS) pathFor(id fuseops.InodeID) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.paths[id]
}

// idFor returns the kernel ID already assigned to path, allocating a fresh
// one if the path has no entry. IDs are never reused in this simple
// scheme: after a Forget removes a path's entry, a later lookup of the
// same path gets a fresh ID, so the kernel is never handed a stale one.
func (fs *FS) idFor(path string) fuseops.InodeID {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for id, p := range fs.paths {
		if p == path {
			return id
		}
	}

	id := fs.nextID
	fs.nextID++
	fs.paths[id] = path
	return id
}

func (fs *FS) forget(id fuseops.InodeID) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.paths, id)
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func attrsToFuse(a ops.Attrs) fuseops.InodeAttributes {
	mode := os.FileMode(a.Mode & 0777)
	switch a.Type {
	case store.TypeDir:
		mode |= os.ModeDir
	case store.TypeLink:
		mode |= os.ModeSymlink
	}

	return fuseops.InodeAttributes{
		Size:  a.Size,
		Nlink: a.Nlink,
		Mode:  mode,
		Atime: a.Atime,
		Mtime: a.Mtime,
		Ctime: a.Ctime,
	}
}

func (fs *FS) entryFor(path string, a ops.Attrs) fuseops.ChildInodeEntry {
	return fuseops.ChildInodeEntry{
		Child:      fs.idFor(path),
		Attributes: attrsToFuse(a),
	}
}

////////////////////////////////////////////////////////////////////////
// Lifecycle
////////////////////////////////////////////////////////////////////////

func (fs *FS) Init(op *fuseops.InitOp) {
	op.Respond(nil)
}

func (fs *FS) ForgetInode(op *fuseops.ForgetInodeOp) {
	fs.forget(op.ID)
	op.Respond(nil)
}

////////////////////////////////////////////////////////////////////////
// Lookup and attributes
////////////////////////////////////////////////////////////////////////

func (fs *FS) LookUpInode(op *fuseops.LookUpInodeOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	parentPath := fs.pathFor(op.Parent)
	path := childPath(parentPath, op.Name)

	_, attrs, gerr := fs.ops.GetAttr(path)
	if gerr != nil {
		err = gerr
		return
	}

	op.Entry = fs.entryFor(path, attrs)
}

func (fs *FS) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	path := fs.pathFor(op.Inode)
	_, attrs, gerr := fs.ops.GetAttr(path)
	if gerr != nil {
		err = gerr
		return
	}

	op.Attributes = attrsToFuse(attrs)
}

func (fs *FS) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	path := fs.pathFor(op.Inode)
	id, attrs, gerr := fs.ops.GetAttr(path)
	if gerr != nil {
		err = gerr
		return
	}

	if op.Mode != nil {
		if err = fs.ops.Chmod(id, uint32(*op.Mode)&0777); err != nil {
			return
		}
	}
	if op.Size != nil {
		if *op.Size == 0 {
			if err = fs.ops.Truncate(id); err != nil {
				return
			}
		}
	}
	if op.Atime != nil || op.Mtime != nil {
		atime, mtime := attrs.Atime, attrs.Mtime
		if op.Atime != nil {
			atime = *op.Atime
		}
		if op.Mtime != nil {
			mtime = *op.Mtime
		}
		if err = fs.ops.Utimens(id, atime, mtime); err != nil {
			return
		}
	}

	_, attrs, err = fs.ops.GetAttr(path)
	if err != nil {
		return
	}
	op.Attributes = attrsToFuse(attrs)
}

////////////////////////////////////////////////////////////////////////
// Directory operations
////////////////////////////////////////////////////////////////////////

func (fs *FS) MkDir(op *fuseops.MkDirOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	parentPath := fs.pathFor(op.Parent)
	path := childPath(parentPath, op.Name)

	if _, err = fs.ops.Mkdir(parentPath, op.Name, uint32(op.Mode)&0777, 0, 0); err != nil {
		return
	}

	_, attrs, gerr := fs.ops.GetAttr(path)
	if gerr != nil {
		err = gerr
		return
	}
	op.Entry = fs.entryFor(path, attrs)
}

func (fs *FS) RmDir(op *fuseops.RmDirOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	parentPath := fs.pathFor(op.Parent)
	err = fs.ops.Rmdir(childPath(parentPath, op.Name))
}

func (fs *FS) OpenDir(op *fuseops.OpenDirOp) {
	op.Respond(nil)
}

func (fs *FS) ReadDir(op *fuseops.ReadDirOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	path := fs.pathFor(op.Inode)
	entries, lerr := fs.ops.ReadDir(path)
	if lerr != nil {
		err = lerr
		return
	}

	var offset fuseops.DirOffset
	for i, e := range entries {
		if fuseops.DirOffset(i) < op.Offset {
			continue
		}

		childType := fuseutil.DT_File
		if e.Type == store.TypeDir {
			childType = fuseutil.DT_Directory
		} else if e.Type == store.TypeLink {
			childType = fuseutil.DT_Link
		}

		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: offset + 1,
			Inode:  fs.idFor(childPath(path, e.Name)),
			Name:   e.Name,
			Type:   childType,
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
		offset++
	}
}

func (fs *FS) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) {
	op.Respond(nil)
}

////////////////////////////////////////////////////////////////////////
// File operations
////////////////////////////////////////////////////////////////////////

func (fs *FS) CreateFile(op *fuseops.CreateFileOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	parentPath := fs.pathFor(op.Parent)
	path := childPath(parentPath, op.Name)

	if _, err = fs.ops.Create(parentPath, op.Name, uint32(op.Mode)&0777, 0, 0); err != nil {
		return
	}

	_, attrs, gerr := fs.ops.GetAttr(path)
	if gerr != nil {
		err = gerr
		return
	}
	op.Entry = fs.entryFor(path, attrs)
}

func (fs *FS) CreateSymlink(op *fuseops.CreateSymlinkOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	parentPath := fs.pathFor(op.Parent)
	path := childPath(parentPath, op.Name)

	if _, err = fs.ops.Symlink(parentPath, op.Name, op.Target, 0, 0); err != nil {
		return
	}

	_, attrs, gerr := fs.ops.GetAttr(path)
	if gerr != nil {
		err = gerr
		return
	}
	op.Entry = fs.entryFor(path, attrs)
}

func (fs *FS) ReadSymlink(op *fuseops.ReadSymlinkOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	path := fs.pathFor(op.Inode)
	op.Target, err = fs.ops.Readlink(path)
}

func (fs *FS) Unlink(op *fuseops.UnlinkOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	parentPath := fs.pathFor(op.Parent)
	err = fs.ops.Unlink(childPath(parentPath, op.Name))
}

func (fs *FS) Rename(op *fuseops.RenameOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	oldPath := childPath(fs.pathFor(op.OldParent), op.OldName)
	newPath := childPath(fs.pathFor(op.NewParent), op.NewName)

	err = fs.ops.Rename(oldPath, newPath)
}

func (fs *FS) OpenFile(op *fuseops.OpenFileOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	path := fs.pathFor(op.Inode)
	_, err = fs.ops.Open(path)
}

func (fs *FS) ReadFile(op *fuseops.ReadFileOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	path := fs.pathFor(op.Inode)
	id, _, gerr := fs.ops.GetAttr(path)
	if gerr != nil {
		err = gerr
		return
	}

	data, rerr := fs.ops.Read(id, op.Offset, int64(len(op.Dst)))
	if rerr != nil {
		err = rerr
		return
	}

	op.BytesRead = copy(op.Dst, data)
}

func (fs *FS) WriteFile(op *fuseops.WriteFileOp) {
	var err error
	defer fuseutil.RespondToOp(op, &err)

	path := fs.pathFor(op.Inode)
	id, _, gerr := fs.ops.GetAttr(path)
	if gerr != nil {
		err = gerr
		return
	}

	_, err = fs.ops.Write(id, op.Data, op.Offset)
}

func (fs *FS) SyncFile(op *fuseops.SyncFileOp) {
	op.Respond(nil)
}

func (fs *FS) FlushFile(op *fuseops.FlushFileOp) {
	op.Respond(nil)
}

func (fs *FS) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) {
	op.Respond(nil)
}

// Mount mounts fs at dir with the given read-only flag and returns as soon
// as the mount is in place, closing ready if it is non-nil. Mirrors the
// teacher main.go's mountedFileSystem lifecycle: MountedFileSystem.Join()
// is what callers should wait on.
func Mount(dir string, fs *FS, readOnly bool, ready chan<- struct{}) (*fuse.MountedFileSystem, error) {
	cfg := &fuse.MountConfig{
		ReadOnly: readOnly,
		FSName:   "redisfs",
	}

	server := fuseutil.NewFileSystemServer(fs)

	mfs, err := fuse.Mount(dir, server, cfg)
	if err != nil {
		return nil, err
	}

	if ready != nil {
		close(ready)
	}

	return mfs, nil
}
