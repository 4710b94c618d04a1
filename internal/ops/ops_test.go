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

package ops_test

import (
	"syscall"
	"testing"

	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/redisfs/internal/inode"
	"github.com/skx/redisfs/internal/ops"
	"github.com/skx/redisfs/internal/resolver"
	"github.com/skx/redisfs/internal/store"
	"github.com/skx/redisfs/internal/store/fakeconn"
)

func newTestOps(t *testing.T, readOnly, fastMode bool) *ops.Ops {
	t.Helper()

	b := fakeconn.NewBackend()
	c := store.New("localhost", 6379, timeutil.RealClock(), logrus.StandardLogger())
	c.SetDialer(fakeconn.Dialer(b))
	require.NoError(t, c.Ensure())

	ino := inode.New(c, "skx", timeutil.RealClock())
	res := resolver.New(c, "skx")

	return ops.New(ops.Config{
		Client:   c,
		Inodes:   ino,
		Resolver: res,
		Clock:    timeutil.RealClock(),
		Log:      logrus.StandardLogger(),
		ReadOnly: readOnly,
		FastMode: fastMode,
	})
}

func TestGetAttrRoot(t *testing.T) {
	o := newTestOps(t, false, false)

	id, attrs, err := o.GetAttr("/")
	require.NoError(t, err)
	assert.Equal(t, store.RootInode, id)
	assert.Equal(t, store.TypeDir, attrs.Type)
}

func TestMkdirCreateWriteReadRoundTrip(t *testing.T) {
	o := newTestOps(t, false, false)

	dirID, err := o.Mkdir("/", "home", 0755, 0, 0)
	require.NoError(t, err)

	fileID, err := o.Create("/home", "notes.txt", 0644, 1000, 1000)
	require.NoError(t, err)

	n, err := o.Write(fileID, []byte("hello, redisfs"), 0)
	require.NoError(t, err)
	assert.Equal(t, len("hello, redisfs"), n)

	data, err := o.Read(fileID, 0, int64(len("hello, redisfs")))
	require.NoError(t, err)
	assert.Equal(t, "hello, redisfs", string(data))

	entries, err := o.ReadDir("/home")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name)
	assert.Equal(t, fileID, entries[0].Inode)

	_, attrs, err := o.GetAttr("/home")
	require.NoError(t, err)
	assert.Equal(t, store.TypeDir, attrs.Type)
	assert.NotZero(t, dirID)
}

func TestAppendAcrossWrites(t *testing.T) {
	o := newTestOps(t, false, false)

	id, err := o.Create("/", "log", 0644, 0, 0)
	require.NoError(t, err)

	_, err = o.Write(id, []byte("one"), 0)
	require.NoError(t, err)
	_, err = o.Write(id, []byte("two"), 3)
	require.NoError(t, err)
	_, err = o.Write(id, []byte("three"), 6)
	require.NoError(t, err)

	data, err := o.Read(id, 0, 11)
	require.NoError(t, err)
	assert.Equal(t, "onetwothree", string(data))
}

func TestRmdirRejectsNonEmpty(t *testing.T) {
	o := newTestOps(t, false, false)

	_, err := o.Mkdir("/", "d", 0755, 0, 0)
	require.NoError(t, err)
	_, err = o.Create("/d", "f", 0644, 0, 0)
	require.NoError(t, err)

	err = o.Rmdir("/d")
	assert.Equal(t, syscall.ENOTEMPTY, err)
}

func TestRmdirSucceedsWhenEmpty(t *testing.T) {
	o := newTestOps(t, false, false)

	_, err := o.Mkdir("/", "d", 0755, 0, 0)
	require.NoError(t, err)

	require.NoError(t, o.Rmdir("/d"))

	_, _, err = o.GetAttr("/d")
	assert.Equal(t, syscall.ENOENT, err)
}

func TestSymlinkReadlink(t *testing.T) {
	o := newTestOps(t, false, false)

	_, err := o.Symlink("/", "link", "/etc/passwd", 0, 0)
	require.NoError(t, err)

	target, err := o.Readlink("/link")
	require.NoError(t, err)
	assert.Equal(t, "/etc/passwd", target)
}

func TestRenamePreservesIdentityAndUnlinksDestination(t *testing.T) {
	o := newTestOps(t, false, false)

	srcID, err := o.Create("/", "src", 0644, 0, 0)
	require.NoError(t, err)
	_, err = o.Write(srcID, []byte("payload"), 0)
	require.NoError(t, err)

	_, err = o.Create("/", "dst", 0644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, o.Rename("/src", "/dst"))

	id, attrs, err := o.GetAttr("/dst")
	require.NoError(t, err)
	assert.Equal(t, srcID, id)
	assert.EqualValues(t, 7, attrs.Size)

	_, _, err = o.GetAttr("/src")
	assert.Equal(t, syscall.ENOENT, err)

	entries, err := o.ReadDir("/")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRenameOntoSamePathIsNoopOnData(t *testing.T) {
	o := newTestOps(t, false, false)

	id, err := o.Create("/", "f", 0644, 0, 0)
	require.NoError(t, err)
	_, err = o.Write(id, []byte("payload"), 0)
	require.NoError(t, err)

	require.NoError(t, o.Rename("/f", "/f"))

	gotID, attrs, err := o.GetAttr("/f")
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.EqualValues(t, 7, attrs.Size)

	data, err := o.Read(id, 0, 7)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestReadOnlyModeRejectsWrites(t *testing.T) {
	o := newTestOps(t, true, false)

	_, err := o.Mkdir("/", "d", 0755, 0, 0)
	assert.Equal(t, syscall.EPERM, err)

	_, err = o.Create("/", "f", 0644, 0, 0)
	assert.Equal(t, syscall.EPERM, err)
}

func TestUnlinkRemovesFileAndAttrs(t *testing.T) {
	o := newTestOps(t, false, false)

	_, err := o.Create("/", "f", 0644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, o.Unlink("/f"))

	_, _, err = o.GetAttr("/f")
	assert.Equal(t, syscall.ENOENT, err)

	entries, err := o.ReadDir("/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChmodChown(t *testing.T) {
	o := newTestOps(t, false, false)

	id, err := o.Create("/", "f", 0644, 0, 0)
	require.NoError(t, err)

	require.NoError(t, o.Chmod(id, 0600))
	require.NoError(t, o.Chown(id, 42, 43))

	_, attrs, err := o.GetAttr("/f")
	require.NoError(t, err)
	assert.EqualValues(t, 0600, attrs.Mode)
	assert.EqualValues(t, 42, attrs.UID)
	assert.EqualValues(t, 43, attrs.GID)
}

func TestOpenFastModeShortCircuitsEvenWhenMissing(t *testing.T) {
	o := newTestOps(t, false, true)

	id, err := o.Open("/does-not-exist")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestReadDirOnUnresolvablePathReturnsEmptySuccess(t *testing.T) {
	o := newTestOps(t, false, false)

	entries, err := o.ReadDir("/no/such/directory")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadDirOnNonDirectoryReturnsEmptySuccess(t *testing.T) {
	o := newTestOps(t, false, false)

	_, err := o.Create("/", "f", 0644, 0, 0)
	require.NoError(t, err)

	entries, err := o.ReadDir("/f")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
