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

package inode_test

import (
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/redisfs/internal/inode"
	"github.com/skx/redisfs/internal/store"
	"github.com/skx/redisfs/internal/store/fakeconn"
)

func newTestStore(t *testing.T) *inode.Store {
	t.Helper()

	b := fakeconn.NewBackend()
	c := store.New("localhost", 6379, timeutil.RealClock(), logrus.StandardLogger())
	c.SetDialer(fakeconn.Dialer(b))
	require.NoError(t, c.Ensure())

	return inode.New(c, "skx", timeutil.RealClock())
}

func TestCreateAndReadAttrs(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(inode.CreateParams{
		Type: store.TypeFile,
		Name: "passwd",
		Mode: 0644,
		UID:  1000,
		GID:  1000,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)

	attrs, err := s.ReadAttrs(id)
	require.NoError(t, err)
	assert.Equal(t, "FILE", attrs.Type)
	assert.EqualValues(t, 0644, attrs.Mode)
	assert.EqualValues(t, 0, attrs.Size)
	assert.EqualValues(t, 1000, attrs.UID)
	assert.EqualValues(t, 1000, attrs.GID)
	assert.EqualValues(t, 1, attrs.Nlink)
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(inode.CreateParams{Type: "FILE", Name: "f", Mode: 0644})
	require.NoError(t, err)

	n, err := s.WriteData(id, []byte("hello"), 0, false)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	data, err := s.ReadData(id, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	attrs, err := s.ReadAttrs(id)
	require.NoError(t, err)
	assert.EqualValues(t, 5, attrs.Size)
}

func TestAppendCorrectness(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(inode.CreateParams{Type: "FILE", Name: "f", Mode: 0644})
	require.NoError(t, err)

	_, err = s.WriteData(id, []byte("hello"), 0, false)
	require.NoError(t, err)

	n, err := s.WriteData(id, []byte(" world"), 5, false)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	data, err := s.ReadData(id, 0, 11)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)

	attrs, err := s.ReadAttrs(id)
	require.NoError(t, err)
	assert.EqualValues(t, 11, attrs.Size)
}

func TestFastModeSkipsMtimeOnAppend(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(inode.CreateParams{Type: "FILE", Name: "f", Mode: 0644})
	require.NoError(t, err)

	_, err = s.WriteData(id, []byte("x"), 0, false)
	require.NoError(t, err)

	// Pin MTIME to a fixed past instant so that any later MTIME update
	// would be visible regardless of how fast the test runs.
	then := time.Unix(1000, 0)
	require.NoError(t, s.UpdateTimes(id, then, then))

	before, err := s.ReadAttrs(id)
	require.NoError(t, err)

	_, err = s.WriteData(id, []byte("y"), 1, true)
	require.NoError(t, err)

	after, err := s.ReadAttrs(id)
	require.NoError(t, err)

	// The fast-mode offset write appends the data but leaves MTIME at the
	// pinned value.
	assert.True(t, after.Mtime.Equal(before.Mtime))
	assert.EqualValues(t, 2, after.Size)
}

func TestTruncate(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(inode.CreateParams{Type: "FILE", Name: "f", Mode: 0644})
	require.NoError(t, err)

	_, err = s.WriteData(id, []byte("hello"), 0, false)
	require.NoError(t, err)

	require.NoError(t, s.Truncate(id))

	attrs, err := s.ReadAttrs(id)
	require.NoError(t, err)
	assert.EqualValues(t, 0, attrs.Size)

	data, err := s.ReadData(id, 0, 5)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRemoveDeletesEveryField(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(inode.CreateParams{Type: "FILE", Name: "f", Mode: 0644})
	require.NoError(t, err)
	require.NoError(t, s.Remove(id))

	attrs, err := s.ReadAttrs(id)
	require.NoError(t, err)
	assert.Empty(t, attrs.Type)
}

func TestChmodChownUtimens(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(inode.CreateParams{Type: "DIR", Name: "d", Mode: 0755})
	require.NoError(t, err)

	require.NoError(t, s.UpdateMode(id, 0700))
	require.NoError(t, s.UpdateOwner(id, 42, 43))

	then := time.Unix(1000, 0)
	require.NoError(t, s.UpdateTimes(id, then, then))

	attrs, err := s.ReadAttrs(id)
	require.NoError(t, err)
	assert.EqualValues(t, 0700|1<<31, attrs.Mode)
	assert.EqualValues(t, 42, attrs.UID)
	assert.EqualValues(t, 43, attrs.GID)
	assert.True(t, attrs.Atime.Equal(then))
}

func TestSymlinkTarget(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(inode.CreateParams{
		Type:   "LINK",
		Name:   "l",
		Mode:   0444,
		Target: "/tmp/foo",
	})
	require.NoError(t, err)

	target, err := s.ReadTarget(id)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/foo", target)

	attrs, err := s.ReadAttrs(id)
	require.NoError(t, err)
	assert.Equal(t, "LINK", attrs.Type)
}
