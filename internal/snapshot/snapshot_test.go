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

package snapshot_test

import (
	"testing"

	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/redisfs/internal/snapshot"
	"github.com/skx/redisfs/internal/store"
	"github.com/skx/redisfs/internal/store/fakeconn"
)

func newTestClient(t *testing.T) (*store.Client, *fakeconn.Backend) {
	t.Helper()

	b := fakeconn.NewBackend()
	c := store.New("localhost", 6379, timeutil.RealClock(), logrus.StandardLogger())
	c.SetDialer(fakeconn.Dialer(b))
	require.NoError(t, c.Ensure())
	return c, b
}

func TestCloneCopiesStringsAndSets(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Do("MSET", "skx:INODE:1:NAME", "passwd", "skx:INODE:1:TYPE", "FILE")
	require.NoError(t, err)
	_, err = c.Do("SADD", "skx:DIRENT:-99", "1")
	require.NoError(t, err)

	cl := snapshot.New(c, logrus.StandardLogger())

	n, err := cl.Clone("skx", "snap")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	v, err := c.Do("GET", "snap:INODE:1:NAME")
	require.NoError(t, err)
	assert.Equal(t, []byte("passwd"), v)

	members, err := c.Do("SMEMBERS", "snap:DIRENT:-99")
	require.NoError(t, err)
	assert.ElementsMatch(t, []interface{}{[]byte("1")}, members)
}

func TestCloneLeavesOtherPrefixesAlone(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Do("SET", "skx:INODE:1:NAME", "a")
	require.NoError(t, err)
	_, err = c.Do("SET", "other:INODE:1:NAME", "b")
	require.NoError(t, err)

	cl := snapshot.New(c, logrus.StandardLogger())
	n, err := cl.Clone("skx", "snap")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.Do("GET", "snap:INODE:1:NAME")
	require.NoError(t, err)
}
