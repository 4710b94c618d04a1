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

package store_test

import (
	"testing"

	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skx/redisfs/internal/store"
	"github.com/skx/redisfs/internal/store/fakeconn"
)

func newTestClient(t *testing.T, b *fakeconn.Backend) *store.Client {
	t.Helper()

	c := store.New("localhost", 6379, timeutil.RealClock(), logrus.StandardLogger())
	c.SetDialer(fakeconn.Dialer(b))
	require.NoError(t, c.Ensure())
	return c
}

func TestEnsureReconnectsAfterSeveredConnection(t *testing.T) {
	b := fakeconn.NewBackend()
	c := newTestClient(t, b)

	_, err := c.Do("SET", "k", "v")
	require.NoError(t, err)

	// Sever the connection, as if the server restarted.
	b.Dead = true
	assert.Error(t, c.Ensure())

	b.Dead = false
	require.NoError(t, c.Ensure())

	v, err := c.Do("GET", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestDoAndPipeline(t *testing.T) {
	b := fakeconn.NewBackend()
	c := newTestClient(t, b)

	reply, err := c.Do("INCR", "skx:GLOBAL:INODE")
	require.NoError(t, err)
	assert.EqualValues(t, 1, reply)

	replies, err := c.Pipeline([]store.Command{
		{Name: "SET", Args: []interface{}{"a", "1"}},
		{Name: "SET", Args: []interface{}{"b", "2"}},
		{Name: "MGET", Args: []interface{}{"a", "b"}},
	})
	require.NoError(t, err)
	require.Len(t, replies, 3)
	assert.Equal(t, "OK", replies[0])
	assert.Equal(t, "OK", replies[1])
	assert.Equal(t, []interface{}{[]byte("1"), []byte("2")}, replies[2])
}

func TestSemanticErrorIsNotTransport(t *testing.T) {
	b := fakeconn.NewBackend()
	c := newTestClient(t, b)

	_, err := c.Do("SADD", "s", "1")
	require.NoError(t, err)

	_, err = c.Do("GET", "s")
	require.Error(t, err)
	assert.True(t, store.IsSemanticError(err))
	assert.False(t, store.IsTransportError(err))
}

func TestGetMissingKeyIsNil(t *testing.T) {
	b := fakeconn.NewBackend()
	c := newTestClient(t, b)

	_, err := c.Do("GET", "missing")
	require.Error(t, err)
	assert.True(t, store.IsNil(err))
	assert.False(t, store.IsTransportError(err))
}
