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

// Package fakeconn provides an in-memory redigo redis.Conn, standing in for
// gcsfake.NewFakeBucket in the teacher's integration tests: a deterministic
// backend that lets the store, resolver, inode and operation-layer tests run
// without a live Redis.
package fakeconn

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Backend is the shared, lockable in-memory dataset behind one or more
// Conns. Multiple Conns over the same Backend emulate independent client
// connections against the same Redis instance, which New's "reconnect"
// tests rely on.
type Backend struct {
	mu      sync.Mutex
	strings map[string][]byte
	sets    map[string]map[string]struct{}
	// Dead, when true, makes every command fail as a transport error,
	// simulating a severed connection for Client.Ensure reconnect tests.
	Dead bool
}

// NewBackend returns an empty dataset.
func NewBackend() *Backend {
	return &Backend{
		strings: make(map[string][]byte),
		sets:    make(map[string]map[string]struct{}),
	}
}

// Conn is a redis.Conn backed by a Backend. Commands sent with Send are
// executed immediately and queued for Receive, matching real pipelining
// semantics closely enough for the core's tests.
type Conn struct {
	b         *Backend
	pending   []pendingReply
	closed    bool
}

type pendingReply struct {
	reply interface{}
	err   error
}

// New wraps b in a fresh Conn.
func New(b *Backend) *Conn {
	return &Conn{b: b}
}

// Dialer returns a store.Dialer-shaped function that always hands back a
// fresh Conn over the same Backend, so each (re)connect in the code under
// test observes the same dataset a real reconnect to the same server would.
func Dialer(b *Backend) func(network, address string, timeout time.Duration) (redis.Conn, error) {
	return func(network, address string, timeout time.Duration) (redis.Conn, error) {
		if b.Dead {
			return nil, fmt.Errorf("fakeconn: backend unreachable")
		}
		return New(b), nil
	}
}

func (c *Conn) Close() error {
	c.closed = true
	return nil
}

func (c *Conn) Err() error {
	if c.closed {
		return fmt.Errorf("fakeconn: use of closed connection")
	}
	return nil
}

func (c *Conn) Do(cmd string, args ...interface{}) (interface{}, error) {
	if err := c.checkAlive(); err != nil {
		return nil, err
	}
	return c.b.exec(cmd, args)
}

func (c *Conn) Send(cmd string, args ...interface{}) error {
	if err := c.checkAlive(); err != nil {
		return err
	}

	reply, err := c.b.exec(cmd, args)
	c.pending = append(c.pending, pendingReply{reply, err})
	return nil
}

func (c *Conn) Flush() error {
	return c.checkAlive()
}

func (c *Conn) Receive() (interface{}, error) {
	if err := c.checkAlive(); err != nil {
		return nil, err
	}

	if len(c.pending) == 0 {
		return nil, fmt.Errorf("fakeconn: Receive called with no pending reply")
	}

	r := c.pending[0]
	c.pending = c.pending[1:]
	return r.reply, r.err
}

func (c *Conn) checkAlive() error {
	if c.closed {
		return fmt.Errorf("fakeconn: use of closed connection")
	}
	if c.b.Dead {
		return fmt.Errorf("fakeconn: connection severed")
	}
	return nil
}

////////////////////////////////////////////////////////////////////////
// Command execution
////////////////////////////////////////////////////////////////////////

func toBytes(v interface{}) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	case int:
		return []byte(strconv.Itoa(x))
	case int64:
		return []byte(strconv.FormatInt(x, 10))
	case uint32:
		return []byte(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return []byte(strconv.FormatUint(x, 10))
	default:
		return []byte(fmt.Sprintf("%v", x))
	}
}

func (b *Backend) exec(cmd string, args []interface{}) (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	a := make([][]byte, len(args))
	for i, v := range args {
		a[i] = toBytes(v)
	}

	switch strings.ToUpper(cmd) {
	case "PING":
		return "PONG", nil

	case "INCR":
		key := string(a[0])
		cur := int64(0)
		if v, ok := b.strings[key]; ok {
			n, err := strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return nil, redis.Error("ERR value is not an integer or out of range")
			}
			cur = n
		}
		cur++
		b.strings[key] = []byte(strconv.FormatInt(cur, 10))
		return cur, nil

	case "INCRBY":
		key := string(a[0])
		delta, err := strconv.ParseInt(string(a[1]), 10, 64)
		if err != nil {
			return nil, redis.Error("ERR value is not an integer or out of range")
		}
		cur := int64(0)
		if v, ok := b.strings[key]; ok {
			cur, err = strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return nil, redis.Error("ERR value is not an integer or out of range")
			}
		}
		cur += delta
		b.strings[key] = []byte(strconv.FormatInt(cur, 10))
		return cur, nil

	case "GET":
		key := string(a[0])
		if _, isSet := b.sets[key]; isSet {
			return nil, redis.Error("WRONGTYPE Operation against a key holding the wrong kind of value")
		}
		v, ok := b.strings[key]
		if !ok {
			return nil, redis.ErrNil
		}
		return v, nil

	case "SET":
		key := string(a[0])
		delete(b.sets, key)
		b.strings[key] = a[1]
		return "OK", nil

	case "MSET":
		if len(a)%2 != 0 {
			return nil, redis.Error("ERR wrong number of arguments for MSET")
		}
		for i := 0; i+1 < len(a); i += 2 {
			key := string(a[i])
			delete(b.sets, key)
			b.strings[key] = a[i+1]
		}
		return "OK", nil

	case "MGET":
		out := make([]interface{}, len(a))
		for i, k := range a {
			if v, ok := b.strings[string(k)]; ok {
				out[i] = v
			} else {
				out[i] = nil
			}
		}
		return out, nil

	case "APPEND":
		key := string(a[0])
		b.strings[key] = append(b.strings[key], a[1]...)
		return int64(len(b.strings[key])), nil

	case "DEL":
		var n int64
		for _, k := range a {
			key := string(k)
			if _, ok := b.strings[key]; ok {
				delete(b.strings, key)
				n++
			}
			if _, ok := b.sets[key]; ok {
				delete(b.sets, key)
				n++
			}
		}
		return n, nil

	case "GETRANGE", "SUBSTR":
		key := string(a[0])
		start, err := strconv.Atoi(string(a[1]))
		if err != nil {
			return nil, redis.Error("ERR value is not an integer or out of range")
		}
		end, err := strconv.Atoi(string(a[2]))
		if err != nil {
			return nil, redis.Error("ERR value is not an integer or out of range")
		}

		v, ok := b.strings[key]
		if !ok {
			return []byte{}, nil
		}

		start = clampIndex(start, len(v))
		end = clampIndex(end, len(v))
		if end < 0 {
			end += len(v)
		}
		if end >= len(v) {
			end = len(v) - 1
		}
		if start > end || len(v) == 0 {
			return []byte{}, nil
		}
		return append([]byte{}, v[start:end+1]...), nil

	case "KEYS":
		pattern := string(a[0])
		prefix := strings.TrimSuffix(pattern, "*")
		var matches []string
		for k := range b.strings {
			if strings.HasPrefix(k, prefix) {
				matches = append(matches, k)
			}
		}
		for k := range b.sets {
			if strings.HasPrefix(k, prefix) {
				matches = append(matches, k)
			}
		}
		sort.Strings(matches)
		out := make([]interface{}, len(matches))
		for i, m := range matches {
			out[i] = []byte(m)
		}
		return out, nil

	case "TYPE":
		key := string(a[0])
		if _, ok := b.strings[key]; ok {
			return "string", nil
		}
		if _, ok := b.sets[key]; ok {
			return "set", nil
		}
		return "none", nil

	case "SADD":
		key := string(a[0])
		set, ok := b.sets[key]
		if !ok {
			set = make(map[string]struct{})
			b.sets[key] = set
		}
		var added int64
		for _, m := range a[1:] {
			member := string(m)
			if _, exists := set[member]; !exists {
				set[member] = struct{}{}
				added++
			}
		}
		return added, nil

	case "SREM":
		key := string(a[0])
		set, ok := b.sets[key]
		if !ok {
			return int64(0), nil
		}
		var removed int64
		for _, m := range a[1:] {
			member := string(m)
			if _, exists := set[member]; exists {
				delete(set, member)
				removed++
			}
		}
		return removed, nil

	case "SMEMBERS":
		key := string(a[0])
		set := b.sets[key]
		out := make([]interface{}, 0, len(set))
		for m := range set {
			out = append(out, []byte(m))
		}
		return out, nil

	default:
		return nil, redis.Error(fmt.Sprintf("ERR unknown command '%s'", cmd))
	}
}

func clampIndex(i, length int) int {
	if i < 0 {
		i += length
		if i < 0 {
			i = 0
		}
	}
	return i
}
