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

// Package store maintains a live connection to the RESP key-value service
// backing a redisfs mount, and exposes the synchronous and pipelined command
// primitives the rest of the core builds on.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
)

// ConnectTimeout bounds how long a (re)connect attempt may take, matching
// the source's hard-coded liveness budget.
const ConnectTimeout = 1500 * time.Millisecond

// Dialer creates a new connection to the store. Production code points this
// at redis.Dial; tests substitute an in-memory fake.
type Dialer func(network, address string, timeout time.Duration) (redis.Conn, error)

func dialRedis(network, address string, timeout time.Duration) (redis.Conn, error) {
	return redis.DialTimeout(network, address, timeout, timeout, timeout)
}

// Client owns the single connection to the store used by an entire mount
// process. All of its methods are safe to call only while the caller holds
// whatever lock serializes Operation-layer access (see internal/ops); the
// client itself does no locking beyond what is needed to keep a single
// connection's request/response stream coherent.
type Client struct {
	mu sync.Mutex

	host string
	port int
	dial Dialer

	conn  redis.Conn
	clock timeutil.Clock
	log   logrus.FieldLogger
}

// New constructs a Client for the store at host:port. The connection is not
// established until the first call to Ensure.
func New(host string, port int, clock timeutil.Clock, log logrus.FieldLogger) *Client {
	return &Client{
		host:  host,
		port:  port,
		dial:  dialRedis,
		clock: clock,
		log:   log,
	}
}

// SetDialer overrides how new connections are made. Used by tests to wire
// in an in-memory fake RESP backend.
func (c *Client) SetDialer(d Dialer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dial = d
}

// Ensure verifies the connection is alive, reconnecting if not. A PING that
// returns anything other than PONG (including a transport error) forces a
// fresh connection. Failure to reconnect is returned to the caller, who
// per spec treats it as fatal to the process.
func (c *Client) Ensure() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		reply, err := redis.String(c.conn.Do("PING"))
		if err == nil && reply == "PONG" {
			return nil
		}

		c.log.WithError(err).Debug("store: PING failed, reconnecting")
		c.conn.Close()
		c.conn = nil
	}

	conn, err := c.dial("tcp", fmt.Sprintf("%s:%d", c.host, c.port), ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect to store at %s:%d: %w", c.host, c.port, err)
	}

	c.conn = conn
	return nil
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	return err
}

// Do issues a single synchronous command and returns its reply. Transport
// errors are retried exactly once, after a forced reconnect; an
// application-level error reply is returned unchanged to the caller to
// classify (see IsTransportError).
func (c *Client) Do(cmd string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("store: Do(%s) called before Ensure", cmd)
	}

	reply, err := c.conn.Do(cmd, args...)
	if err != nil && IsTransportError(err) {
		c.log.WithError(err).Debug("store: transport error, reconnecting and retrying once")
		c.conn.Close()

		conn, dialErr := c.dial("tcp", fmt.Sprintf("%s:%d", c.host, c.port), ConnectTimeout)
		if dialErr != nil {
			c.conn = nil
			return nil, fmt.Errorf("reconnect after transport error: %w", dialErr)
		}

		c.conn = conn
		reply, err = c.conn.Do(cmd, args...)
	}

	return reply, err
}

// Append queues cmd onto the connection's output buffer without waiting for
// a reply (redis.Conn.Send). Every Append must be matched by exactly one
// Reply after a Flush.
func (c *Client) Append(cmd string, args ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("store: Append(%s) called before Ensure", cmd)
	}

	return c.conn.Send(cmd, args...)
}

// Flush pushes any buffered Append calls to the wire.
func (c *Client) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("store: Flush called before Ensure")
	}

	return c.conn.Flush()
}

// Reply drains exactly one reply previously queued with Append.
func (c *Client) Reply() (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("store: Reply called before Ensure")
	}

	return c.conn.Receive()
}

// Pipeline appends every command in order, flushes once, and drains exactly
// that many replies, returning them in issue order. If fewer replies are
// present than commands the caller is returned a transport error rather
// than a short slice.
func (c *Client) Pipeline(cmds []Command) ([]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("store: Pipeline called before Ensure")
	}

	for _, cmd := range cmds {
		if err := c.conn.Send(cmd.Name, cmd.Args...); err != nil {
			return nil, fmt.Errorf("send %s: %w", cmd.Name, err)
		}
	}

	if err := c.conn.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	replies := make([]interface{}, 0, len(cmds))
	for i, cmd := range cmds {
		reply, err := c.conn.Receive()
		if err != nil {
			if !IsSemanticError(err) {
				return nil, fmt.Errorf("receive reply %d/%d for %s: %w", i+1, len(cmds), cmd.Name, err)
			}
			// An application-level error reply (e.g. WRONGTYPE) is itself the
			// reply as far as the caller is concerned.
			replies = append(replies, err)
			continue
		}
		replies = append(replies, reply)
	}

	return replies, nil
}

// Command is one element of a Pipeline call.
type Command struct {
	Name string
	Args []interface{}
}
