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

// Package snapshot clones every key under one prefix to another, the way
// redisfs-snapshot.c's clone_keys does: a KEYS wildcard scan, then a
// per-key TYPE dispatch that copies string values with GET/SET and set
// members with SMEMBERS/SADD. Any other key type aborts the snapshot
// rather than silently skipping data it doesn't understand.
package snapshot

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/skx/redisfs/internal/store"
)

// ErrUnsupportedKeyType is returned when a key under the source prefix is
// neither a RESP string nor a RESP set.
type ErrUnsupportedKeyType struct {
	Key  string
	Type string
}

func (e *ErrUnsupportedKeyType) Error() string {
	return fmt.Sprintf("snapshot: key %q has unexpected type %q", e.Key, e.Type)
}

// Cloner copies keys from one prefix to another within the same store.
type Cloner struct {
	client *store.Client
	log    logrus.FieldLogger
}

// New returns a Cloner using client.
func New(client *store.Client, log logrus.FieldLogger) *Cloner {
	return &Cloner{client: client, log: log}
}

// Clone copies every key beginning with fromPrefix to an equivalent key
// under toPrefix, preserving the suffix after the prefix exactly.
func (c *Cloner) Clone(fromPrefix, toPrefix string) (int, error) {
	if err := c.client.Ensure(); err != nil {
		return 0, err
	}

	reply, err := c.client.Do("KEYS", fromPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("KEYS %s*: %w", fromPrefix, err)
	}

	raw, ok := reply.([]interface{})
	if !ok {
		return 0, fmt.Errorf("KEYS %s*: malformed reply", fromPrefix)
	}

	c.log.WithField("count", len(raw)).Debug("snapshot: found keys")

	var cloned int
	for _, v := range raw {
		b, ok := v.([]byte)
		if !ok {
			continue
		}
		oldKey := string(b)
		newKey := toPrefix + strings.TrimPrefix(oldKey, fromPrefix)

		if err := c.cloneKey(oldKey, newKey); err != nil {
			return cloned, err
		}
		cloned++
	}

	return cloned, nil
}

func (c *Cloner) cloneKey(oldKey, newKey string) error {
	reply, err := c.client.Do("TYPE", oldKey)
	if err != nil {
		return fmt.Errorf("TYPE %s: %w", oldKey, err)
	}

	keyType, _ := reply.(string)
	c.log.WithFields(logrus.Fields{"key": oldKey, "type": keyType}).Debug("snapshot: cloning key")

	switch keyType {
	case "string":
		value, err := c.client.Do("GET", oldKey)
		if err != nil {
			return fmt.Errorf("GET %s: %w", oldKey, err)
		}
		if _, err := c.client.Do("SET", newKey, value); err != nil {
			return fmt.Errorf("SET %s: %w", newKey, err)
		}

	case "set":
		reply, err := c.client.Do("SMEMBERS", oldKey)
		if err != nil {
			return fmt.Errorf("SMEMBERS %s: %w", oldKey, err)
		}
		members, ok := reply.([]interface{})
		if !ok {
			return fmt.Errorf("SMEMBERS %s: malformed reply", oldKey)
		}
		if len(members) == 0 {
			return nil
		}
		args := append([]interface{}{newKey}, members...)
		if _, err := c.client.Do("SADD", args...); err != nil {
			return fmt.Errorf("SADD %s: %w", newKey, err)
		}

	default:
		return &ErrUnsupportedKeyType{Key: oldKey, Type: keyType}
	}

	return nil
}
