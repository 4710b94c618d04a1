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

package store

import (
	"errors"
	"net"

	"github.com/gomodule/redigo/redis"
)

// IsTransportError reports whether err represents a connection-level
// failure (dropped socket, timeout, EOF) rather than an application-level
// error reply. Per spec §4.1 these are the only two error classes the
// client distinguishes.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}

	if IsSemanticError(err) || IsNil(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Anything else (closed connection, broken pipe, EOF) is treated as a
	// transport failure: the only two classes the client distinguishes.
	return true
}

// IsSemanticError reports whether err is a RESP error reply (e.g. WRONGTYPE,
// a custom command error) as opposed to a transport failure. redigo
// surfaces these as redis.Error values.
func IsSemanticError(err error) bool {
	if err == nil {
		return false
	}

	var respErr redis.Error
	return errors.As(err, &respErr)
}

// IsNil reports whether err is the "no such key" sentinel redigo returns
// for GET/GETRANGE-style commands against a missing key. Callers treat this
// identically to a semantic error: no data, not a fatal condition.
func IsNil(err error) bool {
	return errors.Is(err, redis.ErrNil)
}
