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

package inode

import (
	"strconv"
	"time"
)

// stringField, uintField and timeField tolerate a nil reply element the
// same way the source's "if element != NULL && type == STRING" guards do:
// a missing field reads back as the zero value rather than an error.

func stringField(v interface{}) string {
	b, ok := v.([]byte)
	if !ok {
		return ""
	}
	return string(b)
}

func uintField(v interface{}) uint64 {
	b, ok := v.([]byte)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func timeField(v interface{}) time.Time {
	b, ok := v.([]byte)
	if !ok {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
