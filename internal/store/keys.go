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
	"fmt"
	"strconv"
)

// RootInode is the sentinel parent identifier for top-level directory
// entries. It never occupies a slot in the counter.
const RootInode int64 = -99

// GlobalInodeKey is the monotonically increasing inode-allocation counter.
func GlobalInodeKey(prefix string) string {
	return fmt.Sprintf("%s:GLOBAL:INODE", prefix)
}

// InodeKey builds the key for one attribute field of inode id.
func InodeKey(prefix string, id int64, field string) string {
	return fmt.Sprintf("%s:INODE:%d:%s", prefix, id, field)
}

// DirentKey builds the key for the directory-membership set of inode id.
func DirentKey(prefix string, id int64) string {
	return fmt.Sprintf("%s:DIRENT:%d", prefix, id)
}

// ParseInodeID parses the decimal string form of an inode identifier, as
// found in a DIRENT set or the string value of an INODE:*:i key.
func ParseInodeID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// FormatInodeID renders an inode identifier the way it is stored in DIRENT
// sets and the way it is compared against member strings.
func FormatInodeID(id int64) string {
	return strconv.FormatInt(id, 10)
}

const (
	FieldName   = "NAME"
	FieldType   = "TYPE"
	FieldMode   = "MODE"
	FieldUID    = "UID"
	FieldGID    = "GID"
	FieldSize   = "SIZE"
	FieldAtime  = "ATIME"
	FieldCtime  = "CTIME"
	FieldMtime  = "MTIME"
	FieldLink   = "LINK"
	FieldData   = "DATA"
	FieldTarget = "TARGET"
)

// TypeDir, TypeFile and TypeLink are the only legal values of the TYPE
// field.
const (
	TypeDir  = "DIR"
	TypeFile = "FILE"
	TypeLink = "LINK"
)

// AllFields lists every attribute key suffix that Remove must delete for an
// inode, matching the source's twelve-key teardown regardless of which
// fields were actually populated.
var AllFields = []string{
	FieldName, FieldType, FieldMode, FieldGID, FieldUID,
	FieldAtime, FieldCtime, FieldMtime, FieldSize, FieldData,
	FieldLink, FieldTarget,
}
