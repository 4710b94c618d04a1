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

// Package config defines the flag surfaces for the mount daemon and the
// snapshot tool, and the validation the source ran inline in main()
// before ever touching the store: the mount point must exist and be a
// directory, and the key prefix must fit in the mount daemon's fixed
// 10-byte buffer (9 usable characters after the terminator).
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// MaxPrefixLen mirrors the source's "char _g_prefix[10]" buffer: 9
// characters of usable prefix plus a NUL terminator.
const MaxPrefixLen = 9

// DefaultPort is the source's hard-coded default redis-server port.
const DefaultPort = 6379

// DefaultPIDFile is the source's hard-coded PID file location.
const DefaultPIDFile = "/var/run/redisfs.pid"

// MountFlags holds the mount daemon's configuration.
type MountFlags struct {
	Host       string
	Port       int
	Prefix     string
	MountPoint string
	ReadOnly   bool
	FastMode   bool
	Debug      int // repeatable -d/--debug, mirrors the source's _g_debug counter
	PIDFile    string
}

// Validate checks the combination of flags the way main() checked them
// inline: prefix length, and that the mount point exists and is a
// directory.
func (f *MountFlags) Validate() error {
	if len(f.Prefix) > MaxPrefixLen {
		return fmt.Errorf("config: prefix %q is longer than %d characters", f.Prefix, MaxPrefixLen)
	}

	info, err := os.Stat(f.MountPoint)
	if err != nil {
		return fmt.Errorf("config: mount point %q: %w", f.MountPoint, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: mount point %q is not a directory", f.MountPoint)
	}

	return nil
}

// BindMountFlags registers the mount daemon's flags on cmd and binds them
// into v under the REDISFS environment prefix. The returned MountFlags is
// filled by cobra from the command line only: values v picks up from
// REDISFS_-prefixed environment variables are not copied into it.
func BindMountFlags(cmd *cobra.Command, v *viper.Viper) *MountFlags {
	flags := &MountFlags{}

	cmd.Flags().StringVarP(&flags.Host, "host", "s", "localhost", "hostname of the redis server")
	cmd.Flags().IntVarP(&flags.Port, "port", "P", DefaultPort, "port of the redis server")
	cmd.Flags().StringVarP(&flags.Prefix, "prefix", "p", "skx", "key prefix for this filesystem's data")
	cmd.Flags().StringVarP(&flags.MountPoint, "mount", "m", "", "directory to mount the filesystem at")
	cmd.Flags().BoolVarP(&flags.ReadOnly, "read-only", "r", false, "mount the filesystem read-only")
	cmd.Flags().BoolVarP(&flags.FastMode, "fast", "f", false, "skip atime/mtime bookkeeping for speed")
	cmd.Flags().CountVarP(&flags.Debug, "debug", "d", "increase logging verbosity")
	cmd.Flags().StringVar(&flags.PIDFile, "pidfile", DefaultPIDFile, "path to write the daemon's PID to")

	v.BindPFlags(cmd.Flags())
	v.SetEnvPrefix("REDISFS")
	v.AutomaticEnv()

	return flags
}

// SnapshotFlags holds the snapshot tool's configuration.
type SnapshotFlags struct {
	Host  string
	Port  int
	From  string
	To    string
	Debug int
}

// Validate checks that From and To are both set and distinct.
func (f *SnapshotFlags) Validate() error {
	if f.From == "" || f.To == "" {
		return fmt.Errorf("config: both --from and --to are required")
	}
	if f.From == f.To {
		return fmt.Errorf("config: --from and --to must differ")
	}
	if len(f.From) > MaxPrefixLen || len(f.To) > MaxPrefixLen {
		return fmt.Errorf("config: prefixes must be %d characters or fewer", MaxPrefixLen)
	}
	return nil
}

// BindSnapshotFlags registers the snapshot tool's flags on cmd.
func BindSnapshotFlags(cmd *cobra.Command, v *viper.Viper) *SnapshotFlags {
	flags := &SnapshotFlags{}

	cmd.Flags().StringVarP(&flags.Host, "host", "s", "localhost", "hostname of the redis server")
	cmd.Flags().IntVarP(&flags.Port, "port", "P", DefaultPort, "port of the redis server")
	cmd.Flags().StringVarP(&flags.From, "from", "f", "skx", "prefix to copy from")
	cmd.Flags().StringVarP(&flags.To, "to", "t", "snapshot", "prefix to copy to")
	cmd.Flags().CountVarP(&flags.Debug, "debug", "d", "increase logging verbosity")

	v.BindPFlags(cmd.Flags())
	v.SetEnvPrefix("REDISFS")
	v.AutomaticEnv()

	return flags
}
