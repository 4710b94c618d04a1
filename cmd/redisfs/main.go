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

// Command redisfs mounts a RESP key-value store as a POSIX filesystem.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skx/redisfs/internal/config"
	"github.com/skx/redisfs/internal/fuseadapter"
	"github.com/skx/redisfs/internal/inode"
	"github.com/skx/redisfs/internal/ops"
	"github.com/skx/redisfs/internal/pidfile"
	"github.com/skx/redisfs/internal/resolver"
	"github.com/skx/redisfs/internal/store"
)

// registerSIGINTHandler unmounts mountPoint on Ctrl-C, retrying until it
// succeeds, matching the teacher main.go's registerSIGINTHandler.
func registerSIGINTHandler(log logrus.FieldLogger, mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			log.Info("received SIGINT, attempting to unmount")
			if err := fuse.Unmount(mountPoint); err != nil {
				log.WithError(err).Warn("unmount failed, will retry on next SIGINT")
				continue
			}
			log.Info("successfully unmounted")
			return
		}
	}()
}

func run(flags *config.MountFlags, log *logrus.Logger) error {
	if err := flags.Validate(); err != nil {
		return err
	}

	if os.Geteuid() != 0 {
		return fmt.Errorf("redisfs: must be run as root")
	}

	if err := pidfile.Write(flags.PIDFile); err != nil {
		return err
	}
	defer pidfile.Remove(flags.PIDFile)

	clock := timeutil.RealClock()
	client := store.New(flags.Host, flags.Port, clock, log)
	if err := client.Ensure(); err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	defer client.Close()

	inodes := inode.New(client, flags.Prefix, clock)
	res := resolver.New(client, flags.Prefix)

	operations := ops.New(ops.Config{
		Client:   client,
		Inodes:   inodes,
		Resolver: res,
		Clock:    clock,
		Log:      log,
		ReadOnly: flags.ReadOnly,
		FastMode: flags.FastMode,
	})

	fs := fuseadapter.New(operations, log)

	mfs, err := fuseadapter.Mount(flags.MountPoint, fs, flags.ReadOnly, nil)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	log.Infof("connected to %s:%d (prefix %q), mounted at %s", flags.Host, flags.Port, flags.Prefix, flags.MountPoint)
	if flags.ReadOnly {
		log.Info("filesystem is read-only")
	}

	registerSIGINTHandler(log, flags.MountPoint)

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}

	log.Info("successfully exiting")
	return nil
}

func main() {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "redisfs",
		Short: "Mount a RESP key-value store as a POSIX filesystem",
	}

	flags := config.BindMountFlags(cmd, v)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		log := config.NewLogger(flags.Debug)
		return run(flags, log)
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
