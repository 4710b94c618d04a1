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

// Command redisfs-snapshot clones every key under one prefix to another
// within the same RESP store, the Go equivalent of redisfs-snapshot.c.
package main

import (
	"fmt"
	"os"

	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skx/redisfs/internal/config"
	"github.com/skx/redisfs/internal/snapshot"
	"github.com/skx/redisfs/internal/store"
)

func main() {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "redisfs-snapshot",
		Short: "Clone a redisfs key prefix to a new prefix",
	}

	flags := config.BindSnapshotFlags(cmd, v)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := flags.Validate(); err != nil {
			return err
		}

		log := config.NewLogger(flags.Debug)
		log.Infof("connecting to redis server %s:%d", flags.Host, flags.Port)
		log.Infof("cloning all keys with prefix %q -> %q", flags.From, flags.To)

		client := store.New(flags.Host, flags.Port, timeutil.RealClock(), log)
		if err := client.Ensure(); err != nil {
			return fmt.Errorf("connect to store: %w", err)
		}
		defer client.Close()

		cloner := snapshot.New(client, log)
		n, err := cloner.Clone(flags.From, flags.To)
		if err != nil {
			return fmt.Errorf("clone: %w", err)
		}

		log.Infof("cloned %d keys", n)
		return nil
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
