// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// addPingCommand adds the ping subcommand.
func addPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that a server is reachable and answering",
		Args:  cobra.NoArgs,
		RunE:  runPing,
	}
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, ctx, cancel, err := connect(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Close()

	start := time.Now()
	if err := conn.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pong in %s\n", time.Since(start).Round(time.Microsecond))

	if version, ok := conn.ServerSettings()["server_version"]; ok {
		fmt.Fprintf(cmd.OutOrStdout(), "server version %s\n", version)
	}
	return nil
}
