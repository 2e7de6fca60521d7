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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coraxdb/corax-go/protocol"
)

// addQueryCommand adds the query subcommand.
func addQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <query>",
		Short: "Run a query and print its result",
		Long: `Run a single query and print the result rows, one JSON value per
line. With --json the server renders the whole result as one JSON
document instead.`,
		Args: cobra.ExactArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().Bool("json", false, "Ask the server for JSON output")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	conn, ctx, cancel, err := connect(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Close()

	query := args[0]
	if asJSON {
		doc, err := conn.QueryJSON(ctx, query)
		if err != nil {
			return describeError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), doc)
		return nil
	}

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return describeError(err)
	}
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to render row: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(line))
	}
	return nil
}

// describeError appends the server's hint to query errors when one was
// sent.
func describeError(err error) error {
	var serverErr *protocol.ServerError
	if errors.As(err, &serverErr) && serverErr.Hint() != "" {
		return fmt.Errorf("%w\nhint: %s", err, serverErr.Hint())
	}
	return err
}
