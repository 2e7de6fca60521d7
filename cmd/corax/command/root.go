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

// Package command implements the corax CLI.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/coraxdb/corax-go/client"
)

// GetRootCommand creates and returns the root command for corax with all
// subcommands.
func GetRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "corax",
		Short: "Command-line client for Corax servers",
		Long: `A small client for talking to a Corax server.

Connection parameters are taken from flags, CORAX_* environment
variables, or a YAML credentials file, in that order of precedence.

Get started with:
  corax ping                          # Check a server is reachable
  corax query 'select sys::version'   # Run a query`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Silence usage for application errors, but allow it for flag
			// errors. This runs after flag parsing, so flag errors still
			// show usage.
			cmd.SilenceUsage = true

			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			viper.SetEnvPrefix("CORAX")
			viper.AutomaticEnv()

			return setUpLogging()
		},
	}

	registerConnectionFlags(root.PersistentFlags())

	root.AddCommand(addPingCommand())
	root.AddCommand(addQueryCommand())

	return root
}

// registerConnectionFlags adds the shared connection and logging flags.
func registerConnectionFlags(fs *pflag.FlagSet) {
	fs.String("host", "localhost", "Server host to connect to")
	fs.Int("port", 5656, "Server port to connect to")
	fs.String("user", "", "User to authenticate as")
	fs.String("password", "", "Password (prefer CORAX_PASSWORD or a credentials file)")
	fs.String("database", "", "Database to connect to (defaults to the user name)")
	fs.String("credentials-file", "", "YAML credentials file filling unset connection parameters")
	fs.Duration("connect-timeout", 10*time.Second, "TCP connect timeout")
	fs.String("log-level", "warn", "Log level (debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text, json)")
}

// setUpLogging installs the process-wide slog handler from the log flags.
func setUpLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format := viper.GetString("log-format"); format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// connectConfig assembles the client config from the resolved settings.
func connectConfig() client.Config {
	return client.Config{
		Host:            viper.GetString("host"),
		Port:            viper.GetInt("port"),
		User:            viper.GetString("user"),
		Password:        viper.GetString("password"),
		Database:        viper.GetString("database"),
		CredentialsFile: viper.GetString("credentials-file"),
		ConnectTimeout:  viper.GetDuration("connect-timeout"),
	}
}

// connect dials the server with a bounded context.
func connect(cmd *cobra.Command) (*client.Conn, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	conn, err := client.Connect(ctx, connectConfig())
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return conn, ctx, cancel, nil
}
