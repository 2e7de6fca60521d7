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

package client

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultQueryCacheSize bounds the per-connection query codecs cache.
const defaultQueryCacheSize = 1000

// Config holds the connection parameters for a single Corax connection.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// CredentialsFile optionally names a YAML file whose values fill any
	// field left unset above.
	CredentialsFile string

	// ConnectTimeout bounds the TCP dial (optional).
	ConnectTimeout time.Duration

	// QueryCacheSize bounds the per-connection query codecs cache
	// (optional, defaults to defaultQueryCacheSize).
	QueryCacheSize int

	// Logger for logging (optional, defaults to slog.Default()).
	Logger *slog.Logger
}

// Credentials is the on-disk YAML credentials format.
type Credentials struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// LoadCredentials reads a YAML credentials file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %q: %w", path, err)
	}
	return &creds, nil
}

// resolve merges the credentials file (if any), fills defaults, and
// validates the result.
func (c *Config) resolve() error {
	if c.CredentialsFile != "" {
		creds, err := LoadCredentials(c.CredentialsFile)
		if err != nil {
			return err
		}
		if c.Host == "" {
			c.Host = creds.Host
		}
		if c.Port == 0 {
			c.Port = creds.Port
		}
		if c.User == "" {
			c.User = creds.User
		}
		if c.Password == "" {
			c.Password = creds.Password
		}
		if c.Database == "" {
			c.Database = creds.Database
		}
	}

	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5656
	}
	if c.Database == "" {
		c.Database = c.User
	}
	if c.QueryCacheSize == 0 {
		c.QueryCacheSize = defaultQueryCacheSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c.Validate()
}

// Validate checks that the config is complete enough to connect with.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.QueryCacheSize < 0 {
		return fmt.Errorf("invalid query cache size: %d", c.QueryCacheSize)
	}
	return nil
}

// Addr returns the dial address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
