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
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandStructure(t *testing.T) {
	root := GetRootCommand()

	names := make([]string, 0, len(root.Commands()))
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "ping")
	assert.Contains(t, names, "query")

	for _, flag := range []string{"host", "port", "user", "database", "credentials-file"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "missing flag %q", flag)
	}
}

func TestSetUpLogging(t *testing.T) {
	defer viper.Reset()

	viper.Set("log-level", "debug")
	viper.Set("log-format", "json")
	require.NoError(t, setUpLogging())

	viper.Set("log-level", "chatty")
	require.Error(t, setUpLogging())

	viper.Set("log-level", "info")
	viper.Set("log-format", "xml")
	err := setUpLogging()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}
