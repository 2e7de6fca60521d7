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

package codecs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCacheGetSet(t *testing.T) {
	cache := NewQueryCache(10)

	in := NewEmptyTupleCodec()
	out, err := BaseScalarCodec(StrID)
	require.NoError(t, err)

	_, ok := cache.Get("select 1", false)
	assert.False(t, ok)

	cache.Set("select 1", false, true, in, out)

	plan, ok := cache.Get("select 1", false)
	require.True(t, ok)
	assert.True(t, plan.Multi)
	assert.Same(t, in, plan.In)
	assert.Same(t, out, plan.Out)

	// Same query in JSON mode is a distinct key.
	_, ok = cache.Get("select 1", true)
	assert.False(t, ok)

	assert.Equal(t, 1, cache.Size())
	assert.Equal(t, int64(1), cache.Hits())
	assert.Equal(t, int64(2), cache.Misses())
}

func TestQueryCacheReplace(t *testing.T) {
	cache := NewQueryCache(10)
	in := NewEmptyTupleCodec()

	cache.Set("q", false, false, in, in)
	cache.Set("q", false, true, in, in)

	plan, ok := cache.Get("q", false)
	require.True(t, ok)
	assert.True(t, plan.Multi)
	assert.Equal(t, 1, cache.Size())
}

func TestQueryCacheEviction(t *testing.T) {
	cache := NewQueryCache(3)
	c := NewEmptyTupleCodec()

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("q%d", i), false, false, c, c)
	}

	// Touch q0 so q1 becomes the eviction victim.
	_, ok := cache.Get("q0", false)
	require.True(t, ok)

	cache.Set("q3", false, false, c, c)
	assert.Equal(t, 3, cache.Size())

	_, ok = cache.Get("q1", false)
	assert.False(t, ok, "least-recently-used entry should have been evicted")

	for _, q := range []string{"q0", "q2", "q3"} {
		_, ok := cache.Get(q, false)
		assert.True(t, ok, "%s should still be cached", q)
	}
}

func TestQueryCacheClear(t *testing.T) {
	cache := NewQueryCache(2)
	c := NewEmptyTupleCodec()

	cache.Set("q", false, false, c, c)
	_, _ = cache.Get("q", false)

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
	assert.Equal(t, int64(0), cache.Hits())
	assert.Equal(t, int64(0), cache.Misses())

	_, ok := cache.Get("q", false)
	assert.False(t, ok)
}
