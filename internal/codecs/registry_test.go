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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coraxdb/corax-go/internal/buffer"
)

// writeBaseScalarDesc appends a base scalar descriptor.
func writeBaseScalarDesc(w *buffer.Writer, id uuid.UUID) {
	w.WriteByte(descBaseScalar)
	w.WriteTypeID(id)
}

func TestRegistryReservedCodecs(t *testing.T) {
	reg := NewRegistry()

	c, ok := reg.Lookup(NullID)
	require.True(t, ok)
	assert.Equal(t, KindNull, c.Kind())

	c, ok = reg.Lookup(EmptyTupleID)
	require.True(t, ok)
	assert.Equal(t, KindEmptyTuple, c.Kind())
}

func TestRegistryResolveBaseScalar(t *testing.T) {
	reg := NewRegistry()

	desc := buffer.NewWriter()
	writeBaseScalarDesc(desc, Int64ID)

	c, err := reg.Resolve(Int64ID, desc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, KindScalar, c.Kind())
	assert.Equal(t, "std::int64", c.Name())

	// Second resolve hits the cache and returns the same instance.
	again, err := reg.Resolve(Int64ID, nil)
	require.NoError(t, err)
	assert.Same(t, c, again)
}

func TestRegistryResolveTupleTree(t *testing.T) {
	reg := NewRegistry()
	tupleID := uuid.MustParse("6cfc3f34-1ffc-4bf5-9d06-1b2b4ce4a2e4")

	desc := buffer.NewWriter()
	writeBaseScalarDesc(desc, Int32ID) // position 0
	writeBaseScalarDesc(desc, StrID)   // position 1
	desc.WriteByte(descTuple)          // position 2
	desc.WriteTypeID(tupleID)
	desc.WriteUint16(2)
	desc.WriteUint16(0)
	desc.WriteUint16(1)

	c, err := reg.Resolve(tupleID, desc.Bytes())
	require.NoError(t, err)

	tc, ok := c.(*TupleCodec)
	require.True(t, ok)
	require.Len(t, tc.Fields(), 2)
	assert.Equal(t, "std::int32", tc.Fields()[0].Name())
	assert.Equal(t, "std::str", tc.Fields()[1].Name())
}

func TestRegistryResolveNamedTuple(t *testing.T) {
	reg := NewRegistry()
	objID := uuid.MustParse("9f1a7b4e-67e1-4bf9-9208-d7b9ffe15b2b")

	desc := buffer.NewWriter()
	writeBaseScalarDesc(desc, Int64ID) // position 0
	desc.WriteByte(descNamedTuple)     // position 1
	desc.WriteTypeID(objID)
	desc.WriteUint16(1)
	desc.WriteString("id")
	desc.WriteUint16(0)

	c, err := reg.Resolve(objID, desc.Bytes())
	require.NoError(t, err)

	oc, ok := c.(*ObjectCodec)
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, oc.FieldNames())
}

func TestRegistryResolveArray(t *testing.T) {
	reg := NewRegistry()
	arrID := uuid.MustParse("4a0f5e12-88d1-4f18-b7e0-92e9a1c3db55")

	desc := buffer.NewWriter()
	writeBaseScalarDesc(desc, StrID) // position 0
	desc.WriteByte(descArray)        // position 1
	desc.WriteTypeID(arrID)
	desc.WriteUint16(0) // element position
	desc.WriteUint16(1) // ndims
	desc.WriteInt32(-1) // unbounded dimension

	c, err := reg.Resolve(arrID, desc.Bytes())
	require.NoError(t, err)

	ac, ok := c.(*ArrayCodec)
	require.True(t, ok)
	assert.Equal(t, "array<std::str>", ac.Name())
	assert.Equal(t, KindScalar, ac.Elem().Kind())
}

func TestRegistryResolveScalarAlias(t *testing.T) {
	reg := NewRegistry()
	aliasID := uuid.MustParse("f2c68f45-96b3-4a35-9e35-0ce1f9b73b6e")

	desc := buffer.NewWriter()
	writeBaseScalarDesc(desc, Int32ID) // position 0
	desc.WriteByte(descScalar)         // position 1
	desc.WriteTypeID(aliasID)
	desc.WriteUint16(0)

	c, err := reg.Resolve(aliasID, desc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, aliasID, c.ID())
	assert.Equal(t, KindScalar, c.Kind())

	// The alias shares the base scalar's wire form.
	got := roundTrip(t, c, int32(5))
	assert.Equal(t, int32(5), got)
}

func TestRegistryResolveErrors(t *testing.T) {
	reg := NewRegistry()

	t.Run("empty blob", func(t *testing.T) {
		_, err := reg.Resolve(uuid.New(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty type descriptor")
	})

	t.Run("unknown kind", func(t *testing.T) {
		desc := buffer.NewWriter()
		desc.WriteByte(0x77)
		desc.WriteTypeID(uuid.New())
		_, err := reg.Resolve(uuid.New(), desc.Bytes())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown type descriptor kind")
	})

	t.Run("id mismatch", func(t *testing.T) {
		desc := buffer.NewWriter()
		writeBaseScalarDesc(desc, Int32ID)
		_, err := reg.Resolve(uuid.New(), desc.Bytes())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected")
	})

	t.Run("dangling position", func(t *testing.T) {
		arrID := uuid.New()
		desc := buffer.NewWriter()
		desc.WriteByte(descArray)
		desc.WriteTypeID(arrID)
		desc.WriteUint16(3) // references a descriptor that was never parsed
		desc.WriteUint16(0)
		_, err := reg.Resolve(arrID, desc.Bytes())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "position")
	})
}
