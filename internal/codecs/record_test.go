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

func mustBaseScalar(t *testing.T, id uuid.UUID) Codec {
	t.Helper()
	c, err := BaseScalarCodec(id)
	require.NoError(t, err)
	return c
}

// newInt32StrTuple builds a two-field (int32, str) record codec.
func newInt32StrTuple(t *testing.T) *TupleCodec {
	t.Helper()
	return NewTupleCodec(
		uuid.MustParse("a54902e4-0de5-45fe-a833-a456e0b01618"),
		"tuple",
		[]Codec{mustBaseScalar(t, Int32ID), mustBaseScalar(t, StrID)},
	)
}

func TestTupleRoundTripWithNull(t *testing.T) {
	c := newInt32StrTuple(t)
	got := roundTrip(t, c, []any{nil, "hi"})
	assert.Equal(t, []any{nil, "hi"}, got)
}

func TestTupleRoundTrip(t *testing.T) {
	c := newInt32StrTuple(t)
	got := roundTrip(t, c, []any{int32(7), "seven"})
	assert.Equal(t, []any{int32(7), "seven"}, got)
}

func TestTupleNullElementWireForm(t *testing.T) {
	c := newInt32StrTuple(t)

	w := buffer.NewWriter()
	require.NoError(t, c.Encode(w, []any{nil, "hi"}))

	// total length, count=2, -1 for null, then the str element.
	want := []byte{
		0, 0, 0, 14, // total length = 4 + 4 + 4 + 2
		0, 0, 0, 2, // element count
		0xff, 0xff, 0xff, 0xff, // null sentinel, no payload bytes
		0, 0, 0, 2, 'h', 'i',
	}
	assert.Equal(t, want, w.Bytes())
}

func TestTupleEmptyInputEncodesFixedForm(t *testing.T) {
	// An empty container encodes to the zero-element form regardless of
	// arity.
	c := newInt32StrTuple(t)

	w := buffer.NewWriter()
	require.NoError(t, c.Encode(w, []any{}))
	assert.Equal(t, []byte{0, 0, 0, 4, 0, 0, 0, 0}, w.Bytes())
}

func TestZeroFieldTupleRoundTrip(t *testing.T) {
	c := NewTupleCodec(uuid.New(), "tuple", nil)
	got := roundTrip(t, c, []any{})
	assert.Equal(t, []any{}, got)
}

func TestTupleArityMismatch(t *testing.T) {
	c := newInt32StrTuple(t)

	err := c.Encode(buffer.NewWriter(), []any{int32(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 2 elements, got 1")

	err = c.Encode(buffer.NewWriter(), []any{int32(1), "a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 2 elements, got 3")
}

func TestTupleRejectsNonContainer(t *testing.T) {
	c := newInt32StrTuple(t)
	err := c.Encode(buffer.NewWriter(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "int")
}

func TestTupleFieldErrorNamesField(t *testing.T) {
	c := newInt32StrTuple(t)

	err := c.Encode(buffer.NewWriter(), []any{int32(1), 99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 1")
}

func TestTupleValidationRejectsNestedTuple(t *testing.T) {
	inner := newInt32StrTuple(t)
	c := NewTupleCodec(uuid.New(), "tuple", []Codec{inner})

	err := c.Encode(buffer.NewWriter(), []any{[]any{int32(1), "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-scalar")

	// The validation result is memoized: a second attempt fails the same
	// way without revalidating.
	err2 := c.Encode(buffer.NewWriter(), []any{[]any{int32(1), "x"}})
	assert.Equal(t, err, err2)
}

func TestTupleAllowsArrayOfScalarField(t *testing.T) {
	arr := NewArrayCodec(uuid.New(), "array<std::int32>", mustBaseScalar(t, Int32ID))
	c := NewTupleCodec(uuid.New(), "tuple", []Codec{arr})

	got := roundTrip(t, c, []any{[]any{int32(1), nil, int32(3)}})
	assert.Equal(t, []any{[]any{int32(1), nil, int32(3)}}, got)
}

func TestTupleDecodeCountMismatch(t *testing.T) {
	c := newInt32StrTuple(t)

	body := buffer.NewWriter()
	body.WriteUint32(3) // wire says 3 fields, codec has 2
	_, err := c.Decode(buffer.NewReader(body.Bytes()))
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestArrayRoundTrip(t *testing.T) {
	c := NewArrayCodec(uuid.New(), "array<std::str>", mustBaseScalar(t, StrID))

	got := roundTrip(t, c, []any{"a", "b", "c"})
	assert.Equal(t, []any{"a", "b", "c"}, got)

	got = roundTrip(t, c, []any{})
	assert.Equal(t, []any{}, got)
}

func newObjectCodec(t *testing.T) *ObjectCodec {
	t.Helper()
	c, err := NewObjectCodec(
		uuid.MustParse("2ce70ad8-bfd8-47d9-a4f3-b18ab3b258cf"),
		"object",
		[]string{"id", "title"},
		[]Codec{mustBaseScalar(t, Int64ID), mustBaseScalar(t, StrID)},
	)
	require.NoError(t, err)
	return c
}

func TestObjectDecodeKeysByName(t *testing.T) {
	c := newObjectCodec(t)

	w := buffer.NewWriter()
	require.NoError(t, c.Encode(w, []any{int64(3), "third"}))

	r := buffer.NewReader(w.Bytes())
	payload, err := r.ReadByteString()
	require.NoError(t, err)

	v, err := c.Decode(buffer.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(3), "title": "third"}, v)
}

func TestObjectEncodeNamed(t *testing.T) {
	c := newObjectCodec(t)

	w := buffer.NewWriter()
	err := c.EncodeNamed(w, map[string]any{"title": "third", "id": int64(3)})
	require.NoError(t, err)

	// Named encoding must produce the same bytes as positional encoding.
	pos := buffer.NewWriter()
	require.NoError(t, c.Encode(pos, []any{int64(3), "third"}))
	assert.Equal(t, pos.Bytes(), w.Bytes())
}

func TestObjectEncodeNamedMissingArgument(t *testing.T) {
	c := newObjectCodec(t)

	err := c.EncodeNamed(buffer.NewWriter(), map[string]any{"id": int64(1), "nope": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing argument "title"`)
}

func TestObjectDump(t *testing.T) {
	c := newObjectCodec(t)

	dump := c.Dump(0)
	assert.Equal(t, "object\n  id := std::int64\n  title := std::str", dump)
}

func TestTupleDump(t *testing.T) {
	c := newInt32StrTuple(t)
	assert.Equal(t, "tuple\n  std::int32\n  std::str", c.Dump(0))
}
