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

// roundTrip encodes v with c and decodes the produced payload back.
func roundTrip(t *testing.T, c Codec, v any) any {
	t.Helper()

	w := buffer.NewWriter()
	require.NoError(t, c.Encode(w, v))

	r := buffer.NewReader(w.Bytes())
	payload, err := r.ReadByteString()
	require.NoError(t, err)
	require.Equal(t, 0, r.Remaining(), "encode produced trailing bytes")

	out, err := c.Decode(buffer.NewReader(payload))
	require.NoError(t, err)
	return out
}

func TestNullCodec(t *testing.T) {
	c := NewNullCodec()
	assert.Equal(t, NullID, c.ID())
	assert.Equal(t, KindNull, c.Kind())

	err := c.Encode(buffer.NewWriter(), nil)
	assert.ErrorIs(t, err, ErrNotImplemented)

	_, err = c.Decode(buffer.NewReader(nil))
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestEmptyTupleEncodeFixedForm(t *testing.T) {
	c := NewEmptyTupleCodec()
	assert.Equal(t, EmptyTupleID, c.ID())

	w := buffer.NewWriter()
	require.NoError(t, c.Encode(w, []any{}))
	assert.Equal(t, []byte{0, 0, 0, 4, 0, 0, 0, 0}, w.Bytes())
}

func TestEmptyTupleEncodeRejectsShape(t *testing.T) {
	c := NewEmptyTupleCodec()

	err := c.Encode(buffer.NewWriter(), "not a tuple")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "string")

	err = c.Encode(buffer.NewWriter(), []any{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "length 1")
}

func TestEmptyTupleDecode(t *testing.T) {
	c := NewEmptyTupleCodec()

	v, err := c.Decode(buffer.NewReader([]byte{0, 0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, []any{}, v)

	// Non-zero element count is wire corruption.
	_, err = c.Decode(buffer.NewReader([]byte{0, 0, 0, 1}))
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestEmptyTupleRoundTrip(t *testing.T) {
	c := NewEmptyTupleCodec()
	assert.Equal(t, []any{}, roundTrip(t, c, []any{}))
}

func TestScalarRoundTrips(t *testing.T) {
	tests := []struct {
		name string
		id   [16]byte
		v    any
	}{
		{"str", StrID, "héllo wörld"},
		{"empty str", StrID, ""},
		{"bytes", BytesID, []byte{0x00, 0x01, 0xff}},
		{"bool", BoolID, true},
		{"int16", Int16ID, int16(-42)},
		{"int32", Int32ID, int32(1 << 30)},
		{"int64", Int64ID, int64(-1)},
		{"float32", Float32ID, float32(-0.5)},
		{"float64", Float64ID, 3.5},
		{"uuid", UUIDID, uuid.MustParse("6f9619ff-8b86-d011-b42d-00c04fc964ff")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := BaseScalarCodec(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.v, roundTrip(t, c, tt.v))
		})
	}
}

func TestScalarShapeErrors(t *testing.T) {
	c, err := BaseScalarCodec(Int32ID)
	require.NoError(t, err)

	err = c.Encode(buffer.NewWriter(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "string")

	// Out-of-range plain int.
	err = c.Encode(buffer.NewWriter(), 1<<40)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestScalarDecodeWrongWidth(t *testing.T) {
	c, err := BaseScalarCodec(Int64ID)
	require.NoError(t, err)

	_, err = c.Decode(buffer.NewReader([]byte{0, 0, 0, 1}))
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestUnknownBaseScalar(t *testing.T) {
	_, err := BaseScalarCodec([16]byte{0xde, 0xad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown base scalar")
}
