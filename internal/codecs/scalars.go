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
	"math"

	"github.com/google/uuid"

	"github.com/coraxdb/corax-go/internal/buffer"
)

// Well-known base scalar type identifiers.
var (
	UUIDID    = uuid.MustParse("00000000-0000-0000-0000-000000000100")
	StrID     = uuid.MustParse("00000000-0000-0000-0000-000000000101")
	BytesID   = uuid.MustParse("00000000-0000-0000-0000-000000000102")
	Int16ID   = uuid.MustParse("00000000-0000-0000-0000-000000000103")
	Int32ID   = uuid.MustParse("00000000-0000-0000-0000-000000000104")
	Int64ID   = uuid.MustParse("00000000-0000-0000-0000-000000000105")
	Float32ID = uuid.MustParse("00000000-0000-0000-0000-000000000106")
	Float64ID = uuid.MustParse("00000000-0000-0000-0000-000000000107")
	BoolID    = uuid.MustParse("00000000-0000-0000-0000-000000000109")
)

// BaseScalarCodec returns the codec for a well-known base scalar type id.
func BaseScalarCodec(id uuid.UUID) (Codec, error) {
	switch id {
	case UUIDID:
		return &UUIDCodec{baseCodec{id: UUIDID, name: "std::uuid"}}, nil
	case StrID:
		return &StrCodec{baseCodec{id: StrID, name: "std::str"}}, nil
	case BytesID:
		return &BytesCodec{baseCodec{id: BytesID, name: "std::bytes"}}, nil
	case Int16ID:
		return &Int16Codec{baseCodec{id: Int16ID, name: "std::int16"}}, nil
	case Int32ID:
		return &Int32Codec{baseCodec{id: Int32ID, name: "std::int32"}}, nil
	case Int64ID:
		return &Int64Codec{baseCodec{id: Int64ID, name: "std::int64"}}, nil
	case Float32ID:
		return &Float32Codec{baseCodec{id: Float32ID, name: "std::float32"}}, nil
	case Float64ID:
		return &Float64Codec{baseCodec{id: Float64ID, name: "std::float64"}}, nil
	case BoolID:
		return &BoolCodec{baseCodec{id: BoolID, name: "std::bool"}}, nil
	default:
		return nil, fmt.Errorf("unknown base scalar type id %s", id)
	}
}

// checkFixedSize verifies that a fixed-width scalar payload has the exact
// expected length.
func checkFixedSize(name string, r *buffer.Reader, want int) error {
	if r.Remaining() != want {
		return fmt.Errorf("%w: %s payload is %d bytes, expected %d",
			ErrMalformedData, name, r.Remaining(), want)
	}
	return nil
}

// StrCodec encodes std::str as UTF-8 bytes.
type StrCodec struct {
	baseCodec
}

func (c *StrCodec) Kind() Kind { return KindScalar }

func (c *StrCodec) Encode(w *buffer.Writer, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("cannot encode %T as %s", v, c.name)
	}
	w.WriteString(s)
	return nil
}

func (c *StrCodec) Decode(r *buffer.Reader) (any, error) {
	b, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// BytesCodec encodes std::bytes as a raw byte run.
type BytesCodec struct {
	baseCodec
}

func (c *BytesCodec) Kind() Kind { return KindScalar }

func (c *BytesCodec) Encode(w *buffer.Writer, v any) error {
	b, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("cannot encode %T as %s", v, c.name)
	}
	w.WriteUint32(uint32(len(b)))
	w.WriteBytes(b)
	return nil
}

func (c *BytesCodec) Decode(r *buffer.Reader) (any, error) {
	b, err := r.ReadBytes(r.Remaining())
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// BoolCodec encodes std::bool as a single byte.
type BoolCodec struct {
	baseCodec
}

func (c *BoolCodec) Kind() Kind { return KindScalar }

func (c *BoolCodec) Encode(w *buffer.Writer, v any) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("cannot encode %T as %s", v, c.name)
	}
	w.WriteUint32(1)
	if b {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
	return nil
}

func (c *BoolCodec) Decode(r *buffer.Reader) (any, error) {
	if err := checkFixedSize(c.name, r, 1); err != nil {
		return nil, err
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return nil, fmt.Errorf("%w: invalid bool byte 0x%02x", ErrMalformedData, b)
	}
}

// Int16Codec encodes std::int16.
type Int16Codec struct {
	baseCodec
}

func (c *Int16Codec) Kind() Kind { return KindScalar }

func (c *Int16Codec) Encode(w *buffer.Writer, v any) error {
	var val int16
	switch t := v.(type) {
	case int16:
		val = t
	case int:
		if t < math.MinInt16 || t > math.MaxInt16 {
			return fmt.Errorf("value %d out of range for %s", t, c.name)
		}
		val = int16(t)
	default:
		return fmt.Errorf("cannot encode %T as %s", v, c.name)
	}
	w.WriteUint32(2)
	w.WriteInt16(val)
	return nil
}

func (c *Int16Codec) Decode(r *buffer.Reader) (any, error) {
	if err := checkFixedSize(c.name, r, 2); err != nil {
		return nil, err
	}
	v, err := r.ReadInt16()
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Int32Codec encodes std::int32.
type Int32Codec struct {
	baseCodec
}

func (c *Int32Codec) Kind() Kind { return KindScalar }

func (c *Int32Codec) Encode(w *buffer.Writer, v any) error {
	var val int32
	switch t := v.(type) {
	case int32:
		val = t
	case int:
		if t < math.MinInt32 || t > math.MaxInt32 {
			return fmt.Errorf("value %d out of range for %s", t, c.name)
		}
		val = int32(t)
	default:
		return fmt.Errorf("cannot encode %T as %s", v, c.name)
	}
	w.WriteUint32(4)
	w.WriteInt32(val)
	return nil
}

func (c *Int32Codec) Decode(r *buffer.Reader) (any, error) {
	if err := checkFixedSize(c.name, r, 4); err != nil {
		return nil, err
	}
	v, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Int64Codec encodes std::int64.
type Int64Codec struct {
	baseCodec
}

func (c *Int64Codec) Kind() Kind { return KindScalar }

func (c *Int64Codec) Encode(w *buffer.Writer, v any) error {
	var val int64
	switch t := v.(type) {
	case int64:
		val = t
	case int:
		val = int64(t)
	default:
		return fmt.Errorf("cannot encode %T as %s", v, c.name)
	}
	w.WriteUint32(8)
	w.WriteUint64(uint64(val))
	return nil
}

func (c *Int64Codec) Decode(r *buffer.Reader) (any, error) {
	if err := checkFixedSize(c.name, r, 8); err != nil {
		return nil, err
	}
	v, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	return int64(v), nil
}

// Float32Codec encodes std::float32.
type Float32Codec struct {
	baseCodec
}

func (c *Float32Codec) Kind() Kind { return KindScalar }

func (c *Float32Codec) Encode(w *buffer.Writer, v any) error {
	val, ok := v.(float32)
	if !ok {
		return fmt.Errorf("cannot encode %T as %s", v, c.name)
	}
	w.WriteUint32(4)
	w.WriteUint32(math.Float32bits(val))
	return nil
}

func (c *Float32Codec) Decode(r *buffer.Reader) (any, error) {
	if err := checkFixedSize(c.name, r, 4); err != nil {
		return nil, err
	}
	v, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return math.Float32frombits(v), nil
}

// Float64Codec encodes std::float64.
type Float64Codec struct {
	baseCodec
}

func (c *Float64Codec) Kind() Kind { return KindScalar }

func (c *Float64Codec) Encode(w *buffer.Writer, v any) error {
	val, ok := v.(float64)
	if !ok {
		return fmt.Errorf("cannot encode %T as %s", v, c.name)
	}
	w.WriteUint32(8)
	w.WriteUint64(math.Float64bits(val))
	return nil
}

func (c *Float64Codec) Decode(r *buffer.Reader) (any, error) {
	if err := checkFixedSize(c.name, r, 8); err != nil {
		return nil, err
	}
	v, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	return math.Float64frombits(v), nil
}

// UUIDCodec encodes std::uuid as 16 raw bytes.
type UUIDCodec struct {
	baseCodec
}

func (c *UUIDCodec) Kind() Kind { return KindScalar }

func (c *UUIDCodec) Encode(w *buffer.Writer, v any) error {
	id, ok := v.(uuid.UUID)
	if !ok {
		return fmt.Errorf("cannot encode %T as %s", v, c.name)
	}
	w.WriteUint32(16)
	w.WriteTypeID(id)
	return nil
}

func (c *UUIDCodec) Decode(r *buffer.Reader) (any, error) {
	if err := checkFixedSize(c.name, r, 16); err != nil {
		return nil, err
	}
	return r.ReadTypeID()
}
