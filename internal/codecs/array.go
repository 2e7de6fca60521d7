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
	"strings"

	"github.com/google/uuid"

	"github.com/coraxdb/corax-go/internal/buffer"
)

// ArrayCodec encodes a single-dimension array of a homogeneous element
// type.
//
// Wire form of the payload: ndims int32, two reserved int32, then per
// dimension an (upper, lower) int32 pair, then the length-prefixed
// elements. An empty array has ndims 0 and no dimension entries.
type ArrayCodec struct {
	baseCodec
	elem Codec
}

// NewArrayCodec creates an array codec over the given element codec.
func NewArrayCodec(id uuid.UUID, name string, elem Codec) *ArrayCodec {
	return &ArrayCodec{baseCodec: baseCodec{id: id, name: name}, elem: elem}
}

func (c *ArrayCodec) Kind() Kind { return KindArray }

// Elem returns the element codec.
func (c *ArrayCodec) Elem() Codec {
	return c.elem
}

func (c *ArrayCodec) Encode(w *buffer.Writer, v any) error {
	vals, ok := v.([]any)
	if !ok {
		return fmt.Errorf("cannot encode %T as array %q: expected []any", v, c.name)
	}

	scratch := buffer.NewWriter()
	if len(vals) == 0 {
		scratch.WriteInt32(0) // ndims
		scratch.WriteInt32(0) // reserved
		scratch.WriteInt32(0) // reserved
	} else {
		scratch.WriteInt32(1)
		scratch.WriteInt32(0)
		scratch.WriteInt32(0)
		scratch.WriteInt32(int32(len(vals))) // upper bound
		scratch.WriteInt32(1)                // lower bound
		for i, val := range vals {
			if val == nil {
				scratch.WriteInt32(-1)
				continue
			}
			if err := c.elem.Encode(scratch, val); err != nil {
				return fmt.Errorf("invalid value for element %d of array %q: %w", i, c.name, err)
			}
		}
	}

	w.WriteUint32(uint32(scratch.Len()))
	w.WriteBuffer(scratch)
	return nil
}

func (c *ArrayCodec) Decode(r *buffer.Reader) (any, error) {
	ndims, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if _, err := r.ReadBytes(8); err != nil { // reserved
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if ndims == 0 {
		return []any{}, nil
	}
	if ndims != 1 {
		return nil, fmt.Errorf("%w: array %q has %d dimensions, expected at most 1",
			ErrMalformedData, c.name, ndims)
	}

	upper, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	lower, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	count := int(upper - lower + 1)
	if count < 0 {
		return nil, fmt.Errorf("%w: array %q has negative length", ErrMalformedData, c.name)
	}

	vals := make([]any, count)
	for i := range vals {
		payload, err := r.ReadByteString()
		if err != nil {
			return nil, fmt.Errorf("%w: element %d of array %q: %v",
				ErrMalformedData, i, c.name, err)
		}
		if payload == nil {
			continue
		}
		vals[i], err = c.elem.Decode(buffer.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("element %d of array %q: %w", i, c.name, err)
		}
	}
	return vals, nil
}

func (c *ArrayCodec) Dump(indent int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString(c.name)
	b.WriteByte('\n')
	b.WriteString(c.elem.Dump(indent + 1))
	return b.String()
}
