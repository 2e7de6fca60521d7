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
	"sync"

	"github.com/google/uuid"

	"github.com/coraxdb/corax-go/internal/buffer"
)

// TupleCodec encodes a positional record of heterogeneous fields.
//
// Field codecs must be scalars or arrays of scalars; this is validated
// lazily on first encode and the result is memoized, so an invalid shape
// fails fast on the first real attempt instead of during descriptor parsing
// (where it would break unrelated codecs in the same descriptor tree).
type TupleCodec struct {
	baseCodec
	fields []Codec

	validateOnce sync.Once
	encodeErr    error
}

// NewTupleCodec creates a positional record codec over the given field
// codecs.
func NewTupleCodec(id uuid.UUID, name string, fields []Codec) *TupleCodec {
	return &TupleCodec{baseCodec: baseCodec{id: id, name: name}, fields: fields}
}

func (c *TupleCodec) Kind() Kind { return KindTuple }

// Fields returns the ordered child codecs.
func (c *TupleCodec) Fields() []Codec {
	return c.fields
}

// validate checks that every field codec can appear inside a record. It runs
// at most once per codec instance.
func (c *TupleCodec) validate() error {
	c.validateOnce.Do(func() {
		for i, field := range c.fields {
			switch field.Kind() {
			case KindScalar:
			case KindArray:
				if field.(*ArrayCodec).elem.Kind() != KindScalar {
					c.encodeErr = fmt.Errorf(
						"invalid record codec %q: field %d is an array of non-scalar %q",
						c.name, i, field.Name())
					return
				}
			default:
				c.encodeErr = fmt.Errorf(
					"invalid record codec %q: field %d has non-scalar codec %q",
					c.name, i, field.Name())
				return
			}
		}
	})
	return c.encodeErr
}

// Encode writes the record wire form: 4-byte total length, 4-byte field
// count, then per field a 4-byte length (-1 for null) and the payload. An
// empty input encodes to the fixed zero-element form regardless of arity.
func (c *TupleCodec) Encode(w *buffer.Writer, v any) error {
	vals, ok := v.([]any)
	if !ok {
		return fmt.Errorf("cannot encode %T as record %q: expected []any", v, c.name)
	}
	return c.encodeFields(w, vals)
}

func (c *TupleCodec) encodeFields(w *buffer.Writer, vals []any) error {
	if len(vals) == 0 {
		writeEmptyComposite(w)
		return nil
	}
	if len(vals) != len(c.fields) {
		return fmt.Errorf("record %q expects %d elements, got %d",
			c.name, len(c.fields), len(vals))
	}
	if err := c.validate(); err != nil {
		return err
	}

	scratch := buffer.NewWriter()
	for i, val := range vals {
		if val == nil {
			scratch.WriteInt32(-1)
			continue
		}
		if err := c.fields[i].Encode(scratch, val); err != nil {
			return fmt.Errorf("invalid value for field %d of record %q: %w", i, c.name, err)
		}
	}

	w.WriteUint32(uint32(4 + scratch.Len()))
	w.WriteUint32(uint32(len(vals)))
	w.WriteBuffer(scratch)
	return nil
}

// Decode reads the element count and then successive (length, payload)
// pairs, mirroring the encode path. A -1 length yields a nil element.
func (c *TupleCodec) Decode(r *buffer.Reader) (any, error) {
	vals, err := c.decodeFields(r)
	if err != nil {
		return nil, err
	}
	return vals, nil
}

func (c *TupleCodec) decodeFields(r *buffer.Reader) ([]any, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if count == 0 {
		return emptyTuple, nil
	}
	if int(count) != len(c.fields) {
		return nil, fmt.Errorf("%w: record %q described %d fields, wire has %d",
			ErrMalformedData, c.name, len(c.fields), count)
	}

	vals := make([]any, count)
	for i := range vals {
		payload, err := r.ReadByteString()
		if err != nil {
			return nil, fmt.Errorf("%w: field %d of record %q: %v",
				ErrMalformedData, i, c.name, err)
		}
		if payload == nil {
			continue // NULL element
		}
		vals[i], err = c.fields[i].Decode(buffer.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("field %d of record %q: %w", i, c.name, err)
		}
	}
	return vals, nil
}

// Dump renders the codec and its fields as an indented tree.
func (c *TupleCodec) Dump(indent int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString(c.name)
	for _, field := range c.fields {
		b.WriteByte('\n')
		b.WriteString(field.Dump(indent + 1))
	}
	return b.String()
}

// ObjectCodec extends TupleCodec with a field-name descriptor. Positional
// encoding and decoding are inherited; names additionally allow keyword
// argument encoding and name-keyed decoding.
type ObjectCodec struct {
	TupleCodec
	names []string
}

// NewObjectCodec creates a named record codec. names and fields must have
// the same length.
func NewObjectCodec(id uuid.UUID, name string, names []string, fields []Codec) (*ObjectCodec, error) {
	if len(names) != len(fields) {
		return nil, fmt.Errorf("object codec %q: %d names for %d fields",
			name, len(names), len(fields))
	}
	return &ObjectCodec{
		TupleCodec: TupleCodec{baseCodec: baseCodec{id: id, name: name}, fields: fields},
		names:      names,
	}, nil
}

func (c *ObjectCodec) Kind() Kind { return KindObject }

// FieldNames returns the ordered field names.
func (c *ObjectCodec) FieldNames() []string {
	return c.names
}

// EncodeNamed encodes keyword arguments by mapping names to field
// positions. Every field must be present; unknown names are rejected.
func (c *ObjectCodec) EncodeNamed(w *buffer.Writer, kwargs map[string]any) error {
	if len(kwargs) == 0 {
		writeEmptyComposite(w)
		return nil
	}
	if len(kwargs) != len(c.names) {
		return fmt.Errorf("record %q expects %d arguments, got %d",
			c.name, len(c.names), len(kwargs))
	}
	vals := make([]any, len(c.names))
	for i, name := range c.names {
		val, ok := kwargs[name]
		if !ok {
			return fmt.Errorf("record %q: missing argument %q", c.name, name)
		}
		vals[i] = val
	}
	return c.encodeFields(w, vals)
}

// Decode reads the record and keys the elements by field name.
func (c *ObjectCodec) Decode(r *buffer.Reader) (any, error) {
	vals, err := c.decodeFields(r)
	if err != nil {
		return nil, err
	}
	obj := make(map[string]any, len(vals))
	for i, val := range vals {
		obj[c.names[i]] = val
	}
	return obj, nil
}

// Dump renders each field as "name := <child>" one level deeper than the
// parent.
func (c *ObjectCodec) Dump(indent int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString(c.name)
	for i, field := range c.fields {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("  ", indent+1))
		b.WriteString(c.names[i])
		b.WriteString(" := ")
		b.WriteString(strings.TrimLeft(field.Dump(indent+1), " "))
	}
	return b.String()
}
