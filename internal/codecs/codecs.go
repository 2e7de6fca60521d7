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

// Package codecs converts between Corax wire-format bytes and Go values.
//
// A Codec encodes one wire type. Codecs are immutable after construction and
// shared read-only across connections; the Registry owns them, the protocol
// layer only borrows references. Encode writes a length-prefixed payload;
// Decode receives the payload with the length prefix already stripped by the
// framing layer.
package codecs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coraxdb/corax-go/internal/buffer"
)

// Well-known type identifiers. Sixteen zero bytes mean "no codec assigned";
// the empty tuple has a fixed reserved id. These are wire constants and must
// never change.
var (
	NullID       = uuid.Nil
	EmptyTupleID = uuid.MustParse("00000000-0000-0000-0000-0000000000ff")
)

// ErrNotImplemented is returned when an operation is invoked on a codec that
// does not support it. Hitting it indicates a construction-time defect, not
// a recoverable condition.
var ErrNotImplemented = errors.New("codecs: operation not implemented")

// ErrMalformedData reports wire bytes that do not match the expected shape.
// The connection that produced them cannot be trusted afterwards.
var ErrMalformedData = errors.New("codecs: malformed wire data")

// Kind identifies the concrete variant of a codec.
type Kind int

const (
	KindNull Kind = iota
	KindEmptyTuple
	KindScalar
	KindTuple
	KindObject
	KindArray
)

// Codec converts one wire type to and from in-process values.
type Codec interface {
	// ID returns the 16-byte type identifier.
	ID() uuid.UUID

	// Name returns the human-readable type name.
	Name() string

	// Kind returns the concrete codec variant.
	Kind() Kind

	// Encode writes the length-prefixed wire form of v.
	Encode(w *buffer.Writer, v any) error

	// Decode reads a value from the payload bytes of one element.
	Decode(r *buffer.Reader) (any, error)

	// Dump renders a tree-shaped description for diagnostics.
	Dump(indent int) string
}

// baseCodec carries the identity shared by every codec variant. Its Encode
// and Decode fail loudly; only concrete variants are usable.
type baseCodec struct {
	id   uuid.UUID
	name string
}

func (c *baseCodec) ID() uuid.UUID { return c.id }

func (c *baseCodec) Name() string { return c.name }

func (c *baseCodec) Encode(w *buffer.Writer, v any) error {
	return fmt.Errorf("%w: encode of %q", ErrNotImplemented, c.name)
}

func (c *baseCodec) Decode(r *buffer.Reader) (any, error) {
	return nil, fmt.Errorf("%w: decode of %q", ErrNotImplemented, c.name)
}

func (c *baseCodec) Dump(indent int) string {
	return strings.Repeat("  ", indent) + c.name
}

// NullCodec is the placeholder bound to the all-zero type id. No payload
// type maps to it; it exists so "no codec yet assigned" is a concrete value
// rather than a nil reference. Encode and Decode always fail.
type NullCodec struct {
	baseCodec
}

// NewNullCodec creates the null placeholder codec.
func NewNullCodec() *NullCodec {
	return &NullCodec{baseCodec{id: NullID, name: "null"}}
}

func (c *NullCodec) Kind() Kind { return KindNull }

// emptyTuple is the one shared zero-element tuple value. Reusing it is a
// memory optimization only; callers get no identity guarantee.
var emptyTuple = []any{}

// EmptyTupleCodec handles the zero-arity tuple type.
type EmptyTupleCodec struct {
	baseCodec
}

// NewEmptyTupleCodec creates the codec for the empty tuple type.
func NewEmptyTupleCodec() *EmptyTupleCodec {
	return &EmptyTupleCodec{baseCodec{id: EmptyTupleID, name: "empty-tuple"}}
}

func (c *EmptyTupleCodec) Kind() Kind { return KindEmptyTuple }

// Encode writes the fixed 8-byte zero-element form. The input must be a
// tuple-like container of length exactly zero.
func (c *EmptyTupleCodec) Encode(w *buffer.Writer, v any) error {
	vals, ok := v.([]any)
	if !ok {
		return fmt.Errorf("cannot encode %T as an empty tuple", v)
	}
	if len(vals) != 0 {
		return fmt.Errorf("cannot encode []any of length %d as an empty tuple", len(vals))
	}
	writeEmptyComposite(w)
	return nil
}

// Decode reads the element count and returns the shared empty tuple value.
func (c *EmptyTupleCodec) Decode(r *buffer.Reader) (any, error) {
	count, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if count != 0 {
		return nil, fmt.Errorf("%w: empty tuple with element count %d", ErrMalformedData, count)
	}
	return emptyTuple, nil
}

// writeEmptyComposite writes the fixed zero-element composite form:
// length=4, count=0.
func writeEmptyComposite(w *buffer.Writer) {
	w.WriteUint32(4)
	w.WriteUint32(0)
}
