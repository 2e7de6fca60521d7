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
	"sync"

	"github.com/google/uuid"

	"github.com/coraxdb/corax-go/internal/buffer"
)

// Type descriptor kinds. A descriptor blob is a concatenation of
// descriptors, each one byte of kind, a 16-byte type id, and a kind-specific
// payload. Descriptors reference earlier descriptors in the same blob by
// position.
const (
	descBaseScalar byte = 2
	descScalar     byte = 3
	descTuple      byte = 4
	descNamedTuple byte = 5
	descArray      byte = 6
)

// Registry resolves server-sent type descriptors into codec trees and caches
// them by type id. It is safe for concurrent use; the codecs it hands out
// are immutable and shared.
type Registry struct {
	mu     sync.RWMutex
	codecs map[uuid.UUID]Codec
}

// NewRegistry creates a registry preloaded with the two reserved codecs.
func NewRegistry() *Registry {
	return &Registry{
		codecs: map[uuid.UUID]Codec{
			NullID:       NewNullCodec(),
			EmptyTupleID: NewEmptyTupleCodec(),
		},
	}
}

// Lookup returns the cached codec for a type id, if any.
func (reg *Registry) Lookup(id uuid.UUID) (Codec, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	c, ok := reg.codecs[id]
	return c, ok
}

// Resolve returns the codec for the given type id, building it from the
// descriptor blob if the id has not been seen before. The blob's final
// descriptor must describe the requested id.
func (reg *Registry) Resolve(id uuid.UUID, desc []byte) (Codec, error) {
	if c, ok := reg.Lookup(id); ok {
		return c, nil
	}

	c, err := buildCodec(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to build codec for type %s: %w", id, err)
	}
	if c.ID() != id {
		return nil, fmt.Errorf("descriptor blob describes type %s, expected %s", c.ID(), id)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	// Another goroutine may have resolved the same id concurrently; keep the
	// first codec so existing references stay canonical.
	if existing, ok := reg.codecs[id]; ok {
		return existing, nil
	}
	reg.codecs[id] = c
	return c, nil
}

// buildCodec parses a descriptor blob into a codec tree. The blob's last
// descriptor is the root.
func buildCodec(desc []byte) (Codec, error) {
	r := buffer.NewReader(desc)

	var built []Codec
	at := func(pos uint16) (Codec, error) {
		if int(pos) >= len(built) {
			return nil, fmt.Errorf("descriptor references position %d, only %d parsed", pos, len(built))
		}
		return built[pos], nil
	}

	for r.Remaining() > 0 {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		id, err := r.ReadTypeID()
		if err != nil {
			return nil, err
		}

		var c Codec
		switch kind {
		case descBaseScalar:
			c, err = BaseScalarCodec(id)
			if err != nil {
				return nil, err
			}

		case descScalar:
			pos, err := r.ReadUint16()
			if err != nil {
				return nil, err
			}
			base, err := at(pos)
			if err != nil {
				return nil, err
			}
			if base.Kind() != KindScalar {
				return nil, fmt.Errorf("scalar descriptor %s has non-scalar base %q", id, base.Name())
			}
			c = &scalarAliasCodec{baseCodec: baseCodec{id: id, name: base.Name()}, base: base}

		case descTuple:
			fields, err := readFieldPositions(r, at)
			if err != nil {
				return nil, err
			}
			c = NewTupleCodec(id, "tuple", fields)

		case descNamedTuple:
			count, err := r.ReadUint16()
			if err != nil {
				return nil, err
			}
			names := make([]string, count)
			fields := make([]Codec, count)
			for i := range fields {
				if names[i], err = r.ReadString(); err != nil {
					return nil, err
				}
				pos, err := r.ReadUint16()
				if err != nil {
					return nil, err
				}
				if fields[i], err = at(pos); err != nil {
					return nil, err
				}
			}
			c, err = NewObjectCodec(id, "object", names, fields)
			if err != nil {
				return nil, err
			}

		case descArray:
			pos, err := r.ReadUint16()
			if err != nil {
				return nil, err
			}
			elem, err := at(pos)
			if err != nil {
				return nil, err
			}
			ndims, err := r.ReadUint16()
			if err != nil {
				return nil, err
			}
			for range ndims {
				if _, err := r.ReadInt32(); err != nil {
					return nil, err
				}
			}
			c = NewArrayCodec(id, "array<"+elem.Name()+">", elem)

		default:
			return nil, fmt.Errorf("unknown type descriptor kind %d", kind)
		}

		built = append(built, c)
	}

	if len(built) == 0 {
		return nil, fmt.Errorf("empty type descriptor blob")
	}
	return built[len(built)-1], nil
}

// readFieldPositions reads a uint16 count followed by that many positional
// references.
func readFieldPositions(r *buffer.Reader, at func(uint16) (Codec, error)) ([]Codec, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	fields := make([]Codec, count)
	for i := range fields {
		pos, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		if fields[i], err = at(pos); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// scalarAliasCodec is a named scalar type that shares a base scalar's wire
// form but carries its own type id.
type scalarAliasCodec struct {
	baseCodec
	base Codec
}

func (c *scalarAliasCodec) Kind() Kind { return KindScalar }

func (c *scalarAliasCodec) Encode(w *buffer.Writer, v any) error {
	return c.base.Encode(w, v)
}

func (c *scalarAliasCodec) Decode(r *buffer.Reader) (any, error) {
	return c.base.Decode(r)
}
