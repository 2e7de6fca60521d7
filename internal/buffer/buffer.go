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

// Package buffer provides the byte-cursor primitives used by the Corax wire
// protocol: a Reader over a received byte stream and a Writer that
// accumulates outgoing bytes. All multi-byte integers are big-endian.
package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInsufficientData is returned when the buffer does not hold enough bytes
// to satisfy a read. At a message boundary this means "feed more bytes and
// retry"; inside a framed message body it means the frame lied about its
// length.
var ErrInsufficientData = errors.New("buffer: insufficient data")

// messageHeaderSize is one tag byte plus the 4-byte length field.
const messageHeaderSize = 5

// Reader is a cursor over a received byte stream. Reads are all-or-nothing:
// a failed read consumes no bytes.
type Reader struct {
	buf []byte
	pos int
}

// NewReader creates a Reader over the given bytes.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Feed appends newly received bytes to the stream. Once the cursor has
// consumed everything, the underlying storage is reused.
func (r *Reader) Feed(p []byte) {
	if r.pos == len(r.buf) {
		r.buf = r.buf[:0]
		r.pos = 0
	}
	r.buf = append(r.buf, p...)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrInsufficientData
	}
	return r.buf[r.pos], nil
}

// HasMessage reports whether a complete framed message (tag byte plus the
// full declared length) is available.
func (r *Reader) HasMessage() (bool, error) {
	if r.Remaining() < messageHeaderSize {
		return false, nil
	}
	length := binary.BigEndian.Uint32(r.buf[r.pos+1:])
	if length < 4 {
		return false, fmt.Errorf("invalid message length: %d", length)
	}
	return r.Remaining() >= 1+int(length), nil
}

// ReadMessage consumes one framed message and returns its tag and a Reader
// over its body. If the stream does not yet hold the complete message,
// nothing is consumed and ErrInsufficientData is returned.
func (r *Reader) ReadMessage() (byte, *Reader, error) {
	ok, err := r.HasMessage()
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, ErrInsufficientData
	}
	tag := r.buf[r.pos]
	length := int(binary.BigEndian.Uint32(r.buf[r.pos+1:]))
	body := r.buf[r.pos+messageHeaderSize : r.pos+1+length]
	r.pos += 1 + length
	return tag, NewReader(body), nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrInsufficientData
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadUint16 reads a 16-bit unsigned integer.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, ErrInsufficientData
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadUint32 reads a 32-bit unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ErrInsufficientData
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadUint64 reads a 64-bit unsigned integer.
func (r *Reader) ReadUint64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, ErrInsufficientData
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadInt16 reads a 16-bit signed integer.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadInt32 reads a 32-bit signed integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadBytes reads n bytes. The returned slice aliases the underlying buffer
// and must not be retained across a Feed.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrInsufficientData
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadString reads a length-prefixed UTF-8 string (4-byte length + bytes).
func (r *Reader) ReadString() (string, error) {
	length, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadByteString reads a length-prefixed byte string (4-byte signed length +
// data). Returns nil if the length is -1 (NULL).
func (r *Reader) ReadByteString() ([]byte, error) {
	length, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if length == -1 {
		return nil, nil // NULL
	}
	if length < 0 {
		return nil, fmt.Errorf("invalid byte string length: %d", length)
	}
	return r.ReadBytes(int(length))
}

// ReadTypeID reads a 16-byte type identifier.
func (r *Reader) ReadTypeID() (uuid.UUID, error) {
	b, err := r.ReadBytes(16)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

// Writer accumulates outgoing message bytes.
type Writer struct {
	buf []byte
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length of the accumulated bytes.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset resets the writer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteUint16 writes a 16-bit unsigned integer.
func (w *Writer) WriteUint16(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	w.buf = append(w.buf, buf[:]...)
}

// WriteUint32 writes a 32-bit unsigned integer.
func (w *Writer) WriteUint32(v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	w.buf = append(w.buf, buf[:]...)
}

// WriteUint64 writes a 64-bit unsigned integer.
func (w *Writer) WriteUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	w.buf = append(w.buf, buf[:]...)
}

// WriteInt16 writes a 16-bit signed integer.
func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

// WriteInt32 writes a 32-bit signed integer.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteString writes a length-prefixed UTF-8 string (4-byte length + bytes).
func (w *Writer) WriteString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteByteString writes a length-prefixed byte string (4-byte signed length
// + data). Writes -1 for nil (NULL).
func (w *Writer) WriteByteString(b []byte) {
	if b == nil {
		w.WriteInt32(-1)
		return
	}
	w.WriteInt32(int32(len(b)))
	w.WriteBytes(b)
}

// WriteTypeID writes a 16-byte type identifier.
func (w *Writer) WriteTypeID(id uuid.UUID) {
	w.buf = append(w.buf, id[:]...)
}

// WriteBuffer writes another writer's accumulated contents.
func (w *Writer) WriteBuffer(other *Writer) {
	w.buf = append(w.buf, other.buf...)
}
