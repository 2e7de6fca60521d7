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

package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation reports wire bytes that do not match the protocol.
// Message framing cannot be trusted after one, so the connection must be
// aborted rather than resynchronized.
var ErrProtocolViolation = errors.New("protocol: violation")

// ErrNotConnected is returned when an operation requires an established
// connection.
var ErrNotConnected = errors.New("protocol: not connected")

// Error severity codes carried by ErrorResponse messages.
const (
	SeverityError byte = 120
	SeverityFatal byte = 200
	SeverityPanic byte = 255
)

// Attribute keys on ErrorResponse messages.
const (
	AttrHint    uint16 = 0x0101
	AttrDetails uint16 = 0x0102
)

// ServerError is a structured error reported by the server. It is not a
// defect in this package; it is passed through to the caller after
// enrichment.
type ServerError struct {
	Severity   byte
	Code       uint32
	Message    string
	Attributes Headers
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s (code 0x%08x)", severityName(e.Severity), e.Message, e.Code)
}

// Hint returns the server-supplied hint, if any.
func (e *ServerError) Hint() string {
	return string(e.Attributes[AttrHint])
}

// Details returns the server-supplied details, if any.
func (e *ServerError) Details() string {
	return string(e.Attributes[AttrDetails])
}

func severityName(severity byte) string {
	switch severity {
	case SeverityError:
		return "ERROR"
	case SeverityFatal:
		return "FATAL"
	case SeverityPanic:
		return "PANIC"
	default:
		return fmt.Sprintf("SEVERITY %d", severity)
	}
}

// AmendParseError enriches a decoding error with context about the
// requested output mode and cardinality, so the user-facing message names
// the actual cause instead of a generic failure.
func AmendParseError(err error, jsonMode, expectOne bool) error {
	if err == nil {
		return nil
	}
	switch {
	case jsonMode && expectOne:
		return fmt.Errorf("query was expected to return a single JSON value: %w", err)
	case jsonMode:
		return fmt.Errorf("query was executed in JSON output mode: %w", err)
	case expectOne:
		return fmt.Errorf("query was expected to return exactly one row: %w", err)
	default:
		return err
	}
}
