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

import "fmt"

// Message type constants for frontend (client) messages
const (
	MsgClientHandshake         = 'V' // Client handshake
	MsgAuthSASLInitialResponse = 'p' // SASL initial response
	MsgAuthSASLResponse        = 'r' // SASL continuation response
	MsgParse                   = 'P' // Parse (compile a query)
	MsgExecute                 = 'E' // Execute
	MsgSync                    = 'S' // Sync
	MsgFlush                   = 'H' // Flush
	MsgTerminate               = 'X' // Terminate
)

// Message type constants for backend (server) messages
const (
	MsgServerHandshake        = 'v' // Server handshake
	MsgAuthentication         = 'R' // Authentication request
	MsgServerKeyData          = 'K' // Backend key data
	MsgParameterStatus        = 'S' // Parameter status
	MsgReadyForCommand        = 'Z' // Ready for command
	MsgCommandComplete        = 'C' // Command complete
	MsgCommandDataDescription = 'T' // Command data description
	MsgData                   = 'D' // Data row
	MsgErrorResponse          = 'E' // Error response
	MsgLogMessage             = 'L' // Server log/notice message
)

// Protocol version
const (
	ProtocolVersionMajor = 1
	ProtocolVersionMinor = 0
)

// TransactionStatus represents the transaction state reported in
// ReadyForCommand messages. The wire values are fixed; renumbering them
// breaks interoperability with the server.
type TransactionStatus byte

const (
	// TxnStatusUnknown means no status has been received yet.
	TxnStatusUnknown TransactionStatus = 0

	TxnStatusIdle    TransactionStatus = 'I' // Idle (not in transaction)
	TxnStatusActive  TransactionStatus = 'A' // Command in flight
	TxnStatusInBlock TransactionStatus = 'T' // In transaction block
	TxnStatusFailed  TransactionStatus = 'E' // In failed transaction block
)

// AuthStatus is the authentication state carried by Authentication
// messages. The numeric assignments are wire constants.
type AuthStatus uint32

const (
	AuthOK           AuthStatus = 0  // Authentication successful
	AuthSASL         AuthStatus = 10 // SASL authentication required
	AuthSASLContinue AuthStatus = 11 // SASL continuation payload
	AuthSASLFinal    AuthStatus = 12 // SASL final payload
)

// Cardinality is the result cardinality class reported in
// CommandDataDescription messages.
type Cardinality byte

const (
	CardinalityNoResult   Cardinality = 'n'
	CardinalityAtMostOne  Cardinality = 'o'
	CardinalityOne        Cardinality = 'A'
	CardinalityMany       Cardinality = 'm'
	CardinalityAtLeastOne Cardinality = 'M'
)

// ParseFlags is a bitset attached to a parsed query plan. The bit
// assignments are wire constants.
type ParseFlags uint8

const (
	// ParseFlagHasResult is set when the query produces a result.
	ParseFlagHasResult ParseFlags = 1 << 0

	// ParseFlagSingleton is set when the result cardinality is at most one
	// row.
	ParseFlagSingleton ParseFlags = 1 << 1
)

// flagsForCardinality derives the parse flags for a cardinality byte.
func flagsForCardinality(card Cardinality) (ParseFlags, error) {
	switch card {
	case CardinalityNoResult:
		return 0, nil
	case CardinalityAtMostOne, CardinalityOne:
		return ParseFlagHasResult | ParseFlagSingleton, nil
	case CardinalityMany, CardinalityAtLeastOne:
		return ParseFlagHasResult, nil
	default:
		return 0, fmt.Errorf("%w: unknown result cardinality 0x%02x", ErrProtocolViolation, byte(card))
	}
}

// OutputFormat selects the result encoding requested from the server.
type OutputFormat byte

const (
	OutputFormatBinary OutputFormat = 'b'
	OutputFormatJSON   OutputFormat = 'j'
)

// Headers carries the optional key/value metadata some messages include.
// Unknown keys are preserved, not dropped.
type Headers map[uint16][]byte

// Known header keys.
const (
	// HeaderDetails carries a human-readable result summary on
	// CommandComplete messages.
	HeaderDetails uint16 = 0x0002
)
