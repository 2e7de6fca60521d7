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

// Package protocol implements the sans-I/O core of the Corax wire protocol.
//
// A Protocol performs no network I/O of its own: the caller feeds it
// received bytes with Feed and transmits whatever it writes to the
// configured transport. Each parse entry point first checks whether a
// complete framed message is available; if not, it consumes nothing and
// returns buffer.ErrInsufficientData, and the caller retries after feeding
// more bytes. No partial-parse state is kept outside the buffer itself.
//
// A Protocol is not safe for concurrent use. Codec objects it hands out are
// immutable and may be shared freely across instances.
package protocol

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/coraxdb/corax-go/internal/buffer"
	"github.com/coraxdb/corax-go/internal/codecs"
)

// Config holds the collaborators of a Protocol.
type Config struct {
	// Transport receives fully framed outgoing messages. The Protocol never
	// flushes or schedules I/O itself.
	Transport io.Writer

	// Logger for logging (optional, defaults to slog.Default()).
	Logger *slog.Logger
}

// Protocol tracks one connection's protocol-level state and converts
// between server messages and structured values.
type Protocol struct {
	// buf is the read buffer. It is exclusively owned by this instance.
	buf *buffer.Reader

	transport io.Writer
	logger    *slog.Logger

	connected  bool
	xactStatus TransactionStatus

	// secret is the backend-assigned handshake token.
	secret []byte

	// serverSettings holds server-reported runtime settings.
	serverSettings map[string]string

	// Status of the most recent completed command.
	lastStatus  string
	lastDetails string
}

// New creates an unconnected Protocol.
func New(cfg Config) *Protocol {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{
		buf:            buffer.NewReader(nil),
		transport:      cfg.Transport,
		logger:         logger,
		xactStatus:     TxnStatusUnknown,
		serverSettings: make(map[string]string),
	}
}

// Feed appends newly received bytes to the read buffer.
func (p *Protocol) Feed(data []byte) {
	p.buf.Feed(data)
}

// Buffered returns the number of unparsed bytes in the read buffer.
func (p *Protocol) Buffered() int {
	return p.buf.Remaining()
}

// PeekMessageType returns the next message's tag without consuming it.
func (p *Protocol) PeekMessageType() (byte, error) {
	return p.buf.PeekByte()
}

// HasMessage reports whether a complete framed message is buffered.
func (p *Protocol) HasMessage() (bool, error) {
	ok, err := p.buf.HasMessage()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	return ok, nil
}

// Connected reports whether the handshake has completed and the connection
// has not been aborted.
func (p *Protocol) Connected() bool {
	return p.connected
}

// TxnStatus returns the current transaction status.
func (p *Protocol) TxnStatus() TransactionStatus {
	return p.xactStatus
}

// SetTxnStatus records a client-side status transition, such as marking the
// connection active while a command is in flight.
func (p *Protocol) SetTxnStatus(status TransactionStatus) {
	p.xactStatus = status
}

// Secret returns the backend-assigned secret received during the handshake.
func (p *Protocol) Secret() []byte {
	return p.secret
}

// ServerSettings returns the server-reported runtime settings.
func (p *Protocol) ServerSettings() map[string]string {
	return p.serverSettings
}

// LastStatus returns the status string of the most recent completed
// command.
func (p *Protocol) LastStatus() string {
	return p.lastStatus
}

// LastDetails returns the result-summary details of the most recent
// completed command.
func (p *Protocol) LastDetails() string {
	return p.lastDetails
}

// ResetStatus clears the stored command status so a stale result cannot be
// mistaken for the next command's outcome. Call it before issuing a new
// command.
func (p *Protocol) ResetStatus() {
	p.lastStatus = ""
	p.lastDetails = ""
}

// Abort marks the connection unusable. It is idempotent and always safe to
// call, including from a failure path.
func (p *Protocol) Abort() {
	p.connected = false
}

// Write hands a fully framed outgoing message to the transport
// collaborator.
func (p *Protocol) Write(w *buffer.Writer) error {
	if _, err := p.transport.Write(w.Bytes()); err != nil {
		return fmt.Errorf("failed to write to transport: %w", err)
	}
	return nil
}

// WriteMessage frames a message body with its tag and length and hands it
// to the transport.
func (p *Protocol) WriteMessage(tag byte, body *buffer.Writer) error {
	framed := buffer.NewWriter()
	framed.WriteByte(tag)
	framed.WriteUint32(uint32(4 + body.Len()))
	framed.WriteBuffer(body)
	return p.Write(framed)
}

// EncodeArgs encodes positional or keyword arguments with the supplied
// input codec into w. Framing for the surrounding message is the caller's
// responsibility; the codec's own output is the only thing written.
func (p *Protocol) EncodeArgs(in codecs.Codec, w *buffer.Writer, args []any, kwargs map[string]any) error {
	if len(args) > 0 && len(kwargs) > 0 {
		return fmt.Errorf("cannot mix positional and keyword arguments")
	}
	if len(kwargs) > 0 {
		named, ok := in.(*codecs.ObjectCodec)
		if !ok {
			return fmt.Errorf("query does not take keyword arguments")
		}
		return named.EncodeNamed(w, kwargs)
	}
	return in.Encode(w, args)
}

// readMessage consumes the next framed message and returns its tag and
// body. If the buffer does not yet hold a complete message, nothing is
// consumed and buffer.ErrInsufficientData is returned. A corrupt length
// field is reported as a protocol violation.
func (p *Protocol) readMessage() (byte, *buffer.Reader, error) {
	tag, body, err := p.buf.ReadMessage()
	if err != nil && !errors.Is(err, buffer.ErrInsufficientData) {
		return 0, nil, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	return tag, body, err
}

// expectMessage consumes the next message and checks its tag.
func (p *Protocol) expectMessage(want byte) (*buffer.Reader, error) {
	tag, body, err := p.readMessage()
	if err != nil {
		return nil, err
	}
	if tag != want {
		return nil, fmt.Errorf("%w: expected message %q, got %q", ErrProtocolViolation, want, tag)
	}
	return body, nil
}

// ParseDataMessages reads successive Data messages, decoding each row with
// the output codec and appending it to rows. It stops at the first non-data
// tag without consuming that message. When the buffer runs out before a
// non-data tag is seen, buffer.ErrInsufficientData is returned and the
// caller should feed more bytes and call again.
func (p *Protocol) ParseDataMessages(out codecs.Codec, rows *[]any) error {
	for {
		tag, err := p.PeekMessageType()
		if err != nil {
			return err
		}
		if tag != MsgData {
			return nil
		}

		body, err := p.expectMessage(MsgData)
		if err != nil {
			return err
		}

		count, err := body.ReadUint16()
		if err != nil {
			return fmt.Errorf("%w: bad data message: %v", ErrProtocolViolation, err)
		}
		for i := 0; i < int(count); i++ {
			payload, err := body.ReadByteString()
			if err != nil {
				return fmt.Errorf("%w: bad data element: %v", ErrProtocolViolation, err)
			}
			row, err := out.Decode(buffer.NewReader(payload))
			if err != nil {
				return fmt.Errorf("failed to decode result row: %w", err)
			}
			*rows = append(*rows, row)
		}
	}
}

// ParseSyncMessage reads a ReadyForCommand message and updates the
// transaction status. An unrecognized status byte is a protocol error and
// leaves the tracked status unchanged.
func (p *Protocol) ParseSyncMessage() error {
	body, err := p.expectMessage(MsgReadyForCommand)
	if err != nil {
		return err
	}
	if _, err := ParseHeaders(body); err != nil {
		return err
	}
	status, err := body.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: missing transaction status: %v", ErrProtocolViolation, err)
	}

	switch TransactionStatus(status) {
	case TxnStatusIdle, TxnStatusInBlock, TxnStatusFailed:
		p.xactStatus = TransactionStatus(status)
		return nil
	default:
		return fmt.Errorf("%w: unknown transaction status 0x%02x", ErrProtocolViolation, status)
	}
}

// ParseCommandCompleteMessage reads a CommandComplete message and stores
// its status and result-summary details.
func (p *Protocol) ParseCommandCompleteMessage() error {
	body, err := p.expectMessage(MsgCommandComplete)
	if err != nil {
		return err
	}
	headers, err := ParseHeaders(body)
	if err != nil {
		return err
	}
	status, err := body.ReadString()
	if err != nil {
		return fmt.Errorf("%w: bad command status: %v", ErrProtocolViolation, err)
	}

	p.lastStatus = status
	p.lastDetails = string(headers[HeaderDetails])
	return nil
}

// ParseDescribeTypeMessage reads a CommandDataDescription message and
// resolves its input and output type descriptors to codecs via the
// registry. The returned combination is what the caller should install into
// the query codecs cache.
func (p *Protocol) ParseDescribeTypeMessage(reg *codecs.Registry) (ParseFlags, codecs.Codec, codecs.Codec, error) {
	body, err := p.expectMessage(MsgCommandDataDescription)
	if err != nil {
		return 0, nil, nil, err
	}
	if _, err := ParseHeaders(body); err != nil {
		return 0, nil, nil, err
	}

	card, err := body.ReadByte()
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: missing cardinality: %v", ErrProtocolViolation, err)
	}
	flags, err := flagsForCardinality(Cardinality(card))
	if err != nil {
		return 0, nil, nil, err
	}

	inID, inDesc, err := readTypeDescriptor(body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: bad input descriptor: %v", ErrProtocolViolation, err)
	}
	outID, outDesc, err := readTypeDescriptor(body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: bad output descriptor: %v", ErrProtocolViolation, err)
	}

	in, err := reg.Resolve(inID, inDesc)
	if err != nil {
		return 0, nil, nil, err
	}
	out, err := reg.Resolve(outID, outDesc)
	if err != nil {
		return 0, nil, nil, err
	}
	return flags, in, out, nil
}

// readTypeDescriptor reads a 16-byte type id followed by a length-prefixed
// descriptor blob.
func readTypeDescriptor(r *buffer.Reader) (id [16]byte, desc []byte, err error) {
	if id, err = r.ReadTypeID(); err != nil {
		return id, nil, err
	}
	length, err := r.ReadUint32()
	if err != nil {
		return id, nil, err
	}
	if desc, err = r.ReadBytes(int(length)); err != nil {
		return id, nil, err
	}
	return id, desc, nil
}

// ParseErrorMessage reads an ErrorResponse message into a structured
// ServerError. Unknown attribute keys are preserved opaquely so callers can
// still log them.
func (p *Protocol) ParseErrorMessage() (*ServerError, error) {
	body, err := p.expectMessage(MsgErrorResponse)
	if err != nil {
		return nil, err
	}

	severity, err := body.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: bad error message: %v", ErrProtocolViolation, err)
	}
	code, err := body.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: bad error message: %v", ErrProtocolViolation, err)
	}
	message, err := body.ReadString()
	if err != nil {
		return nil, fmt.Errorf("%w: bad error message: %v", ErrProtocolViolation, err)
	}
	attrs, err := ParseHeaders(body)
	if err != nil {
		return nil, err
	}

	return &ServerError{
		Severity:   severity,
		Code:       code,
		Message:    message,
		Attributes: attrs,
	}, nil
}

// Fallthrough is the default handler for a recognized-but-unhandled message
// tag, such as asynchronous server notices. It consumes exactly the
// message's declared length so framing stays synchronized.
func (p *Protocol) Fallthrough() error {
	tag, body, err := p.readMessage()
	if err != nil {
		return err
	}

	switch tag {
	case MsgLogMessage:
		// Best effort: surface the server notice in the log, then drop it.
		severity, err := body.ReadByte()
		if err != nil {
			break
		}
		if _, err := body.ReadUint32(); err != nil { // notice code
			break
		}
		text, err := body.ReadString()
		if err != nil {
			break
		}
		p.logger.Debug("server log message",
			"severity", severityName(severity),
			"message", text,
		)
	case MsgParameterStatus:
		name, err := body.ReadString()
		if err != nil {
			break
		}
		value, err := body.ReadString()
		if err != nil {
			break
		}
		p.serverSettings[name] = value
	default:
		p.logger.Debug("discarding unhandled message", "type", string(tag))
	}
	return nil
}

// ParseHeaders reads a header count followed by that many key/value pairs.
// Used by message types that legitimately carry optional metadata.
func ParseHeaders(r *buffer.Reader) (Headers, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: bad header count: %v", ErrProtocolViolation, err)
	}
	if count == 0 {
		return nil, nil
	}
	headers := make(Headers, count)
	for i := 0; i < int(count); i++ {
		key, err := r.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("%w: bad header key: %v", ErrProtocolViolation, err)
		}
		length, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: bad header value: %v", ErrProtocolViolation, err)
		}
		value, err := r.ReadBytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("%w: bad header value: %v", ErrProtocolViolation, err)
		}
		// ReadBytes aliases the read buffer; headers outlive the message.
		headers[key] = append([]byte(nil), value...)
	}
	return headers, nil
}

// RejectHeaders reads the header count for a message type that must not
// carry any, and fails if it is nonzero.
func RejectHeaders(r *buffer.Reader) error {
	count, err := r.ReadUint16()
	if err != nil {
		return fmt.Errorf("%w: bad header count: %v", ErrProtocolViolation, err)
	}
	if count != 0 {
		return fmt.Errorf("%w: unexpected headers (%d)", ErrProtocolViolation, count)
	}
	return nil
}

// Handshake and authentication messages.

// ParseServerHandshake reads the server's protocol version announcement.
func (p *Protocol) ParseServerHandshake() (major, minor uint16, err error) {
	body, err := p.expectMessage(MsgServerHandshake)
	if err != nil {
		return 0, 0, err
	}
	if major, err = body.ReadUint16(); err != nil {
		return 0, 0, fmt.Errorf("%w: bad handshake: %v", ErrProtocolViolation, err)
	}
	if minor, err = body.ReadUint16(); err != nil {
		return 0, 0, fmt.Errorf("%w: bad handshake: %v", ErrProtocolViolation, err)
	}
	// Extensions are advertised as headers; none are supported yet.
	if _, err := ParseHeaders(body); err != nil {
		return 0, 0, err
	}
	return major, minor, nil
}

// AuthMessage is one parsed Authentication message. The SASL payloads are
// opaque to the state machine; an external SASL collaborator interprets
// them.
type AuthMessage struct {
	Status AuthStatus

	// Methods lists the SASL methods offered (AuthSASL only).
	Methods []string

	// Payload is the SASL exchange payload (continue/final only).
	Payload []byte
}

// ParseAuthenticationMessage reads one Authentication message. A status of
// AuthOK marks the connection as established.
func (p *Protocol) ParseAuthenticationMessage() (*AuthMessage, error) {
	body, err := p.expectMessage(MsgAuthentication)
	if err != nil {
		return nil, err
	}
	status, err := body.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: bad authentication message: %v", ErrProtocolViolation, err)
	}

	msg := &AuthMessage{Status: AuthStatus(status)}
	switch msg.Status {
	case AuthOK:
		p.connected = true

	case AuthSASL:
		count, err := body.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: bad SASL method list: %v", ErrProtocolViolation, err)
		}
		msg.Methods = make([]string, count)
		for i := range msg.Methods {
			if msg.Methods[i], err = body.ReadString(); err != nil {
				return nil, fmt.Errorf("%w: bad SASL method list: %v", ErrProtocolViolation, err)
			}
		}

	case AuthSASLContinue, AuthSASLFinal:
		length, err := body.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("%w: bad SASL payload: %v", ErrProtocolViolation, err)
		}
		payload, err := body.ReadBytes(int(length))
		if err != nil {
			return nil, fmt.Errorf("%w: bad SASL payload: %v", ErrProtocolViolation, err)
		}
		msg.Payload = append([]byte(nil), payload...)

	default:
		return nil, fmt.Errorf("%w: unsupported authentication status %d", ErrProtocolViolation, status)
	}
	return msg, nil
}

// ParseServerKeyData reads the backend-assigned secret used for
// out-of-band cancellation.
func (p *Protocol) ParseServerKeyData() error {
	body, err := p.expectMessage(MsgServerKeyData)
	if err != nil {
		return err
	}
	secret, err := body.ReadBytes(body.Remaining())
	if err != nil {
		return err
	}
	p.secret = append([]byte(nil), secret...)
	return nil
}

// ParseParameterStatus reads one server runtime setting.
func (p *Protocol) ParseParameterStatus() error {
	body, err := p.expectMessage(MsgParameterStatus)
	if err != nil {
		return err
	}
	name, err := body.ReadString()
	if err != nil {
		return fmt.Errorf("%w: bad parameter status: %v", ErrProtocolViolation, err)
	}
	value, err := body.ReadString()
	if err != nil {
		return fmt.Errorf("%w: bad parameter status: %v", ErrProtocolViolation, err)
	}
	p.serverSettings[name] = value
	return nil
}
