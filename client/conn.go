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

// Package client provides a blocking Corax connection built on the sans-I/O
// protocol core. It owns the socket, feeds received bytes to the protocol
// instance, and drives the handshake, authentication and query flows.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/coraxdb/corax-go/internal/buffer"
	"github.com/coraxdb/corax-go/internal/codecs"
	"github.com/coraxdb/corax-go/internal/scram"
	"github.com/coraxdb/corax-go/protocol"
)

// readChunkSize is the size of the socket read buffer.
const readChunkSize = 8192

// ErrConnClosed is returned by operations on a closed connection.
var ErrConnClosed = errors.New("client: connection is closed")

// Conn is a single blocking connection to a Corax server. A Conn is not
// safe for concurrent use.
type Conn struct {
	cfg    Config
	conn   net.Conn
	logger *slog.Logger

	proto      *protocol.Protocol
	registry   *codecs.Registry
	queryCache *codecs.QueryCache

	readBuf []byte
	closed  bool
}

// Connect dials the server and completes the handshake and authentication.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	if err := cfg.resolve(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Addr(), err)
	}

	c := &Conn{
		cfg:        cfg,
		conn:       netConn,
		logger:     cfg.Logger,
		proto:      protocol.New(protocol.Config{Transport: netConn, Logger: cfg.Logger}),
		registry:   codecs.NewRegistry(),
		queryCache: codecs.NewQueryCache(cfg.QueryCacheSize),
		readBuf:    make([]byte, readChunkSize),
	}

	if err := c.handshake(ctx); err != nil {
		netConn.Close()
		return nil, err
	}
	return c, nil
}

// Close terminates the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.proto.Connected() {
		// Best effort; the server closes its side on Terminate.
		if err := c.proto.WriteMessage(protocol.MsgTerminate, buffer.NewWriter()); err != nil {
			c.logger.Debug("failed to send terminate", "error", err)
		}
	}
	c.proto.Abort()
	return c.conn.Close()
}

// Ping round-trips a Sync to verify the connection is alive.
func (c *Conn) Ping(ctx context.Context) error {
	if c.closed || !c.proto.Connected() {
		return ErrConnClosed
	}
	if err := c.proto.WriteMessage(protocol.MsgSync, buffer.NewWriter()); err != nil {
		return err
	}
	return c.waitForReady(ctx)
}

// ServerSettings returns the server-reported runtime settings.
func (c *Conn) ServerSettings() map[string]string {
	return c.proto.ServerSettings()
}

// CacheStats reports the query codecs cache hit and miss counts.
func (c *Conn) CacheStats() (hits, misses int64) {
	return c.queryCache.Hits(), c.queryCache.Misses()
}

// fill blocks until at least one more byte has been read from the socket
// and fed to the protocol buffer. The context deadline, if any, bounds the
// read.
func (c *Conn) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	n, err := c.conn.Read(c.readBuf)
	if n > 0 {
		c.proto.Feed(c.readBuf[:n])
	}
	if err != nil {
		return fmt.Errorf("failed to read from server: %w", err)
	}
	return nil
}

// nextMessageType blocks until a complete message is buffered and returns
// its tag without consuming it.
func (c *Conn) nextMessageType(ctx context.Context) (byte, error) {
	for {
		// The tag alone is not enough; wait for the whole frame so the
		// protocol parse entry points do not spin.
		complete, err := c.proto.HasMessage()
		if err != nil {
			return 0, err
		}
		if complete {
			return c.proto.PeekMessageType()
		}
		if err := c.fill(ctx); err != nil {
			return 0, err
		}
	}
}

// handshake sends the client handshake and runs the server's message flow
// until the connection is ready for commands.
func (c *Conn) handshake(ctx context.Context) error {
	body := buffer.NewWriter()
	body.WriteUint16(protocol.ProtocolVersionMajor)
	body.WriteUint16(protocol.ProtocolVersionMinor)
	body.WriteUint16(2) // connection params
	body.WriteString("user")
	body.WriteString(c.cfg.User)
	body.WriteString("database")
	body.WriteString(c.cfg.Database)
	body.WriteUint16(0) // protocol extensions
	if err := c.proto.WriteMessage(protocol.MsgClientHandshake, body); err != nil {
		return err
	}

	for !c.proto.Connected() {
		tag, err := c.nextMessageType(ctx)
		if err != nil {
			return err
		}
		switch tag {
		case protocol.MsgServerHandshake:
			major, minor, err := c.proto.ParseServerHandshake()
			if err != nil {
				return err
			}
			if major != protocol.ProtocolVersionMajor {
				return fmt.Errorf("unsupported server protocol version %d.%d", major, minor)
			}

		case protocol.MsgAuthentication:
			msg, err := c.proto.ParseAuthenticationMessage()
			if err != nil {
				return err
			}
			if msg.Status == protocol.AuthSASL {
				if err := c.authenticateSASL(ctx, msg.Methods); err != nil {
					return err
				}
			}

		case protocol.MsgErrorResponse:
			serverErr, err := c.proto.ParseErrorMessage()
			if err != nil {
				return err
			}
			return fmt.Errorf("handshake rejected: %w", serverErr)

		default:
			if err := c.proto.Fallthrough(); err != nil {
				return err
			}
		}
	}

	return c.waitForReady(ctx)
}

// authenticateSASL runs the SCRAM-SHA-256 exchange.
func (c *Conn) authenticateSASL(ctx context.Context, methods []string) error {
	if !slices.Contains(methods, scram.Method) {
		return fmt.Errorf("server offered no supported SASL method: %v", methods)
	}

	sc := scram.NewClient(c.cfg.User, c.cfg.Password)
	clientFirst, err := sc.ClientFirst()
	if err != nil {
		return err
	}

	initial := buffer.NewWriter()
	initial.WriteString(scram.Method)
	initial.WriteString(clientFirst)
	if err := c.proto.WriteMessage(protocol.MsgAuthSASLInitialResponse, initial); err != nil {
		return err
	}

	for {
		tag, err := c.nextMessageType(ctx)
		if err != nil {
			return err
		}
		switch tag {
		case protocol.MsgAuthentication:
			msg, err := c.proto.ParseAuthenticationMessage()
			if err != nil {
				return err
			}
			switch msg.Status {
			case protocol.AuthOK:
				return nil
			case protocol.AuthSASLContinue:
				clientFinal, err := sc.HandleServerFirst(string(msg.Payload))
				if err != nil {
					return fmt.Errorf("SASL exchange failed: %w", err)
				}
				resp := buffer.NewWriter()
				resp.WriteString(clientFinal)
				if err := c.proto.WriteMessage(protocol.MsgAuthSASLResponse, resp); err != nil {
					return err
				}
			case protocol.AuthSASLFinal:
				if err := sc.VerifyServerFinal(string(msg.Payload)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: unexpected authentication status %d during SASL",
					protocol.ErrProtocolViolation, msg.Status)
			}

		case protocol.MsgErrorResponse:
			serverErr, err := c.proto.ParseErrorMessage()
			if err != nil {
				return err
			}
			return fmt.Errorf("authentication failed: %w", serverErr)

		default:
			if err := c.proto.Fallthrough(); err != nil {
				return err
			}
		}
	}
}

// waitForReady consumes messages until ReadyForCommand, absorbing key data
// and parameter status along the way.
func (c *Conn) waitForReady(ctx context.Context) error {
	for {
		tag, err := c.nextMessageType(ctx)
		if err != nil {
			return err
		}
		switch tag {
		case protocol.MsgReadyForCommand:
			return c.proto.ParseSyncMessage()
		case protocol.MsgServerKeyData:
			if err := c.proto.ParseServerKeyData(); err != nil {
				return err
			}
		case protocol.MsgParameterStatus:
			if err := c.proto.ParseParameterStatus(); err != nil {
				return err
			}
		case protocol.MsgErrorResponse:
			serverErr, err := c.proto.ParseErrorMessage()
			if err != nil {
				return err
			}
			return serverErr
		default:
			if err := c.proto.Fallthrough(); err != nil {
				return err
			}
		}
	}
}
