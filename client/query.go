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

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/coraxdb/corax-go/internal/buffer"
	"github.com/coraxdb/corax-go/internal/codecs"
	"github.com/coraxdb/corax-go/protocol"
)

// ErrNoRows is returned by QuerySingle when the query produced no rows.
var ErrNoRows = errors.New("client: no rows in result")

// Query runs a query with positional arguments and returns all result rows.
func (c *Conn) Query(ctx context.Context, query string, args ...any) ([]any, error) {
	return c.granularFlow(ctx, query, protocol.OutputFormatBinary, false, args, nil)
}

// QueryNamed runs a query with keyword arguments and returns all result
// rows.
func (c *Conn) QueryNamed(ctx context.Context, query string, kwargs map[string]any) ([]any, error) {
	return c.granularFlow(ctx, query, protocol.OutputFormatBinary, false, nil, kwargs)
}

// QuerySingle runs a query expected to return exactly one row.
func (c *Conn) QuerySingle(ctx context.Context, query string, args ...any) (any, error) {
	rows, err := c.granularFlow(ctx, query, protocol.OutputFormatBinary, true, args, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

// QueryJSON runs a query in JSON output mode and returns the result as a
// single JSON document.
func (c *Conn) QueryJSON(ctx context.Context, query string, args ...any) (string, error) {
	rows, err := c.granularFlow(ctx, query, protocol.OutputFormatJSON, true, args, nil)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", ErrNoRows
	}
	doc, ok := rows[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: JSON result has type %T", protocol.ErrProtocolViolation, rows[0])
	}
	return doc, nil
}

// QueryInto runs a query and decodes the rows into dst, which must be a
// pointer to a slice of structs (or maps). Object fields map to struct
// fields via the "corax" tag, falling back to the field name.
func (c *Conn) QueryInto(ctx context.Context, dst any, query string, args ...any) error {
	rows, err := c.Query(ctx, query, args...)
	if err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "corax",
		Result:  dst,
	})
	if err != nil {
		return fmt.Errorf("failed to build row decoder: %w", err)
	}
	if err := dec.Decode(rows); err != nil {
		return fmt.Errorf("failed to map result rows: %w", err)
	}
	return nil
}

// Execute runs a command for its side effects and returns its status
// string.
func (c *Conn) Execute(ctx context.Context, command string, args ...any) (string, error) {
	if _, err := c.granularFlow(ctx, command, protocol.OutputFormatBinary, false, args, nil); err != nil {
		return "", err
	}
	return c.proto.LastStatus(), nil
}

// granularFlow runs the parse/execute sequence for one query, using the
// codecs cache to skip the parse round trip when the plan is known.
func (c *Conn) granularFlow(ctx context.Context, query string, format protocol.OutputFormat, expectOne bool, args []any, kwargs map[string]any) ([]any, error) {
	if c.closed || !c.proto.Connected() {
		return nil, ErrConnClosed
	}
	c.proto.ResetStatus()

	jsonMode := format == protocol.OutputFormatJSON
	plan, ok := c.queryCache.Get(query, jsonMode)
	if !ok {
		flags, in, out, err := c.parse(ctx, query, format, expectOne)
		if err != nil {
			return nil, err
		}
		multi := flags&protocol.ParseFlagSingleton == 0
		c.queryCache.Set(query, jsonMode, multi, in, out)
		plan = &codecs.CachedQuery{Multi: multi, In: in, Out: out}
	}

	if expectOne && plan.Multi {
		return nil, fmt.Errorf("query may return more than one row")
	}
	return c.execute(ctx, query, format, expectOne, plan, args, kwargs)
}

// cardinalityByte is the expected-cardinality request sent with Parse and
// Execute.
func cardinalityByte(expectOne bool) byte {
	if expectOne {
		return byte(protocol.CardinalityAtMostOne)
	}
	return byte(protocol.CardinalityMany)
}

// parse compiles the query on the server and resolves its input and output
// codecs.
func (c *Conn) parse(ctx context.Context, query string, format protocol.OutputFormat, expectOne bool) (protocol.ParseFlags, codecs.Codec, codecs.Codec, error) {
	body := buffer.NewWriter()
	body.WriteUint16(0) // headers
	body.WriteByte(byte(format))
	body.WriteByte(cardinalityByte(expectOne))
	body.WriteString(query)
	if err := c.proto.WriteMessage(protocol.MsgParse, body); err != nil {
		return 0, nil, nil, err
	}
	if err := c.proto.WriteMessage(protocol.MsgFlush, buffer.NewWriter()); err != nil {
		return 0, nil, nil, err
	}

	for {
		tag, err := c.nextMessageType(ctx)
		if err != nil {
			return 0, nil, nil, err
		}
		switch tag {
		case protocol.MsgCommandDataDescription:
			flags, in, out, err := c.proto.ParseDescribeTypeMessage(c.registry)
			if err != nil {
				return 0, nil, nil, err
			}
			return flags, in, out, nil

		case protocol.MsgErrorResponse:
			serverErr, err := c.proto.ParseErrorMessage()
			if err != nil {
				return 0, nil, nil, err
			}
			if err := c.recover(ctx); err != nil {
				return 0, nil, nil, err
			}
			return 0, nil, nil, protocol.AmendParseError(serverErr, format == protocol.OutputFormatJSON, expectOne)

		default:
			if err := c.proto.Fallthrough(); err != nil {
				return 0, nil, nil, err
			}
		}
	}
}

// execute sends the query with its encoded arguments and collects the
// result rows until the server reports ready.
func (c *Conn) execute(ctx context.Context, query string, format protocol.OutputFormat, expectOne bool, plan *codecs.CachedQuery, args []any, kwargs map[string]any) ([]any, error) {
	body := buffer.NewWriter()
	body.WriteUint16(0) // headers
	body.WriteByte(byte(format))
	body.WriteByte(cardinalityByte(expectOne))
	body.WriteString(query)
	body.WriteTypeID(plan.In.ID())
	body.WriteTypeID(plan.Out.ID())
	if err := c.proto.EncodeArgs(plan.In, body, args, kwargs); err != nil {
		return nil, fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := c.proto.WriteMessage(protocol.MsgExecute, body); err != nil {
		return nil, err
	}
	if err := c.proto.WriteMessage(protocol.MsgSync, buffer.NewWriter()); err != nil {
		return nil, err
	}

	c.proto.SetTxnStatus(protocol.TxnStatusActive)

	var rows []any
	var queryErr error
	for {
		tag, err := c.nextMessageType(ctx)
		if err != nil {
			return nil, err
		}
		switch tag {
		case protocol.MsgData:
			if err := c.proto.ParseDataMessages(plan.Out, &rows); err != nil {
				if errors.Is(err, buffer.ErrInsufficientData) {
					if err := c.fill(ctx); err != nil {
						return nil, err
					}
					continue
				}
				if queryErr == nil {
					queryErr = protocol.AmendParseError(err,
						format == protocol.OutputFormatJSON, expectOne)
				}
			}

		case protocol.MsgCommandComplete:
			if err := c.proto.ParseCommandCompleteMessage(); err != nil {
				return nil, err
			}

		case protocol.MsgErrorResponse:
			serverErr, err := c.proto.ParseErrorMessage()
			if err != nil {
				return nil, err
			}
			if queryErr == nil {
				queryErr = serverErr
			}

		case protocol.MsgReadyForCommand:
			if err := c.proto.ParseSyncMessage(); err != nil {
				return nil, err
			}
			if queryErr != nil {
				return nil, queryErr
			}
			return rows, nil

		default:
			if err := c.proto.Fallthrough(); err != nil {
				return nil, err
			}
		}
	}
}

// recover drives the connection back to the ready state after a failed
// parse, so the next command starts from a clean slate.
func (c *Conn) recover(ctx context.Context) error {
	if err := c.proto.WriteMessage(protocol.MsgSync, buffer.NewWriter()); err != nil {
		return err
	}
	return c.waitForReady(ctx)
}
