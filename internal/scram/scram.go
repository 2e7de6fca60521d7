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

// Package scram implements the client side of the SCRAM-SHA-256 SASL
// exchange. It is sans-I/O: callers route the opaque payloads through the
// protocol layer and feed the server's responses back in.
package scram

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/xdg-go/stringprep"
	"golang.org/x/crypto/pbkdf2"
)

// Method is the SASL mechanism name this package implements.
const Method = "SCRAM-SHA-256"

// nonceLength is the length of the client nonce in bytes.
const nonceLength = 24

// Client holds the state of one SCRAM-SHA-256 exchange. A Client is good
// for exactly one authentication attempt.
type Client struct {
	username string
	password string

	// State maintained across the exchange.
	clientNonce            string
	clientFirstMessageBare string
	serverFirstMessage     string
	saltedPassword         []byte
}

// NewClient creates a SCRAM client for the given credentials.
func NewClient(username, password string) *Client {
	return &Client{username: username, password: password}
}

// ClientFirst produces the client-first message that opens the exchange.
func (c *Client) ClientFirst() (string, error) {
	if c.clientNonce == "" {
		nonceBytes := make([]byte, nonceLength)
		if _, err := rand.Read(nonceBytes); err != nil {
			return "", fmt.Errorf("failed to generate nonce: %w", err)
		}
		c.clientNonce = base64.StdEncoding.EncodeToString(nonceBytes)
	}

	// client-first-message-bare: n=<username>,r=<nonce>
	// Username needs to be escaped: '=' -> '=3D', ',' -> '=2C'
	escapedUsername := strings.ReplaceAll(c.username, "=", "=3D")
	escapedUsername = strings.ReplaceAll(escapedUsername, ",", "=2C")
	c.clientFirstMessageBare = fmt.Sprintf("n=%s,r=%s", escapedUsername, c.clientNonce)

	// "n,," means no channel binding.
	return "n,," + c.clientFirstMessageBare, nil
}

// HandleServerFirst consumes the server-first message and produces the
// client-final message carrying the proof.
func (c *Client) HandleServerFirst(serverFirst string) (string, error) {
	c.serverFirstMessage = serverFirst

	// server-first-message: r=<nonce>,s=<salt>,i=<iterations>
	var serverNonce, saltB64 string
	var iterations int
	for part := range strings.SplitSeq(serverFirst, ",") {
		switch {
		case strings.HasPrefix(part, "r="):
			serverNonce = part[2:]
		case strings.HasPrefix(part, "s="):
			saltB64 = part[2:]
		case strings.HasPrefix(part, "i="):
			var err error
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", fmt.Errorf("invalid iteration count: %w", err)
			}
		}
	}

	if !strings.HasPrefix(serverNonce, c.clientNonce) {
		return "", fmt.Errorf("server nonce does not start with client nonce")
	}
	if iterations < 1 {
		return "", fmt.Errorf("invalid iteration count: %d", iterations)
	}

	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}

	// SaltedPassword = Hi(Normalize(password), salt, iterations)
	c.saltedPassword = pbkdf2.Key([]byte(normalizePassword(c.password)), salt,
		iterations, sha256.Size, sha256.New)

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)

	clientFinalWithoutProof := c.clientFinalWithoutProof(serverNonce)
	authMessage := c.authMessage(clientFinalWithoutProof)

	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	return clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof), nil
}

// VerifyServerFinal checks the server's signature in the server-final
// message, proving the server also knows the password.
func (c *Client) VerifyServerFinal(serverFinal string) error {
	if strings.HasPrefix(serverFinal, "e=") {
		return fmt.Errorf("authentication failed: %s", serverFinal[2:])
	}
	if !strings.HasPrefix(serverFinal, "v=") {
		return fmt.Errorf("invalid server-final-message format")
	}
	serverSignature, err := base64.StdEncoding.DecodeString(serverFinal[2:])
	if err != nil {
		return fmt.Errorf("failed to decode server signature: %w", err)
	}

	var serverNonce string
	for part := range strings.SplitSeq(c.serverFirstMessage, ",") {
		if strings.HasPrefix(part, "r=") {
			serverNonce = part[2:]
			break
		}
	}

	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	authMessage := c.authMessage(c.clientFinalWithoutProof(serverNonce))
	expected := hmacSHA256(serverKey, []byte(authMessage))

	if !hmac.Equal(serverSignature, expected) {
		return fmt.Errorf("server signature verification failed")
	}
	return nil
}

// clientFinalWithoutProof builds "c=<base64(channel-binding)>,r=<nonce>".
func (c *Client) clientFinalWithoutProof(serverNonce string) string {
	channelBinding := base64.StdEncoding.EncodeToString([]byte("n,,"))
	return fmt.Sprintf("c=%s,r=%s", channelBinding, serverNonce)
}

// authMessage builds the value both sides sign.
func (c *Client) authMessage(clientFinalWithoutProof string) string {
	return c.clientFirstMessageBare + "," + c.serverFirstMessage + "," + clientFinalWithoutProof
}

// normalizePassword applies SASLprep. Passwords that are not valid for
// SASLprep are used as-is.
func normalizePassword(password string) string {
	prepped, err := stringprep.SASLprep.Prepare(password)
	if err != nil {
		return password
	}
	return prepped
}

// hmacSHA256 computes HMAC-SHA-256.
func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// xorBytes XORs two byte slices of equal length.
func xorBytes(a, b []byte) []byte {
	result := make([]byte, len(a))
	for i := range a {
		result[i] = a[i] ^ b[i]
	}
	return result
}
