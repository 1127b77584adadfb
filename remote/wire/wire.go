// Copyright © 2025 The DraftPad authors

// Package wire implements the interprocess debug protocol framing.
//
// Messages are newline-delimited: each logical message is one line
// holding a JSON-encoded array of strings whose first element is the
// message kind. Composite fields are themselves JSON-encoded before
// nesting, so some fields carry JSON-encoded JSON. There is no binary
// framing beyond the line delimiter.
//
// The protocol is strictly request/response with a single outstanding
// request per breakpoint hit; nothing is pipelined or multiplexed.
package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Message kinds.
const (
	// KindInit announces a breakpoint payload; the payload follows as
	// the next line (server to client).
	KindInit = "Init"
	// KindAbort is the one-way teardown signal (server to client).
	KindAbort = "Abort"
	// KindGetItems requests the items of an enumerable handle
	// (client to server).
	KindGetItems = "GetItems"
	// KindGetProperty requests a member value of a handle
	// (client to server).
	KindGetProperty = "GetProperty"
	// KindResume resumes the suspended program, carrying the
	// suppression flag (client to server).
	KindResume = "Resume"
	// KindValues answers GetItems and GetProperty with encoded
	// snapshot entries (server to client).
	KindValues = "Values"
)

// ErrHandshake is returned when the peer fails the token handshake.
// The two sides cannot safely proceed without protocol agreement, so
// this is fatal for initialization.
var ErrHandshake = errors.New("wire: handshake token mismatch")

// Conn frames messages over a reader/writer pair. Writes are
// serialized; reads are expected from a single receive loop.
type Conn struct {
	r *bufio.Reader

	wmu sync.Mutex
	w   io.Writer
}

// NewConn wraps a reader and writer in a framed connection.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

// Send writes one framed message.
func (c *Conn) Send(kind string, fields ...string) error {
	msg := append([]string{kind}, fields...)
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("wire: encode %s: %w", kind, err)
	}
	return c.SendLine(string(b))
}

// SendLine writes one raw line.
func (c *Conn) SendLine(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	return nil
}

// Recv reads one framed message.
func (c *Conn) Recv() (string, []string, error) {
	line, err := c.RecvLine()
	if err != nil {
		return "", nil, err
	}
	var msg []string
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return "", nil, fmt.Errorf("wire: malformed message: %w", err)
	}
	if len(msg) == 0 {
		return "", nil, errors.New("wire: empty message")
	}
	return msg[0], msg[1:], nil
}

// RecvLine reads one raw line without the delimiter.
func (c *Conn) RecvLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// NewToken returns a fresh random handshake token.
func NewToken() string {
	return uuid.NewString()
}

// HandshakeServer writes token on out and requires it echoed back on
// in before any breakpoint traffic is trusted to the channel.
func HandshakeServer(out, in *Conn, token string) error {
	if err := out.SendLine(token); err != nil {
		return fmt.Errorf("wire: handshake send: %w", err)
	}
	echo, err := in.RecvLine()
	if err != nil {
		return fmt.Errorf("wire: handshake read: %w", err)
	}
	if echo != token {
		return ErrHandshake
	}
	return nil
}

// HandshakeClient echoes the server's token line.
func HandshakeClient(in, out *Conn) error {
	token, err := in.RecvLine()
	if err != nil {
		return fmt.Errorf("wire: handshake read: %w", err)
	}
	if err := out.SendLine(token); err != nil {
		return fmt.Errorf("wire: handshake echo: %w", err)
	}
	return nil
}
