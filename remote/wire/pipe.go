// Copyright © 2025 The DraftPad authors

package wire

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PipeNames generates a fresh pair of pipe endpoint names for one
// client process: the server-to-client direction and the
// client-to-server direction. Both are passed to the client as its
// trailing arguments.
func PipeNames() (out, in string) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	out = filepath.Join(os.TempDir(), "draftpad-"+id+".out")
	in = filepath.Join(os.TempDir(), "draftpad-"+id+".in")
	return out, in
}

// ListenPipe opens the server end of a named pipe.
func ListenPipe(name string) (net.Listener, error) {
	// A stale endpoint from a killed client would fail the bind.
	_ = os.Remove(name)
	ln, err := net.Listen("unix", name)
	if err != nil {
		return nil, fmt.Errorf("wire: listen %s: %w", name, err)
	}
	return ln, nil
}

// AcceptPipe waits for the peer to connect, bounded by timeout.
func AcceptPipe(ln net.Listener, timeout time.Duration) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("wire: accept: %w", r.err)
		}
		return r.conn, nil
	case <-time.After(timeout):
		ln.Close() //nolint:errcheck // best-effort teardown on timeout
		return nil, fmt.Errorf("wire: accept %v timeout", timeout)
	}
}

// DialPipe connects the client end of a named pipe, retrying until
// the server's listener appears or the timeout elapses.
func DialPipe(name string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", name)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("wire: dial %s: %w", name, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
