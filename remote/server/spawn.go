// Copyright © 2025 The DraftPad authors

package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/draftpad/draftpad/remote/wire"
)

// ensureClient makes sure a connected, live client process exists,
// spawning (or respawning, when the client died since the last
// breakpoint) on demand. Callers hold sessionMu.
func (s *Server) ensureClient() error {
	s.mu.Lock()
	disposed := s.disposed
	connected := s.out != nil && s.in != nil
	exited := s.cmdExited.Load()
	s.mu.Unlock()

	if disposed {
		return errors.New("server: disposed")
	}
	if connected && !exited {
		return nil
	}
	if connected {
		// Client died between breakpoints; tear down the dead pipes
		// and respawn transparently.
		s.teardownClient()
	}

	if s.connect != nil {
		outRW, inRW, err := s.connect()
		if err != nil {
			return err
		}
		return s.adoptConns(outRW, inRW)
	}
	return s.spawnClient()
}

// spawnClient launches the client process, passing the server pid and
// the two pipe names as trailing arguments, waits for both directions
// to connect, and performs the token handshake.
func (s *Server) spawnClient() error {
	outName, inName := wire.PipeNames()
	lnOut, err := wire.ListenPipe(outName)
	if err != nil {
		return err
	}
	lnIn, err := wire.ListenPipe(inName)
	if err != nil {
		lnOut.Close() //nolint:errcheck // best-effort cleanup
		return err
	}
	defer lnOut.Close() //nolint:errcheck // accepted conn stays open
	defer lnIn.Close()  //nolint:errcheck // accepted conn stays open

	args := append(append([]string{}, s.cfg.ClientArgs...),
		strconv.Itoa(os.Getpid()), outName, inName)
	cmd := exec.Command(s.cfg.ClientPath, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("server: spawn %s: %w", s.cfg.ClientPath, err)
	}

	s.cmdExited.Store(false)
	go func() {
		_ = cmd.Wait()
		s.cmdExited.Store(true)
	}()

	outConn, err := wire.AcceptPipe(lnOut, s.cfg.SpawnTimeout)
	if err != nil {
		_ = cmd.Process.Kill()
		return err
	}
	inConn, err := wire.AcceptPipe(lnIn, s.cfg.SpawnTimeout)
	if err != nil {
		outConn.Close() //nolint:errcheck // teardown
		_ = cmd.Process.Kill()
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.pipeNames = []string{outName, inName}
	s.mu.Unlock()

	if err := s.adoptConns(outConn, inConn); err != nil {
		_ = cmd.Process.Kill()
		return err
	}
	s.log.WithField("pid", cmd.Process.Pid).Info("debug client connected")
	return nil
}

// adoptConns wraps the raw pipe connections and handshakes.
func (s *Server) adoptConns(outRW, inRW io.ReadWriteCloser) error {
	out := wire.NewConn(outRW, outRW)
	in := wire.NewConn(inRW, inRW)
	if err := wire.HandshakeServer(out, in, wire.NewToken()); err != nil {
		outRW.Close() //nolint:errcheck // teardown
		inRW.Close()  //nolint:errcheck // teardown
		return err
	}
	s.mu.Lock()
	s.outRW, s.inRW = outRW, inRW
	s.out, s.in = out, in
	s.mu.Unlock()
	s.cmdExited.Store(false)
	return nil
}

// teardownClient closes the pipes and forgets the dead process.
func (s *Server) teardownClient() {
	s.mu.Lock()
	outRW, inRW := s.outRW, s.inRW
	names := s.pipeNames
	s.outRW, s.inRW, s.out, s.in = nil, nil, nil, nil
	s.cmd = nil
	s.pipeNames = nil
	s.mu.Unlock()
	if outRW != nil {
		outRW.Close() //nolint:errcheck // teardown
	}
	if inRW != nil {
		inRW.Close() //nolint:errcheck // teardown
	}
	for _, name := range names {
		_ = os.Remove(name)
	}
}

// Close disposes the server: it sends the abort signal down the pipe,
// forcibly terminates the client process, and closes pipes exactly
// once. Safe to call multiple times.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	out := s.out
	outRW := s.outRW
	cmd := s.cmd
	s.mu.Unlock()

	if out != nil {
		// Best effort: the client may already be gone or no longer
		// reading, so the write is bounded by a deadline.
		if d, ok := outRW.(interface{ SetWriteDeadline(time.Time) error }); ok {
			_ = d.SetWriteDeadline(time.Now().Add(time.Second))
		}
		_ = out.Send(wire.KindAbort)
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	s.teardownClient()
	runtime.SetFinalizer(s, nil)
	return nil
}
