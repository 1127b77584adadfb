// Copyright © 2025 The DraftPad authors

// Package server runs the host side of the interprocess debugger.
//
// On a breakpoint hit the server serializes the breakpoint payload,
// ships it to a separate client process over a pipe pair, and then
// services the client's inspection requests (GetItems, GetProperty)
// in a blocking loop on the goroutine that hit the breakpoint; the
// paused program must not continue executing while its state is being
// inspected remotely. The loop ends when the client sends Resume.
//
// Concurrent hits from multiple goroutines would race on the shared
// pipe pair; the server serializes whole sessions with a mutex, so a
// second hit blocks until the first resolves.
package server

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/draftpad/draftpad/debugger"
	"github.com/draftpad/draftpad/remote/wire"
	"github.com/draftpad/draftpad/snapshot"
	"github.com/draftpad/draftpad/tracing"
)

// Config describes how the server launches and feeds its client.
type Config struct {
	// ClientPath is the client executable; ClientArgs is the argument
	// prefix. The server appends its own pid and the two pipe names.
	ClientPath string
	ClientArgs []string

	// Prefix and Suffix are the source fragments the host wraps the
	// user's buffer in; References lists compilation reference paths.
	// Both travel inside every breakpoint payload.
	Prefix     string
	Suffix     string
	References []string

	// SpawnTimeout bounds waiting for the client to connect both pipe
	// directions. Zero means 10 seconds.
	SpawnTimeout time.Duration
}

// connector is the test seam replacing process spawn + pipe accept.
type connector func() (out, in io.ReadWriteCloser, err error)

// Server owns the client process, the pipe pair, and the suppression
// map shared by its handler factories.
type Server struct {
	cfg       Config
	log       logrus.FieldLogger
	annotator tracing.Annotator
	connect   connector

	// sessionMu serializes breakpoint sessions end-to-end.
	sessionMu sync.Mutex

	mu         sync.Mutex
	disposed   bool
	source     string
	suppressed map[int]bool

	cmd        *exec.Cmd
	cmdExited  atomic.Bool
	outRW      io.ReadWriteCloser
	inRW       io.ReadWriteCloser
	out        *wire.Conn
	in         *wire.Conn
	pipeNames  []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithAnnotator installs a tracing annotator around sessions and
// requests.
func WithAnnotator(a tracing.Annotator) Option {
	return func(s *Server) {
		s.annotator = a
	}
}

// withConnector replaces process spawning for tests.
func withConnector(c connector) Option {
	return func(s *Server) {
		s.connect = c
	}
}

// New creates a server. A finalizer provides last-resort cleanup; the
// host should still call Close.
func New(cfg Config, opts ...Option) *Server {
	if cfg.SpawnTimeout == 0 {
		cfg.SpawnTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:        cfg,
		log:        logrus.StandardLogger().WithField("component", "debug-server"),
		annotator:  tracing.Nop{},
		suppressed: make(map[int]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	runtime.SetFinalizer(s, func(srv *Server) { _ = srv.Close() })
	return s
}

// SetSource sets the full source text included in subsequent
// breakpoint payloads. The editor host calls this on each compile.
func (s *Server) SetSource(src string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

// Suppressed reports whether hits at the offset are ignored.
func (s *Server) Suppressed(offset int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed[offset]
}

// SyncHandler returns the synchronous shim hook. It blocks the
// calling goroutine for the whole remote inspection session.
func (s *Server) SyncHandler() debugger.SyncHook {
	return func(offset int, names []string, metas []string, values []any) {
		_ = s.serveHit(context.Background(), offset, names, metas, values)
	}
}

// AsyncHandler returns the asynchronous shim hook. The session loop
// itself still blocks, keeping the paused program stopped, but the
// caller's context parents the tracing spans and is observed before
// the session starts.
func (s *Server) AsyncHandler() debugger.AsyncHook {
	return func(ctx context.Context, offset int, names []string, metas []string, values []any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.serveHit(ctx, offset, names, metas, values)
	}
}

// serveHit runs one complete breakpoint session.
func (s *Server) serveHit(ctx context.Context, offset int, names []string, metas []string, values []any) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	s.mu.Lock()
	disposed, suppressed, source := s.disposed, s.suppressed[offset], s.source
	s.mu.Unlock()
	if disposed || suppressed {
		return nil
	}

	if err := s.ensureClient(); err != nil {
		s.log.WithError(err).Error("cannot reach debug client")
		return err
	}

	ctx, endSession := s.annotator.Session(ctx, offset)
	defer endSession()

	arena := snapshot.NewArena()
	defer arena.Reset()

	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = snapshot.Describe(v, arena).Encode()
	}
	payload := wire.Payload{
		Offset:     offset,
		Names:      names,
		Metas:      metas,
		Values:     encoded,
		Source:     source,
		Prefix:     s.cfg.Prefix,
		Suffix:     s.cfg.Suffix,
		References: s.cfg.References,
	}
	line, err := payload.Encode()
	if err != nil {
		return err
	}
	if err := s.out.Send(wire.KindInit); err != nil {
		return s.sessionErr(err)
	}
	if err := s.out.SendLine(line); err != nil {
		return s.sessionErr(err)
	}

	suppress, err := s.serveRequests(ctx, arena)
	if err != nil {
		return s.sessionErr(err)
	}
	if suppress {
		s.mu.Lock()
		s.suppressed[offset] = true
		s.mu.Unlock()
	}
	return nil
}

// serveRequests answers the client's inspection requests until Resume
// arrives, returning the suppression flag it carried.
func (s *Server) serveRequests(ctx context.Context, arena *snapshot.Arena) (bool, error) {
	for {
		kind, fields, err := s.in.Recv()
		if err != nil {
			return false, fmt.Errorf("server: session read: %w", err)
		}
		endRequest := s.annotator.Request(ctx, kind)

		switch kind {
		case wire.KindGetItems:
			handle := parseHandle(fields, 0)
			items, err := snapshot.Items(arena, handle)
			if err != nil {
				items = []snapshot.Value{{Kind: snapshot.KindString, Text: err.Error()}}
			}
			lines := make([]string, len(items))
			for i, v := range items {
				lines[i] = v.Encode()
			}
			err = s.out.Send(wire.KindValues, lines...)
			endRequest()
			if err != nil {
				return false, err
			}

		case wire.KindGetProperty:
			handle := parseHandle(fields, 0)
			var member string
			isProperty := false
			if len(fields) > 1 {
				member = fields[1]
			}
			if len(fields) > 2 {
				isProperty = fields[2] == "true"
			}
			v := snapshot.GetMember(arena, handle, member, isProperty)
			err = s.out.Send(wire.KindValues, v.Encode())
			endRequest()
			if err != nil {
				return false, err
			}

		case wire.KindResume:
			suppress := len(fields) > 0 && fields[0] == "true"
			endRequest()
			return suppress, nil

		default:
			s.log.WithField("kind", kind).Warn("unexpected message from debug client")
			endRequest()
		}
	}
}

// sessionErr downgrades wire failures observed during teardown:
// after Abort went out the channel is expected to die.
func (s *Server) sessionErr(err error) error {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return nil
	}
	return err
}

func parseHandle(fields []string, i int) snapshot.Handle {
	if i >= len(fields) {
		return 0
	}
	n, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0
	}
	return snapshot.Handle(n)
}
