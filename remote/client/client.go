// Copyright © 2025 The DraftPad authors

// Package client runs the inspector side of the interprocess
// debugger: a separate process that receives breakpoint payloads,
// presents a read-only view of the paused source and variables, and
// signals resumption.
//
// Variable children are materialized lazily: expanding a node issues
// a synchronous GetItems/GetProperty round trip over the pipe and
// blocks until the server answers or the channel aborts. One request
// is outstanding at a time.
package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/draftpad/draftpad/remote/wire"
)

// ErrAborted is returned by round trips once the channel is torn
// down. Pipe failures observed after an abort are expected and are
// reported as this error, never escalated.
var ErrAborted = errors.New("client: debug channel aborted")

// Events are the client's notifications to its UI surface. OnHit and
// OnResumed run on the receive goroutine; OnParentExit fires at most
// once even though two independent signals can trigger it.
type Events struct {
	OnHit        func(*Hit)
	OnResumed    func()
	OnParentExit func()
}

// Client is the inspector-process endpoint of the debug protocol.
type Client struct {
	parentPID int
	events    Events
	log       logrus.FieldLogger

	inRW  io.ReadWriteCloser
	outRW io.ReadWriteCloser
	in    *wire.Conn // server-to-client direction
	out   *wire.Conn // client-to-server direction

	// reqMu enforces a single outstanding request.
	reqMu  sync.Mutex
	respCh chan []string

	parentOnce sync.Once
	closeOnce  sync.Once
	closed     chan struct{}

	mu       sync.Mutex
	view     *SourceView
	current  *Hit
	pollIntv time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// withParentPoll overrides the parent liveness poll interval (tests).
func withParentPoll(d time.Duration) Option {
	return func(c *Client) {
		c.pollIntv = d
	}
}

// ParseArgs recovers the spawn contract from the process arguments:
// the trailing three are the parent pid and the two pipe names; the
// leading ones are returned untouched.
func ParseArgs(args []string) (pid int, outName, inName string, rest []string, err error) {
	if len(args) < 3 {
		return 0, "", "", nil, fmt.Errorf("client: want at least 3 args, got %d", len(args))
	}
	n := len(args)
	pid, err = strconv.Atoi(args[n-3])
	if err != nil {
		return 0, "", "", nil, fmt.Errorf("client: parent pid: %w", err)
	}
	return pid, args[n-2], args[n-1], args[:n-3], nil
}

// New wraps pre-connected pipe endpoints. Dial is the production
// entry point; New is the seam for in-process tests.
func New(parentPID int, inRW, outRW io.ReadWriteCloser, events Events, opts ...Option) *Client {
	c := &Client{
		parentPID: parentPID,
		events:    events,
		log:       logrus.StandardLogger().WithField("component", "debug-client"),
		inRW:      inRW,
		outRW:     outRW,
		in:        wire.NewConn(inRW, inRW),
		out:       wire.NewConn(outRW, outRW),
		respCh:    make(chan []string),
		closed:    make(chan struct{}),
		pollIntv:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects both pipe directions (roles inverted relative to the
// server), completes the handshake, and returns a ready client.
func Dial(parentPID int, outName, inName string, events Events, opts ...Option) (*Client, error) {
	inConn, err := wire.DialPipe(outName, 10*time.Second)
	if err != nil {
		return nil, err
	}
	outConn, err := wire.DialPipe(inName, 10*time.Second)
	if err != nil {
		inConn.Close() //nolint:errcheck // teardown
		return nil, err
	}
	c := New(parentPID, inConn, outConn, events, opts...)
	if err := wire.HandshakeClient(c.in, c.out); err != nil {
		c.Close() //nolint:errcheck // teardown
		return nil, err
	}
	return c, nil
}

// Run watches the parent process and services the receive loop until
// the channel is torn down. It blocks.
func (c *Client) Run() error {
	go c.watchParent()
	return c.receiveLoop()
}

func (c *Client) receiveLoop() error {
	for {
		kind, fields, err := c.in.Recv()
		if err != nil {
			select {
			case <-c.closed:
				return nil
			default:
			}
			// A dying pipe and an explicit Abort carry the same
			// meaning: the host is gone.
			c.parentExited()
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch kind {
		case wire.KindAbort:
			c.parentExited()
			return nil
		case wire.KindInit:
			line, err := c.in.RecvLine()
			if err != nil {
				c.parentExited()
				return err
			}
			payload, err := wire.DecodePayload(line)
			if err != nil {
				c.log.WithError(err).Error("malformed breakpoint payload")
				continue
			}
			hit, err := c.newHit(payload)
			if err != nil {
				c.log.WithError(err).Error("cannot decode breakpoint payload")
				continue
			}
			if c.events.OnHit != nil {
				c.events.OnHit(hit)
			}
		case wire.KindValues:
			// Responses are always solicited: the requester is already
			// blocked on respCh, or teardown races the delivery.
			select {
			case c.respCh <- fields:
			case <-c.closed:
				return nil
			}
		default:
			c.log.WithField("kind", kind).Warn("unexpected message from debug server")
		}
	}
}

// roundTrip sends one request and blocks for its response.
func (c *Client) roundTrip(kind string, fields ...string) ([]string, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	select {
	case <-c.closed:
		return nil, ErrAborted
	default:
	}
	if err := c.out.Send(kind, fields...); err != nil {
		select {
		case <-c.closed:
			return nil, ErrAborted
		default:
			return nil, err
		}
	}
	select {
	case resp := <-c.respCh:
		return resp, nil
	case <-c.closed:
		return nil, ErrAborted
	}
}

// watchParent polls the parent process and raises the parent-exited
// notification when it disappears.
func (c *Client) watchParent() {
	if c.parentPID <= 0 {
		return
	}
	ticker := time.NewTicker(c.pollIntv)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if !processAlive(c.parentPID) {
				c.parentExited()
				return
			}
		}
	}
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// parentExited raises the parent-exited notification exactly once,
// whichever of its two triggers (OS detection, Abort message) fires
// first, and tears the channel down.
func (c *Client) parentExited() {
	c.parentOnce.Do(func() {
		if c.events.OnParentExit != nil {
			c.events.OnParentExit()
		}
	})
	c.Close() //nolint:errcheck // teardown
}

// Close tears down the pipes. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.inRW != nil {
			c.inRW.Close() //nolint:errcheck // teardown
		}
		if c.outRW != nil {
			c.outRW.Close() //nolint:errcheck // teardown
		}
	})
	return nil
}
