// Copyright © 2025 The DraftPad authors

// Package dapbridge exposes the in-process suspension controller to
// Debug Adapter Protocol clients.
//
// The bridge is a suspension-controller callback plus a single-client
// DAP read loop: a breakpoint hit sends a stopped event and blocks
// the hitting goroutine until the DAP client requests continue.
// Variable inspection is served in-process from the hit's snapshot
// arena, so expansion never crosses a process boundary here.
//
// DAP has no "suppress this site" flag on continue; clearing the
// breakpoints while stopped is interpreted as suppression.
package dapbridge

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/draftpad/draftpad/debugger"
	"github.com/draftpad/draftpad/snapshot"
)

const localsRef = 1000 // variable refs above this map to arena handles

// Bridge serves one DAP client over one connection.
type Bridge struct {
	log logrus.FieldLogger

	mu     sync.Mutex
	seq    int
	writer io.Writer
	source string

	// paused-hit state, valid between stopped and continue
	info   *debugger.BreakpointInfo
	arena  *snapshot.Arena
	top    []snapshot.Value       // described top-level variables
	vals   map[int]snapshot.Value // varRef -> value
	paused bool
	clear  bool // breakpoints were cleared while paused

	resumeCh chan bool
	done     chan struct{}
	doneOnce sync.Once
}

// New returns an unconnected bridge.
func New() *Bridge {
	return &Bridge{
		log:      logrus.StandardLogger().WithField("component", "dapbridge"),
		resumeCh: make(chan bool),
		done:     make(chan struct{}),
	}
}

// SetSource sets the source text used to translate breakpoint offsets
// into DAP line numbers.
func (b *Bridge) SetSource(src string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.source = src
}

// Callback returns the suspension-controller callback: it publishes
// the hit to the DAP client and blocks until continue. The returned
// suppression flag is true when the client cleared its breakpoints
// while stopped.
func (b *Bridge) Callback() debugger.SyncCallback {
	return func(info *debugger.BreakpointInfo) bool {
		arena := snapshot.NewArena()
		vals := make(map[int]snapshot.Value, len(info.Values))
		top := make([]snapshot.Value, len(info.Values))
		for i, v := range info.Values {
			sv := snapshot.Describe(v, arena)
			top[i] = sv
			if sv.Handle != 0 {
				vals[localsRef+int(sv.Handle)] = sv
			}
		}

		b.mu.Lock()
		b.info = info
		b.arena = arena
		b.top = top
		b.vals = vals
		b.paused = true
		b.clear = false
		b.mu.Unlock()

		b.sendEvent(&dap.StoppedEvent{
			Event: b.newEvent("stopped"),
			Body: dap.StoppedEventBody{
				Reason:            "breakpoint",
				ThreadId:          1,
				AllThreadsStopped: true,
			},
		})

		var suppress bool
		select {
		case suppress = <-b.resumeCh:
		case <-b.done:
		}

		b.mu.Lock()
		b.info = nil
		b.arena = nil
		b.top = nil
		b.vals = nil
		b.paused = false
		b.mu.Unlock()
		arena.Reset()
		return suppress
	}
}

// ServeConn serves DAP messages on a single connection until the
// client disconnects.
func (b *Bridge) ServeConn(conn io.ReadWriteCloser) error {
	defer conn.Close() //nolint:errcheck // best-effort cleanup
	b.mu.Lock()
	b.writer = conn
	b.mu.Unlock()
	reader := bufio.NewReader(conn)

	defer b.release()
	for {
		select {
		case <-b.done:
			return nil
		default:
		}
		msg, err := dap.ReadProtocolMessage(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			select {
			case <-b.done:
				return nil
			default:
				return err
			}
		}
		b.handle(msg)
	}
}

// Close stops the bridge and unblocks a paused callback.
func (b *Bridge) Close() error {
	b.release()
	return nil
}

// release unblocks a paused hit without suppression.
func (b *Bridge) release() {
	b.doneOnce.Do(func() { close(b.done) })
}

func (b *Bridge) handle(msg dap.Message) {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		resp := &dap.InitializeResponse{Response: b.newResponse(req.Seq, req.Command)}
		resp.Body.SupportsConfigurationDoneRequest = true
		b.send(resp)
		b.sendEvent(&dap.InitializedEvent{Event: b.newEvent("initialized")})
	case *dap.ConfigurationDoneRequest:
		b.send(&dap.ConfigurationDoneResponse{Response: b.newResponse(req.Seq, req.Command)})
	case *dap.SetBreakpointsRequest:
		b.onSetBreakpoints(req)
	case *dap.ThreadsRequest:
		resp := &dap.ThreadsResponse{Response: b.newResponse(req.Seq, req.Command)}
		resp.Body.Threads = []dap.Thread{{Id: 1, Name: "instrumented"}}
		b.send(resp)
	case *dap.StackTraceRequest:
		b.onStackTrace(req)
	case *dap.ScopesRequest:
		resp := &dap.ScopesResponse{Response: b.newResponse(req.Seq, req.Command)}
		resp.Body.Scopes = []dap.Scope{{Name: "Locals", VariablesReference: localsRef}}
		b.send(resp)
	case *dap.VariablesRequest:
		b.onVariables(req)
	case *dap.ContinueRequest:
		b.onContinue(req)
	case *dap.DisconnectRequest:
		b.send(&dap.DisconnectResponse{Response: b.newResponse(req.Seq, req.Command)})
		b.release()
	default:
		// Unsupported requests get an empty success so clients keep going.
		if r, ok := msg.(dap.RequestMessage); ok {
			b.send(&dap.Response{
				ProtocolMessage: dap.ProtocolMessage{Seq: b.nextSeq(), Type: "response"},
				RequestSeq:      r.GetRequest().Seq,
				Command:         r.GetRequest().Command,
				Success:         true,
			})
		}
	}
}

// onSetBreakpoints records only what suppression needs: clearing all
// breakpoints while stopped marks the current site suppressed.
func (b *Bridge) onSetBreakpoints(req *dap.SetBreakpointsRequest) {
	b.mu.Lock()
	if b.paused && len(req.Arguments.Breakpoints) == 0 {
		b.clear = true
	}
	b.mu.Unlock()

	resp := &dap.SetBreakpointsResponse{Response: b.newResponse(req.Seq, req.Command)}
	resp.Body.Breakpoints = make([]dap.Breakpoint, len(req.Arguments.Breakpoints))
	for i, sb := range req.Arguments.Breakpoints {
		resp.Body.Breakpoints[i] = dap.Breakpoint{Verified: true, Line: sb.Line}
	}
	b.send(resp)
}

func (b *Bridge) onStackTrace(req *dap.StackTraceRequest) {
	b.mu.Lock()
	line := 1
	if b.info != nil && b.info.Offset <= len(b.source) {
		line = 1 + strings.Count(b.source[:b.info.Offset], "\n")
	}
	paused := b.paused
	b.mu.Unlock()

	resp := &dap.StackTraceResponse{Response: b.newResponse(req.Seq, req.Command)}
	if paused {
		resp.Body.StackFrames = []dap.StackFrame{{Id: 1, Name: "breakpoint", Line: line, Column: 1}}
		resp.Body.TotalFrames = 1
	}
	b.send(resp)
}

func (b *Bridge) onVariables(req *dap.VariablesRequest) {
	b.mu.Lock()
	info, arena, top, vals := b.info, b.arena, b.top, b.vals
	b.mu.Unlock()

	resp := &dap.VariablesResponse{Response: b.newResponse(req.Seq, req.Command)}
	if info == nil || arena == nil {
		b.send(resp)
		return
	}

	ref := req.Arguments.VariablesReference
	switch {
	case ref == localsRef:
		for i, sv := range top {
			name := ""
			if i < len(info.Names) {
				name = info.Names[i]
			}
			resp.Body.Variables = append(resp.Body.Variables, b.toVariable(name, sv, vals))
		}
	case ref > localsRef:
		handle := snapshot.Handle(ref - localsRef)
		sv, ok := vals[ref]
		if !ok {
			break
		}
		switch sv.Kind {
		case snapshot.KindEnumerable:
			items, err := snapshot.Items(arena, handle)
			if err != nil {
				break
			}
			for i, item := range items {
				resp.Body.Variables = append(resp.Body.Variables,
					b.toVariable("["+strconv.Itoa(i)+"]", item, vals))
			}
		case snapshot.KindClass, snapshot.KindInterface:
			for _, m := range sv.Members {
				mv := snapshot.GetMember(arena, handle, m.Name, m.IsProperty)
				resp.Body.Variables = append(resp.Body.Variables, b.toVariable(m.Name, mv, vals))
			}
		}
	}
	b.send(resp)
}

// toVariable converts a snapshot entry to a DAP variable, registering
// expandable entries in the ref table.
func (b *Bridge) toVariable(name string, sv snapshot.Value, vals map[int]snapshot.Value) dap.Variable {
	v := dap.Variable{Name: name, Value: sv.Text, Type: sv.TypeName}
	if sv.Handle != 0 && (sv.Kind == snapshot.KindEnumerable || sv.Kind == snapshot.KindClass || sv.Kind == snapshot.KindInterface) {
		ref := localsRef + int(sv.Handle)
		b.mu.Lock()
		vals[ref] = sv
		b.mu.Unlock()
		v.VariablesReference = ref
	}
	return v
}

func (b *Bridge) onContinue(req *dap.ContinueRequest) {
	b.mu.Lock()
	suppress := b.clear
	paused := b.paused
	b.mu.Unlock()

	resp := &dap.ContinueResponse{Response: b.newResponse(req.Seq, req.Command)}
	resp.Body.AllThreadsContinued = true
	b.send(resp)

	if paused {
		select {
		case b.resumeCh <- suppress:
		case <-b.done:
		}
	}
}

func (b *Bridge) newResponse(reqSeq int, command string) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: b.nextSeq(), Type: "response"},
		RequestSeq:      reqSeq,
		Command:         command,
		Success:         true,
	}
}

func (b *Bridge) newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: b.nextSeq(), Type: "event"},
		Event:           event,
	}
}

func (b *Bridge) nextSeq() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

func (b *Bridge) send(msg dap.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer == nil {
		return
	}
	if err := dap.WriteProtocolMessage(b.writer, msg); err != nil {
		b.log.WithError(err).Debug("dap write failed")
	}
}

func (b *Bridge) sendEvent(msg dap.Message) {
	b.send(msg)
}
