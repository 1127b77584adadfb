package client

import (
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftpad/draftpad/remote/wire"
	"github.com/draftpad/draftpad/snapshot"
)

func TestParseArgs(t *testing.T) {
	pid, outName, inName, rest, err := ParseArgs([]string{"--flag", "v", "123", "out.pipe", "in.pipe"})
	require.NoError(t, err)
	assert.Equal(t, 123, pid)
	assert.Equal(t, "out.pipe", outName)
	assert.Equal(t, "in.pipe", inName)
	assert.Equal(t, []string{"--flag", "v"}, rest)

	_, _, _, _, err = ParseArgs([]string{"a", "b"})
	assert.Error(t, err)

	_, _, _, _, err = ParseArgs([]string{"nan", "out", "in"})
	assert.Error(t, err)
}

// testHarness is the server side of an in-process client connection.
type testHarness struct {
	t   *testing.T
	out *wire.Conn // server-to-client direction
	in  *wire.Conn // client-to-server direction

	client *Client
	hits   chan *Hit
	exits  *atomic.Int32
}

func newHarness(t *testing.T, parentPID int) *testHarness {
	t.Helper()
	srvOut, cliIn := net.Pipe()
	cliOut, srvIn := net.Pipe()

	h := &testHarness{
		t:     t,
		out:   wire.NewConn(srvOut, srvOut),
		in:    wire.NewConn(srvIn, srvIn),
		hits:  make(chan *Hit, 4),
		exits: &atomic.Int32{},
	}
	events := Events{
		OnHit:        func(hit *Hit) { h.hits <- hit },
		OnParentExit: func() { h.exits.Add(1) },
	}
	h.client = New(parentPID, cliIn, cliOut, events, withParentPoll(10*time.Millisecond))
	t.Cleanup(func() { _ = h.client.Close() })
	return h
}

func (h *testHarness) sendHit(p wire.Payload) {
	h.t.Helper()
	line, err := p.Encode()
	require.NoError(h.t, err)
	require.NoError(h.t, h.out.Send(wire.KindInit))
	require.NoError(h.t, h.out.SendLine(line))
}

func encodeValue(val any) string {
	return snapshot.Describe(val, snapshot.NewArena()).Encode()
}

// expand runs Children for an enumerable node, serving the GetItems
// round trip from the given arena.
func (h *testHarness) expand(node *VarNode, arena *snapshot.Arena) []*VarNode {
	h.t.Helper()
	type result struct {
		children []*VarNode
		err      error
	}
	resCh := make(chan result, 1)
	go func() {
		children, err := node.Children()
		resCh <- result{children, err}
	}()

	kind, fields, err := h.in.Recv()
	require.NoError(h.t, err)
	require.Equal(h.t, wire.KindGetItems, kind)
	require.Len(h.t, fields, 1)
	handle, err := strconv.Atoi(fields[0])
	require.NoError(h.t, err)
	items, err := snapshot.Items(arena, snapshot.Handle(handle))
	require.NoError(h.t, err)
	lines := make([]string, len(items))
	for i, v := range items {
		lines[i] = v.Encode()
	}
	require.NoError(h.t, h.out.Send(wire.KindValues, lines...))

	res := <-resCh
	require.NoError(h.t, res.err)
	return res.children
}

func TestClient_HitAndResume(t *testing.T) {
	h := newHarness(t, 0)
	go h.client.Run() //nolint:errcheck

	h.sendHit(wire.Payload{
		Offset: 18,
		Names:  []string{"x"},
		Metas:  []string{`{"name":"x","type":"int"}`},
		Values: []string{encodeValue(7)},
		Source: "line one\nline two\nline three\n",
	})

	hit := <-h.hits
	assert.Equal(t, 18, hit.Payload.Offset)
	assert.Equal(t, 3, hit.View.Line())
	require.Len(t, hit.Vars, 1)
	assert.Equal(t, "x", hit.Vars[0].Name)
	assert.Equal(t, snapshot.KindNumber, hit.Vars[0].Value.Kind)
	assert.True(t, hit.Vars[0].Fetched())

	// The pipe is unbuffered, so the Resume message must be read
	// concurrently with the send.
	type received struct {
		kind   string
		fields []string
		err    error
	}
	resumeCh := make(chan received, 1)
	go func() {
		kind, fields, err := h.in.Recv()
		resumeCh <- received{kind, fields, err}
	}()
	require.NoError(t, hit.Resume(true))
	got := <-resumeCh
	require.NoError(t, got.err)
	assert.Equal(t, wire.KindResume, got.kind)
	assert.Equal(t, []string{"true"}, got.fields)

	// Resume is idempotent: no second message.
	require.NoError(t, hit.Resume(false))
	_, err := hit.fetch(wire.KindGetItems, "1")
	assert.Error(t, err)
}

func TestClient_LazyMemberFetch(t *testing.T) {
	h := newHarness(t, 0)
	go h.client.Run() //nolint:errcheck

	arena := snapshot.NewArena()
	obj := snapshot.Describe(struct{ Name string }{Name: "ada"}, arena)
	h.sendHit(wire.Payload{
		Names:  []string{"obj"},
		Metas:  []string{"{}"},
		Values: []string{obj.Encode()},
	})
	hit := <-h.hits
	require.Len(t, hit.Vars, 1)

	// Expanding a Class node is local: it materializes unfetched member
	// nodes without wire traffic.
	children, err := hit.Vars[0].Children()
	require.NoError(t, err)
	require.Len(t, children, 1)
	child := children[0]
	assert.Equal(t, "Name", child.Name)
	assert.False(t, child.Fetched())

	// Fetching the member issues one GetProperty round trip.
	errCh := make(chan error, 1)
	go func() {
		errCh <- child.Fetch()
	}()
	kind, fields, err := h.in.Recv()
	require.NoError(t, err)
	require.Equal(t, wire.KindGetProperty, kind)
	require.Equal(t, []string{"1", "Name", "false"}, fields)
	require.NoError(t, h.out.Send(wire.KindValues, encodeValue("ada")))
	require.NoError(t, <-errCh)

	assert.True(t, child.Fetched())
	assert.Equal(t, "ada", child.Value.Text)
	// A second Fetch is a no-op.
	require.NoError(t, child.Fetch())
}

func TestClient_MapItemsPairwise(t *testing.T) {
	h := newHarness(t, 0)
	go h.client.Run() //nolint:errcheck

	arena := snapshot.NewArena()
	m := snapshot.Describe(map[string]int{"b": 2, "a": 1}, arena)
	require.True(t, m.IsMap)
	h.sendHit(wire.Payload{
		Names:  []string{"m"},
		Metas:  []string{"{}"},
		Values: []string{m.Encode()},
	})
	hit := <-h.hits

	children := h.expand(hit.Vars[0], arena)
	require.Len(t, children, 2)
	assert.Equal(t, "[a]", children[0].Name)
	assert.Equal(t, "1", children[0].Value.Text)
	assert.Equal(t, "[b]", children[1].Name)
	assert.Equal(t, "2", children[1].Value.Text)
}

func TestClient_CommaElemTypeIsNotMap(t *testing.T) {
	h := newHarness(t, 0)
	go h.client.Run() //nolint:errcheck

	arena := snapshot.NewArena()
	fns := []func(a, b int) int{
		func(a, b int) int { return a },
		func(a, b int) int { return b },
	}
	list := snapshot.Describe(fns, arena)
	require.False(t, list.IsMap)
	require.Contains(t, list.TypeName, ",")
	h.sendHit(wire.Payload{
		Names:  []string{"fns"},
		Metas:  []string{"{}"},
		Values: []string{list.Encode()},
	})
	hit := <-h.hits

	// An even-length slice whose element type text contains a comma
	// must not collapse into key/value pairs.
	children := h.expand(hit.Vars[0], arena)
	require.Len(t, children, 2)
	assert.Equal(t, "[0]", children[0].Name)
	assert.Equal(t, "[1]", children[1].Name)
}

func TestClient_AbortNotifiesOnce(t *testing.T) {
	h := newHarness(t, 0)
	done := make(chan error, 1)
	go func() { done <- h.client.Run() }()

	require.NoError(t, h.out.Send(wire.KindAbort))
	require.NoError(t, <-done)

	// The pipe teardown that follows must not re-notify.
	assert.Equal(t, int32(1), h.exits.Load())
	_ = h.client.Close()
	assert.Equal(t, int32(1), h.exits.Load())
}

func TestClient_PipeDeathNotifies(t *testing.T) {
	h := newHarness(t, 0)
	done := make(chan error, 1)
	go func() { done <- h.client.Run() }()

	// Killing the pipe is indistinguishable from a dead host.
	require.NoError(t, h.client.inRW.Close())
	<-done
	assert.Equal(t, int32(1), h.exits.Load())
}

func TestClient_ParentExitDetection(t *testing.T) {
	// A pid that cannot exist on this system.
	h := newHarness(t, 1<<30)
	go h.client.Run() //nolint:errcheck

	require.Eventually(t, func() bool {
		return h.exits.Load() == 1
	}, 2*time.Second, 10*time.Millisecond, "parent exit was not detected")
}

func TestClient_SourceViewReuse(t *testing.T) {
	h := newHarness(t, 0)
	go h.client.Run() //nolint:errcheck

	h.sendHit(wire.Payload{Source: "a\nb\n", Prefix: "p", Suffix: "s"})
	first := <-h.hits

	h.sendHit(wire.Payload{Source: "a\nb\nc\n", Offset: 4, Prefix: "p", Suffix: "s"})
	second := <-h.hits
	// Same fragments: the view object is reused and updated in place.
	assert.Same(t, first.View, second.View)
	assert.Equal(t, 3, second.View.Line())

	h.sendHit(wire.Payload{Source: "a\n", Prefix: "other", Suffix: "s"})
	third := <-h.hits
	assert.NotSame(t, second.View, third.View)
}

func TestSourceView_Render(t *testing.T) {
	v := &SourceView{}
	v.update("x := 1\ny := 2\n", 7)
	out := v.Render(80)
	assert.Contains(t, out, "  x := 1")
	assert.Contains(t, out, "=>y := 2")
}
