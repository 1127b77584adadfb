package server

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftpad/draftpad/remote/wire"
	"github.com/draftpad/draftpad/snapshot"
)

type point struct {
	X int
	Y int
}

// fakeClient drives the client side of the protocol in-process.
type fakeClient struct {
	t   *testing.T
	in  *wire.Conn // server-to-client direction
	out *wire.Conn // client-to-server direction
}

func (c *fakeClient) recvPayload() wire.Payload {
	c.t.Helper()
	kind, _, err := c.in.Recv()
	require.NoError(c.t, err)
	require.Equal(c.t, wire.KindInit, kind)
	line, err := c.in.RecvLine()
	require.NoError(c.t, err)
	p, err := wire.DecodePayload(line)
	require.NoError(c.t, err)
	return p
}

func (c *fakeClient) request(kind string, fields ...string) []string {
	c.t.Helper()
	require.NoError(c.t, c.out.Send(kind, fields...))
	k, resp, err := c.in.Recv()
	require.NoError(c.t, err)
	require.Equal(c.t, wire.KindValues, k)
	return resp
}

func (c *fakeClient) resume(suppress bool) {
	c.t.Helper()
	require.NoError(c.t, c.out.Send(wire.KindResume, strconv.FormatBool(suppress)))
}

// drain consumes teardown traffic (the Abort on dispose) so a deferred
// Close never blocks on the unbuffered pipe. Start it only after the
// session's last expected read.
func (c *fakeClient) drain() {
	for {
		if _, _, err := c.in.Recv(); err != nil {
			return
		}
	}
}

// testConnector returns a connector that wires each spawn to a fresh
// fake client over net.Pipe, completing the handshake automatically.
func testConnector(t *testing.T, calls *int, clientCh chan *fakeClient) connector {
	return func() (io.ReadWriteCloser, io.ReadWriteCloser, error) {
		*calls++
		srvOut, cliIn := net.Pipe()
		cliOut, srvIn := net.Pipe()
		fc := &fakeClient{t: t, in: wire.NewConn(cliIn, cliIn), out: wire.NewConn(cliOut, cliOut)}
		go func() {
			token, err := fc.in.RecvLine()
			if err != nil {
				return
			}
			if err := fc.out.SendLine(token); err != nil {
				return
			}
			clientCh <- fc
		}()
		return srvOut, srvIn, nil
	}
}

func TestServer_Session(t *testing.T) {
	calls := 0
	clientCh := make(chan *fakeClient, 1)
	s := New(Config{
		Prefix:     "pre",
		Suffix:     "post",
		References: []string{"ref.go"},
	}, withConnector(testConnector(t, &calls, clientCh)))
	defer s.Close() //nolint:errcheck
	s.SetSource("package main\n\nfunc main() {}\n")

	done := make(chan struct{})
	go func() {
		defer close(done)
		fc := <-clientCh

		p := fc.recvPayload()
		assert.Equal(t, 42, p.Offset)
		assert.Equal(t, []string{"pt", "items"}, p.Names)
		assert.Equal(t, "pre", p.Prefix)
		assert.Equal(t, "post", p.Suffix)
		assert.Equal(t, []string{"ref.go"}, p.References)
		require.Len(t, p.Values, 2)

		pt, err := snapshot.Decode(p.Values[0])
		require.NoError(t, err)
		require.Equal(t, snapshot.KindClass, pt.Kind)
		require.NotZero(t, pt.Handle)

		// Expand a member through GetProperty.
		resp := fc.request(wire.KindGetProperty, fmt.Sprint(pt.Handle), "X", "false")
		require.Len(t, resp, 1)
		x, err := snapshot.Decode(resp[0])
		require.NoError(t, err)
		assert.Equal(t, "1", x.Text)

		// Expand the slice through GetItems.
		items, err := snapshot.Decode(p.Values[1])
		require.NoError(t, err)
		resp = fc.request(wire.KindGetItems, fmt.Sprint(items.Handle))
		assert.Len(t, resp, 2)

		fc.resume(false)
		go fc.drain()
	}()

	hook := s.SyncHandler()
	hook(42, []string{"pt", "items"}, []string{"{}", "{}"}, []any{point{X: 1, Y: 2}, []int{7, 8}})
	<-done

	assert.Equal(t, 1, calls)
	assert.False(t, s.Suppressed(42))
}

func TestServer_SuppressionSkipsSession(t *testing.T) {
	calls := 0
	clientCh := make(chan *fakeClient, 2)
	s := New(Config{}, withConnector(testConnector(t, &calls, clientCh)))
	defer s.Close() //nolint:errcheck

	go func() {
		fc := <-clientCh
		fc.recvPayload()
		fc.resume(true)
		go fc.drain()
	}()

	hook := s.SyncHandler()
	hook(10, nil, nil, nil)
	require.True(t, s.Suppressed(10))

	// A suppressed offset produces no client traffic at all: no spawn,
	// no payload.
	hook(10, nil, nil, nil)
	assert.Equal(t, 1, calls)
}

func TestServer_RespawnAfterClientExit(t *testing.T) {
	calls := 0
	clientCh := make(chan *fakeClient, 2)
	s := New(Config{}, withConnector(testConnector(t, &calls, clientCh)))
	defer s.Close() //nolint:errcheck

	serve := func() {
		fc := <-clientCh
		fc.recvPayload()
		fc.resume(false)
		go fc.drain()
	}

	go serve()
	hook := s.SyncHandler()
	hook(1, nil, nil, nil)
	require.Equal(t, 1, calls)

	// Client death between hits: the next payload tears down the dead
	// pipes and spawns exactly one fresh client.
	s.cmdExited.Store(true)
	go serve()
	hook(2, nil, nil, nil)
	assert.Equal(t, 2, calls)
	assert.False(t, s.cmdExited.Load())
}

func TestServer_CloseDoesNotBlockOnDeadClient(t *testing.T) {
	calls := 0
	clientCh := make(chan *fakeClient, 1)
	s := New(Config{}, withConnector(testConnector(t, &calls, clientCh)))

	go func() {
		fc := <-clientCh
		fc.recvPayload()
		fc.resume(false)
		// Reads nothing further: the abort write must still not wedge
		// disposal.
	}()
	s.SyncHandler()(1, nil, nil, nil)
	require.NoError(t, s.Close())
}

func TestServer_CloseIdempotent(t *testing.T) {
	s := New(Config{}, withConnector(func() (io.ReadWriteCloser, io.ReadWriteCloser, error) {
		t.Fatal("connector must not run")
		return nil, nil, nil
	}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Hits after dispose are ignored.
	s.SyncHandler()(5, nil, nil, nil)
	assert.False(t, s.Suppressed(5))
}

func TestServer_CloseSendsAbort(t *testing.T) {
	calls := 0
	clientCh := make(chan *fakeClient, 1)
	s := New(Config{}, withConnector(testConnector(t, &calls, clientCh)))

	kindCh := make(chan string, 1)
	go func() {
		fc := <-clientCh
		fc.recvPayload()
		fc.resume(false)

		kind, _, err := fc.in.Recv()
		if err == nil {
			kindCh <- kind
		}
	}()

	s.SyncHandler()(1, nil, nil, nil)
	require.NoError(t, s.Close())
	assert.Equal(t, wire.KindAbort, <-kindCh)
}
