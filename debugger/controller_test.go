package debugger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_SyncSuppression(t *testing.T) {
	c := NewController()
	var hits []*BreakpointInfo
	hook := c.SyncHandler(func(info *BreakpointInfo) bool {
		hits = append(hits, info)
		return true // suppress
	})

	hook(100, []string{"x"}, []string{`{"name":"x"}`}, []any{1})
	require.Len(t, hits, 1)
	assert.Equal(t, 100, hits[0].Offset)
	assert.True(t, c.Suppressed(100))

	// Once suppressed the site stays suppressed; the callback never
	// fires again.
	hook(100, []string{"x"}, []string{`{"name":"x"}`}, []any{2})
	assert.Len(t, hits, 1)

	// A different offset is unaffected.
	hook(200, nil, nil, nil)
	assert.Len(t, hits, 2)
}

func TestController_SyncNoSuppress(t *testing.T) {
	c := NewController()
	count := 0
	hook := c.SyncHandler(func(info *BreakpointInfo) bool {
		count++
		return false
	})
	hook(100, nil, nil, nil)
	hook(100, nil, nil, nil)
	assert.Equal(t, 2, count)
	assert.False(t, c.Suppressed(100))
}

func TestController_GuardSkipsWithoutSuspending(t *testing.T) {
	guarded := true
	c := NewController(WithGuard(func() bool { return guarded }))
	count := 0
	hook := c.SyncHandler(func(info *BreakpointInfo) bool {
		count++
		return true
	})

	// On the guarded goroutine the hook is a no-op and the site does
	// not become suppressed.
	hook(100, nil, nil, nil)
	assert.Equal(t, 0, count)
	assert.False(t, c.Suppressed(100))

	guarded = false
	hook(100, nil, nil, nil)
	assert.Equal(t, 1, count)
}

func TestController_AsyncIgnoresGuard(t *testing.T) {
	c := NewController(WithGuard(func() bool { return true }))
	count := 0
	hook := c.AsyncHandler(func(ctx context.Context, info *BreakpointInfo) (bool, error) {
		count++
		return true, nil
	})

	require.NoError(t, hook(context.Background(), 100, nil, nil, nil))
	assert.Equal(t, 1, count)
	assert.True(t, c.Suppressed(100))

	require.NoError(t, hook(context.Background(), 100, nil, nil, nil))
	assert.Equal(t, 1, count)
}

func TestController_AsyncError(t *testing.T) {
	c := NewController()
	boom := errors.New("boom")
	hook := c.AsyncHandler(func(ctx context.Context, info *BreakpointInfo) (bool, error) {
		return true, boom
	})
	err := hook(context.Background(), 100, nil, nil, nil)
	assert.ErrorIs(t, err, boom)
	// A failed callback must not suppress the site.
	assert.False(t, c.Suppressed(100))
}

func TestController_Hooks(t *testing.T) {
	c := NewController()
	h := c.Hooks(
		func(info *BreakpointInfo) bool { return false },
		func(ctx context.Context, info *BreakpointInfo) (bool, error) { return false, nil },
	)
	assert.NotNil(t, h.Sync)
	assert.NotNil(t, h.Async)

	empty := c.Hooks(nil, nil)
	assert.Nil(t, empty.Sync)
	assert.Nil(t, empty.Async)
}

func TestGoroutineGuard(t *testing.T) {
	guard := GoroutineGuard()
	assert.True(t, guard())

	res := make(chan bool, 1)
	go func() { res <- guard() }()
	assert.False(t, <-res)
}

func TestDecodeMetas(t *testing.T) {
	metas := DecodeMetas(
		[]string{"x", "y"},
		[]string{EncodeMeta(VarMeta{Name: "x", Type: "int"}), "garbage"},
	)
	require.Len(t, metas, 2)
	assert.Equal(t, VarMeta{Name: "x", Type: "int"}, metas[0])
	// Malformed metadata degrades to a bare name.
	assert.Equal(t, VarMeta{Name: "y"}, metas[1])
}
