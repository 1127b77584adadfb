// Copyright © 2025 The DraftPad authors

package client

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/muesli/reflow/wordwrap"

	"github.com/draftpad/draftpad/remote/wire"
	"github.com/draftpad/draftpad/snapshot"
)

// SourceView is the read-only view of the paused source. The view is
// reused across hits as long as the host's prepended/appended source
// fragments are unchanged, so the inspector UI keeps its identity
// (scroll position, folding) between breakpoints.
type SourceView struct {
	prefix string
	suffix string

	mu     sync.Mutex
	source string
	offset int
}

// Source returns the paused buffer text.
func (v *SourceView) Source() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.source
}

// Offset returns the breakpoint's statement offset within Source.
func (v *SourceView) Offset() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

// Line returns the 1-based line number of the breakpoint statement.
func (v *SourceView) Line() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.offset > len(v.source) {
		return 1
	}
	return 1 + strings.Count(v.source[:v.offset], "\n")
}

// Render wraps the source to the given width, marking the breakpoint
// line.
func (v *SourceView) Render(width int) string {
	v.mu.Lock()
	source, line := v.source, 0
	if v.offset <= len(v.source) {
		line = strings.Count(v.source[:v.offset], "\n")
	}
	v.mu.Unlock()

	var b strings.Builder
	for i, l := range strings.Split(source, "\n") {
		mark := "  "
		if i == line {
			mark = "=>"
		}
		b.WriteString(mark)
		b.WriteString(l)
		b.WriteString("\n")
	}
	if width <= 0 {
		return b.String()
	}
	return wordwrap.String(b.String(), width)
}

func (v *SourceView) update(source string, offset int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.source = source
	v.offset = offset
}

// Hit is one received breakpoint: its payload, the source view, and
// the lazily expandable variable tree. Handles inside the tree die
// when the hit resolves.
type Hit struct {
	Payload wire.Payload
	View    *SourceView
	Vars    []*VarNode

	client   *Client
	resolved atomic.Bool
}

// newHit decodes a payload, reusing the previous source view when the
// prefix/suffix fragments are unchanged.
func (c *Client) newHit(p wire.Payload) (*Hit, error) {
	c.mu.Lock()
	view := c.view
	if view == nil || view.prefix != p.Prefix || view.suffix != p.Suffix {
		view = &SourceView{prefix: p.Prefix, suffix: p.Suffix}
		c.view = view
	}
	c.mu.Unlock()
	view.update(p.Source, p.Offset)

	hit := &Hit{Payload: p, View: view, client: c}
	for i, enc := range p.Values {
		val, err := snapshot.Decode(enc)
		if err != nil {
			return nil, fmt.Errorf("client: variable %d: %w", i, err)
		}
		name := ""
		if i < len(p.Names) {
			name = p.Names[i]
		}
		hit.Vars = append(hit.Vars, &VarNode{Name: name, Value: val, hit: hit})
	}

	c.mu.Lock()
	c.current = hit
	c.mu.Unlock()
	return hit, nil
}

// Resume signals the server to continue execution, optionally
// suppressing further hits at this breakpoint's location.
func (h *Hit) Resume(suppress bool) error {
	if !h.resolved.CompareAndSwap(false, true) {
		return nil
	}
	if err := h.client.out.Send(wire.KindResume, boolStr(suppress)); err != nil {
		return err
	}
	if h.client.events.OnResumed != nil {
		h.client.events.OnResumed()
	}
	return nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (h *Hit) fetch(kind string, fields ...string) ([]string, error) {
	if h.resolved.Load() {
		return nil, fmt.Errorf("client: hit already resumed, handles are dead")
	}
	return h.client.roundTrip(kind, fields...)
}
