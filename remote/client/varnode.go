// Copyright © 2025 The DraftPad authors

package client

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/muesli/reflow/wordwrap"

	"github.com/draftpad/draftpad/remote/wire"
	"github.com/draftpad/draftpad/snapshot"
)

// VarNode is one entry in the lazily materialized variable tree. A
// node for a Class member starts unfetched: the member's identity is
// known from the snapshot metadata but its value is only retrieved
// (via GetProperty) when Fetch or Children is called.
type VarNode struct {
	Name  string
	Value snapshot.Value

	hit *Hit

	// member is set for unfetched Class member nodes.
	member      *snapshot.Member
	ownerHandle snapshot.Handle

	mu       sync.Mutex
	fetched  bool
	children []*VarNode
}

// Fetched reports whether the node's value has been materialized.
// Top-level variables and enumeration items arrive materialized;
// Class members do not.
func (n *VarNode) Fetched() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.member == nil || n.fetched
}

// Fetch materializes a member node's value with one GetProperty round
// trip. Fetching an already materialized node is a no-op.
func (n *VarNode) Fetch() error {
	n.mu.Lock()
	member := n.member
	done := n.fetched
	n.mu.Unlock()
	if member == nil || done {
		return nil
	}
	resp, err := n.hit.fetch(wire.KindGetProperty,
		strconv.Itoa(int(n.ownerHandle)), member.Name, boolStr(member.IsProperty))
	if err != nil {
		return err
	}
	if len(resp) != 1 {
		return fmt.Errorf("client: GetProperty returned %d values", len(resp))
	}
	val, err := snapshot.Decode(resp[0])
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.Value = val
	n.fetched = true
	n.mu.Unlock()
	return nil
}

// HasChildren reports whether the node can be expanded.
func (n *VarNode) HasChildren() bool {
	if n.member != nil && !n.Fetched() {
		return true // unknown until fetched; allow expansion
	}
	switch n.Value.Kind {
	case snapshot.KindEnumerable:
		return n.Value.Handle != 0 && n.Value.Count != 0
	case snapshot.KindClass, snapshot.KindInterface:
		return len(n.Value.Members) > 0
	default:
		return false
	}
}

// Children materializes and returns the node's children. Enumerables
// expand with one GetItems round trip; Class nodes expand into member
// nodes that stay unfetched until accessed.
func (n *VarNode) Children() ([]*VarNode, error) {
	if err := n.Fetch(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	if n.children != nil {
		out := n.children
		n.mu.Unlock()
		return out, nil
	}
	n.mu.Unlock()

	var children []*VarNode
	switch n.Value.Kind {
	case snapshot.KindEnumerable:
		resp, err := n.hit.fetch(wire.KindGetItems, strconv.Itoa(int(n.Value.Handle)))
		if err != nil {
			return nil, err
		}
		items := make([]snapshot.Value, len(resp))
		for i, enc := range resp {
			v, err := snapshot.Decode(enc)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		// Map items arrive as alternating key/value entries.
		if n.Value.IsMap && len(items)%2 == 0 {
			for i := 0; i+1 < len(items); i += 2 {
				children = append(children, &VarNode{
					Name:  "[" + items[i].Text + "]",
					Value: items[i+1],
					hit:   n.hit,
				})
			}
		} else {
			for i, v := range items {
				children = append(children, &VarNode{
					Name:  "[" + strconv.Itoa(i) + "]",
					Value: v,
					hit:   n.hit,
				})
			}
		}

	case snapshot.KindClass, snapshot.KindInterface:
		for i := range n.Value.Members {
			m := n.Value.Members[i]
			children = append(children, &VarNode{
				Name:        m.Name,
				hit:         n.hit,
				member:      &m,
				ownerHandle: n.Value.Handle,
			})
		}

	default:
		return nil, nil
	}

	n.mu.Lock()
	n.children = children
	n.mu.Unlock()
	return children, nil
}

// Display renders "name = value" wrapped to width for the inspector
// UI. Unfetched members render as a placeholder.
func (n *VarNode) Display(width int) string {
	var text string
	if !n.Fetched() {
		text = "(not fetched)"
	} else {
		text = n.Value.Text
		if n.Value.Kind == snapshot.KindString {
			text = strconv.Quote(text)
		}
	}
	s := n.Name + " = " + text
	if width <= 0 {
		return s
	}
	return wordwrap.String(s, width)
}
