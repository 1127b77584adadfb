// Copyright © 2025 The DraftPad authors

// Package repl implements the interactive inspector loop used by the
// debug client binary. It presents breakpoint hits received from the
// host process and lets the operator inspect variables and resume.
package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ergochat/readline"

	"github.com/draftpad/draftpad/remote/client"
)

const displayWidth = 100

type config struct {
	stdin  io.ReadCloser
	stderr io.WriteCloser
}

func newConfig(opts ...Option) *config {
	config := &config{stderr: os.Stderr}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

type Option func(*config)

// WithStdin allows overriding the input to the inspector.
func WithStdin(stdin io.ReadCloser) Option {
	return func(c *config) {
		c.stdin = stdin
	}
}

// WithStderr allows overriding the output of the inspector.
func WithStderr(stderr io.WriteCloser) Option {
	return func(c *config) {
		c.stderr = stderr
	}
}

// Inspector owns the current breakpoint hit and drives the readline
// command loop. Its Events hook it into a client's receive loop.
type Inspector struct {
	mu      sync.Mutex
	current *client.Hit
	out     io.Writer
	done    chan struct{}
	doneOne sync.Once
}

// NewInspector returns an inspector with no hit yet.
func NewInspector() *Inspector {
	return &Inspector{out: os.Stderr, done: make(chan struct{})}
}

// Events returns the client event hooks feeding this inspector.
func (ins *Inspector) Events() client.Events {
	return client.Events{
		OnHit: func(h *client.Hit) {
			ins.mu.Lock()
			ins.current = h
			ins.mu.Unlock()
			fmt.Fprintf(ins.out, "\nbreakpoint hit at line %d (type 'src' to view, 'resume' to continue)\n", h.View.Line()) //nolint:errcheck
		},
		OnResumed: func() {
			ins.mu.Lock()
			ins.current = nil
			ins.mu.Unlock()
		},
		OnParentExit: func() {
			fmt.Fprintln(ins.out, "\nhost process exited") //nolint:errcheck
			ins.doneOne.Do(func() { close(ins.done) })
		},
	}
}

// Run drives the command loop until EOF or the host exits.
func (ins *Inspector) Run(prompt string, opts ...Option) error {
	cfg := newConfig(opts...)
	ins.mu.Lock()
	ins.out = cfg.stderr
	ins.mu.Unlock()

	rlCfg := &readline.Config{
		Stdout:            cfg.stderr,
		Stderr:            cfg.stderr,
		Prompt:            prompt,
		HistoryFile:       historyPath(),
		HistorySearchFold: true,
		AutoComplete:      commandCompleter{},
	}
	if cfg.stdin != nil {
		rlCfg.Stdin = cfg.stdin
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return err
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	for {
		select {
		case <-ins.done:
			return nil
		default:
		}
		line, err := rl.ReadLine()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		if err := ins.dispatch(line); err != nil {
			fmt.Fprintln(cfg.stderr, "error:", err) //nolint:errcheck // best-effort error display
		}
	}
}

func (ins *Inspector) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	hit := ins.hit()
	if hit == nil {
		return fmt.Errorf("no breakpoint is active")
	}

	switch cmd {
	case "src":
		fmt.Fprint(ins.out, hit.View.Render(displayWidth)) //nolint:errcheck
		return nil
	case "vars":
		for i, v := range hit.Vars {
			fmt.Fprintf(ins.out, "%d: %s\n", i, v.Display(displayWidth)) //nolint:errcheck
		}
		return nil
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get <path> (e.g. get 0.2)")
		}
		node, err := resolve(hit, args[0])
		if err != nil {
			return err
		}
		if err := node.Fetch(); err != nil {
			return err
		}
		fmt.Fprintln(ins.out, node.Display(displayWidth)) //nolint:errcheck
		return nil
	case "items":
		if len(args) != 1 {
			return fmt.Errorf("usage: items <path> (e.g. items 0)")
		}
		node, err := resolve(hit, args[0])
		if err != nil {
			return err
		}
		children, err := node.Children()
		if err != nil {
			return err
		}
		for i, ch := range children {
			fmt.Fprintf(ins.out, "%d: %s\n", i, ch.Display(displayWidth)) //nolint:errcheck
		}
		return nil
	case "resume":
		suppress := len(args) == 1 && args[0] == "-s"
		return hit.Resume(suppress)
	default:
		return fmt.Errorf("unknown command %q (vars, get, items, src, resume [-s], quit)", cmd)
	}
}

func (ins *Inspector) hit() *client.Hit {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	return ins.current
}

// resolve walks a dotted index path ("0.2.1") down the variable tree,
// expanding children along the way.
func resolve(hit *client.Hit, path string) (*client.VarNode, error) {
	parts := strings.Split(path, ".")
	idx, err := strconv.Atoi(parts[0])
	if err != nil || idx < 0 || idx >= len(hit.Vars) {
		return nil, fmt.Errorf("no variable at index %q", parts[0])
	}
	node := hit.Vars[idx]
	for _, part := range parts[1:] {
		children, err := node.Children()
		if err != nil {
			return nil, err
		}
		i, err := strconv.Atoi(part)
		if err != nil || i < 0 || i >= len(children) {
			return nil, fmt.Errorf("no child at index %q", part)
		}
		node = children[i]
	}
	return node, nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".draftpad_history")
}
