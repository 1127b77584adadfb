// Copyright © 2025 The DraftPad authors

// Package instrument rewrites Go source so that statements carrying a
// breakpoint marker call into a generated debug shim before they run.
//
// The rewrite is purely textual: all breakpoints in a file are
// resolved against one parse of the original source and the edits are
// applied back-to-front, so earlier offsets stay valid. The shim is a
// separate generated unit in the same package exposing two mutable
// hook slots that the host binds after the compiled unit loads.
package instrument

import (
	"fmt"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/draftpad/draftpad/debugger"
	"github.com/draftpad/draftpad/marker"
)

// Local is a variable visible at a breakpoint site.
type Local struct {
	Name string
	// Type is the declared type text when the declaration names one,
	// or empty for inferred declarations (:=, range).
	Type string
}

// Site is a resolved breakpoint: the statement span being replaced,
// whether the enclosing function is asynchronous, and the locals
// captured by the generated hook call.
type Site struct {
	// MarkerOffset is the byte offset of the marker token.
	MarkerOffset int
	// StmtOffset is the byte offset of the instrumented statement;
	// it identifies the breakpoint on the wire and in the
	// suppression map.
	StmtOffset int
	// Async is set when the enclosing function declares a named
	// context.Context parameter; the generated call then targets the
	// asynchronous hook and threads that context.
	Async bool
	// CtxName is the context parameter's name when Async is set.
	CtxName string
	Locals  []Local

	stmtEnd int // byte offset one past the statement's last token
}

// Result is the output of instrumenting one file.
type Result struct {
	// Source is the rewritten file.
	Source string
	// Shim is the generated shim unit, or empty when no marker
	// resolved to a site.
	Shim string
	// Suffix is the per-compilation shim suffix.
	Suffix string
	Sites  []Site
	// Skipped lists marker offsets that were not instrumented
	// (marker outside any statement or outside any function).
	Skipped []int
}

// Instrumentor rewrites marked source files.
type Instrumentor struct {
	suffix string
	log    logrus.FieldLogger
}

// Option configures an Instrumentor.
type Option func(*Instrumentor)

// WithSuffix pins the shim suffix. Without it every Instrument call
// draws a fresh suffix so recompiles never collide on shim symbols.
func WithSuffix(s string) Option {
	return func(in *Instrumentor) {
		in.suffix = s
	}
}

// WithLogger sets the logger used for skipped-marker reporting.
func WithLogger(log logrus.FieldLogger) Option {
	return func(in *Instrumentor) {
		in.log = log
	}
}

// New returns an Instrumentor.
func New(opts ...Option) *Instrumentor {
	in := &Instrumentor{
		log: logrus.StandardLogger().WithField("component", "instrument"),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// edit is one pending text replacement.
type edit struct {
	start, end int
	text       string
}

// Instrument locates every breakpoint marker in src and rewrites the
// marked statements to call the shim hooks. Markers that cannot be
// resolved to an instrumentable site are skipped silently; only an
// unparsable file is an error.
func (in *Instrumentor) Instrument(filename, src string) (*Result, error) {
	suffix := in.suffix
	if suffix == "" {
		suffix = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	res := &Result{Source: src, Suffix: suffix}

	offsets := marker.Offsets(src)
	if len(offsets) == 0 {
		return res, nil
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if f == nil {
		return nil, fmt.Errorf("instrument: parse %s: %w", filename, err)
	}
	if err != nil {
		// Partial parse: instrument what resolved, skip the rest.
		in.log.WithField("file", filename).WithError(err).Debug("instrumenting partially parsed source")
	}
	tokFile := fset.File(f.Pos())

	var edits []edit
	for _, off := range offsets {
		site, ok := resolveSite(tokFile, f, src, off)
		if !ok {
			res.Skipped = append(res.Skipped, off)
			in.log.WithFields(logrus.Fields{"file": filename, "offset": off}).Debug("marker skipped")
			continue
		}
		e, ok := in.buildEdit(src, site, suffix)
		if !ok {
			res.Skipped = append(res.Skipped, off)
			continue
		}
		res.Sites = append(res.Sites, *site)
		edits = append(edits, e)
	}

	if len(res.Sites) == 0 {
		return res, nil
	}

	// Apply back-to-front so earlier offsets remain valid.
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	out := src
	for _, e := range edits {
		out = out[:e.start] + e.text + out[e.end:]
	}
	res.Source = out
	res.Shim = ShimSource(f.Name.Name, suffix)
	return res, nil
}

// buildEdit produces the replacement text for one site: the hook call
// followed by the original statement, substituted for the statement's
// full span including the marker line.
func (in *Instrumentor) buildEdit(src string, site *Site, suffix string) (edit, bool) {
	markerLineStart, markerLineEnd := lineSpan(src, site.MarkerOffset)
	stmtLineStart, _ := lineSpan(src, site.StmtOffset)

	spanStart := markerLineStart
	if stmtLineStart < spanStart {
		spanStart = stmtLineStart
	}
	spanEnd := site.stmtEnd
	if spanEnd <= spanStart || spanEnd > len(src) {
		return edit{}, false
	}

	// The original statement text, with the marker line cut out.
	cutEnd := markerLineEnd
	if cutEnd < len(src) && src[cutEnd] == '\n' {
		cutEnd++
	}
	original := src[spanStart:markerLineStart] + src[cutEnd:spanEnd]

	indent := lineIndent(src, site.StmtOffset)

	names := make([]string, len(site.Locals))
	metas := make([]string, len(site.Locals))
	values := make([]string, len(site.Locals))
	for i, l := range site.Locals {
		names[i] = strconv.Quote(l.Name)
		metas[i] = strconv.Quote(debugger.EncodeMeta(debugger.VarMeta{Name: l.Name, Type: l.Type}))
		values[i] = l.Name
	}

	var call string
	if site.Async {
		call = fmt.Sprintf("_ = %s(%s, %d, []string{%s}, []string{%s}, []any{%s})",
			AsyncSlotName(suffix), site.CtxName, site.StmtOffset,
			strings.Join(names, ", "), strings.Join(metas, ", "), strings.Join(values, ", "))
	} else {
		call = fmt.Sprintf("%s(%d, []string{%s}, []string{%s}, []any{%s})",
			SyncSlotName(suffix), site.StmtOffset,
			strings.Join(names, ", "), strings.Join(metas, ", "), strings.Join(values, ", "))
	}

	return edit{
		start: spanStart,
		end:   spanEnd,
		text:  indent + call + "\n" + original,
	}, true
}

// lineSpan returns the [start, end) range of the line containing
// offset, excluding the trailing newline.
func lineSpan(src string, offset int) (int, int) {
	if offset > len(src) {
		offset = len(src)
	}
	start := strings.LastIndexByte(src[:offset], '\n') + 1
	end := strings.IndexByte(src[offset:], '\n')
	if end < 0 {
		return start, len(src)
	}
	return start, offset + end
}

// lineIndent returns the leading whitespace of the line containing
// offset.
func lineIndent(src string, offset int) string {
	start, end := lineSpan(src, offset)
	line := src[start:end]
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
