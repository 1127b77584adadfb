// Copyright © 2025 The DraftPad authors

// Package marker manages breakpoint markers in source text.
//
// A marker is the reserved comment Token placed on its own line
// directly above a statement, indented to match it. The text buffer
// owns marker lifecycle entirely: no side table tracks breakpoints,
// they are re-discovered by scanning the text on each compile.
package marker

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// Token is the reserved breakpoint marker.
const Token = "//dbg:break"

// ToggleResult reports the outcome of a Toggle call.
type ToggleResult int

const (
	// Added means a marker was inserted above the statement.
	Added ToggleResult = iota
	// Removed means an existing marker was removed.
	Removed
	// InvalidPosition means the offset is not inside executable
	// statement text; the source is returned unchanged.
	InvalidPosition
)

// String returns a short name for the result.
func (r ToggleResult) String() string {
	switch r {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case InvalidPosition:
		return "invalid-position"
	default:
		return "unknown"
	}
}

// Toggle adds or removes a breakpoint marker for the line containing
// offset. Toggling on then off restores the source exactly.
func Toggle(src string, offset int) (string, ToggleResult) {
	if offset < 0 || offset > len(src) {
		return src, InvalidPosition
	}
	start, end := lineBounds(src, offset)
	line := src[start:end]

	// Toggling on the marker line itself removes it.
	if strings.TrimSpace(line) == Token {
		return removeLine(src, start, end), Removed
	}

	// A marker directly above the statement line is removed.
	if start > 0 {
		pStart, pEnd := lineBounds(src, start-1)
		if strings.TrimSpace(src[pStart:pEnd]) == Token {
			return removeLine(src, pStart, pEnd), Removed
		}
	}

	if !insideStatement(src, offset) {
		return src, InvalidPosition
	}

	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	return src[:start] + indent + Token + "\n" + src[start:], Added
}

// Offsets scans the source for marker lines and returns the offset of
// each marker token, in order of appearance.
func Offsets(src string) []int {
	var out []int
	start := 0
	for start <= len(src) {
		end := strings.IndexByte(src[start:], '\n')
		var lineEnd int
		if end < 0 {
			lineEnd = len(src)
		} else {
			lineEnd = start + end
		}
		line := src[start:lineEnd]
		if strings.TrimSpace(line) == Token {
			out = append(out, start+strings.Index(line, Token))
		}
		if end < 0 {
			break
		}
		start = lineEnd + 1
	}
	return out
}

// lineBounds returns the [start, end) byte range of the line holding
// offset, excluding the trailing newline.
func lineBounds(src string, offset int) (int, int) {
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

// removeLine deletes a line and its trailing line break.
func removeLine(src string, start, end int) string {
	if end < len(src) && src[end] == '\n' {
		end++
	}
	return src[:start] + src[end:]
}

// insideStatement reports whether offset falls within a statement in
// some function body. Source that does not parse, or an offset in
// non-executable context (imports, type declarations, blank space
// between functions), is not a valid breakpoint position.
func insideStatement(src string, offset int) bool {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "toggle.go", src, parser.ParseComments)
	if err != nil {
		return false
	}
	tokFile := fset.File(f.Pos())
	if tokFile == nil || offset >= tokFile.Size() {
		return false
	}
	pos := tokFile.Pos(offset)
	line := tokFile.Line(pos)
	found := false
	ast.Inspect(f, func(n ast.Node) bool {
		if found || n == nil {
			return !found
		}
		if stmt, ok := n.(ast.Stmt); ok {
			// Containment, or a statement starting on the same line;
			// the latter covers an offset in the line's indentation.
			if (stmt.Pos() <= pos && pos < stmt.End()) || tokFile.Line(stmt.Pos()) == line {
				found = true
				return false
			}
		}
		return true
	})
	return found
}
