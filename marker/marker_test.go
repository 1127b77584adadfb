package marker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toggleSrc = `package main

import "fmt"

func main() {
	x := 1
	y := x + 2
	fmt.Println(x, y)
}
`

func TestToggle_AddAndRemoveRestoresSource(t *testing.T) {
	offset := strings.Index(toggleSrc, "y := x + 2")
	require.True(t, offset > 0)

	added, res := Toggle(toggleSrc, offset)
	require.Equal(t, Added, res)
	assert.Contains(t, added, "\t"+Token+"\n\ty := x + 2")

	// Toggling again at the statement removes the marker exactly.
	removed, res := Toggle(added, strings.Index(added, "y := x + 2"))
	require.Equal(t, Removed, res)
	assert.Equal(t, toggleSrc, removed)
}

func TestToggle_OnMarkerLineRemoves(t *testing.T) {
	offset := strings.Index(toggleSrc, "x := 1")
	added, res := Toggle(toggleSrc, offset)
	require.Equal(t, Added, res)

	markerOff := strings.Index(added, Token)
	removed, res := Toggle(added, markerOff)
	require.Equal(t, Removed, res)
	assert.Equal(t, toggleSrc, removed)
}

func TestToggle_InvalidPositions(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{"package clause", strings.Index(toggleSrc, "package main")},
		{"import", strings.Index(toggleSrc, `"fmt"`)},
		{"negative", -1},
		{"past end", len(toggleSrc) + 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, res := Toggle(toggleSrc, tt.offset)
			assert.Equal(t, InvalidPosition, res)
			assert.Equal(t, toggleSrc, out)
		})
	}
}

func TestToggle_IndentationOffset(t *testing.T) {
	// An offset inside the line's leading tab still targets the
	// statement on that line.
	lineStart := strings.Index(toggleSrc, "\tx := 1")
	_, res := Toggle(toggleSrc, lineStart)
	assert.Equal(t, Added, res)
}

func TestToggle_UnparsableSource(t *testing.T) {
	src := "package main\n\nfunc main() {\n\tx := \n}\n"
	out, res := Toggle(src, strings.Index(src, "x :="))
	assert.Equal(t, InvalidPosition, res)
	assert.Equal(t, src, out)
}

func TestOffsets(t *testing.T) {
	offset := strings.Index(toggleSrc, "x := 1")
	added, res := Toggle(toggleSrc, offset)
	require.Equal(t, Added, res)

	offs := Offsets(added)
	require.Len(t, offs, 1)
	assert.Equal(t, Token, added[offs[0]:offs[0]+len(Token)])

	assert.Empty(t, Offsets(toggleSrc))
}

func TestOffsets_IgnoresTrailingComment(t *testing.T) {
	src := "package main\n\nfunc main() {\n\tx := 1 " + Token + "\n}\n"
	// The marker must sit on its own line; a trailing comment is not a
	// breakpoint.
	assert.Empty(t, Offsets(src))
}
