// Copyright © 2025 The DraftPad authors

package repl

import (
	"strings"
)

var commands = []string{"vars", "get", "items", "src", "resume", "quit", "exit"}

// commandCompleter implements readline.AutoCompleter for the
// inspector's fixed command vocabulary.
type commandCompleter struct{}

func (commandCompleter) Do(line []rune, pos int) ([][]rune, int) {
	// Only the first word is a command.
	if strings.ContainsAny(string(line[:pos]), " \t") {
		return nil, 0
	}
	prefix := string(line[:pos])
	var result [][]rune
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, prefix) {
			result = append(result, []rune(cmd[len(prefix):]))
		}
	}
	return result, len(prefix)
}
