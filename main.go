// Copyright © 2025 The DraftPad authors

package main

import "github.com/draftpad/draftpad/cmd"

func main() {
	cmd.Execute()
}
