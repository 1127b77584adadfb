// Copyright © 2025 The DraftPad authors

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/draftpad/draftpad/remote/client"
	"github.com/draftpad/draftpad/repl"
)

// clientCmd represents the client command
var clientCmd = &cobra.Command{
	Use:   "client [args...] serverPid outPipe inPipe",
	Short: "Run the inspector side of the debug channel",
	Long: `Run the out-of-process inspector. The host process spawns this
command, appending three arguments to whatever it was configured with:
its own pid and the names of the two pipes carrying the debug
protocol.

The inspector connects both pipe directions, completes the handshake,
and then waits for breakpoint hits. Each hit opens an interactive loop:

  vars           List the captured local variables
  get <path>     Fetch a variable or member (path is dotted indexes)
  items <path>   Expand a collection or object one level
  src            Show the paused source, marking the breakpoint line
  resume [-s]    Continue execution; -s suppresses this breakpoint
  quit           Exit the inspector

The inspector exits automatically when the host process does.`,
	Args: cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		pid, outName, inName, _, err := client.ParseArgs(args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		ins := repl.NewInspector()
		c, err := client.Dial(pid, outName, inName, ins.Events())
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot connect to host: %v\n", err)
			os.Exit(1)
		}
		defer c.Close() //nolint:errcheck // teardown

		errCh := make(chan error, 1)
		go func() { errCh <- c.Run() }()

		if err := ins.Run("draftpad> "); err != nil {
			fmt.Fprintf(os.Stderr, "inspector error: %v\n", err)
			os.Exit(1)
		}
		c.Close() //nolint:errcheck // teardown unblocks Run
		if err := <-errCh; err != nil {
			fmt.Fprintf(os.Stderr, "debug channel error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(clientCmd)
}
