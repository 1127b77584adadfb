// Copyright © 2025 The DraftPad authors

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/draftpad/draftpad/instrument"
)

var (
	instrumentShimOut string
	instrumentSuffix  string
)

// instrumentCmd represents the instrument command
var instrumentCmd = &cobra.Command{
	Use:   "instrument [flags] file.go",
	Short: "Rewrite breakpoint markers into debugger hook calls",
	Long: `Instrument a Go source file: every breakpoint marker comment is
rewritten into a call to a generated debugger hook, preserving the
marked statement. The instrumented source is written to stdout and the
generated shim unit (hook slots plus their binder) to --shim.

Markers that do not sit above a statement are skipped silently, the
same way the editor skips them at compile time.

Examples:
  draftpad instrument main.go                       Print instrumented source
  draftpad instrument --shim shim.go main.go        Also write the shim unit
  draftpad instrument --suffix dev main.go          Pin the hook name suffix`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		src, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		var opts []instrument.Option
		if instrumentSuffix != "" {
			opts = append(opts, instrument.WithSuffix(instrumentSuffix))
		}
		ins := instrument.New(opts...)
		res, err := ins.Instrument(args[0], string(src))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		if instrumentShimOut != "" {
			if err := os.WriteFile(instrumentShimOut, []byte(res.Shim), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
				os.Exit(1)
			}
		}
		fmt.Print(res.Source)
		if len(res.Skipped) > 0 {
			offs := make([]string, len(res.Skipped))
			for i, o := range res.Skipped {
				offs[i] = fmt.Sprint(o)
			}
			fmt.Fprintf(os.Stderr, "skipped markers at offsets %s\n", strings.Join(offs, ", "))
		}
	},
}

func init() {
	rootCmd.AddCommand(instrumentCmd)

	instrumentCmd.Flags().StringVar(&instrumentShimOut, "shim", "",
		"Write the generated shim unit to this path")
	instrumentCmd.Flags().StringVar(&instrumentSuffix, "suffix", "",
		"Hook name suffix (default: random per run)")
}
