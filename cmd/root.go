// Copyright © 2025 The DraftPad authors

package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "draftpad",
	Short: "Breakpoint instrumentation and interprocess debugging for Go source",
	Long: `DraftPad instruments Go source with breakpoint markers and mediates
between the instrumented host process and an out-of-process inspector.

Getting started:
  draftpad instrument file.go      Rewrite breakpoint markers into hook calls
  draftpad client <args> pid o i   Run the inspector side of the debug channel
  draftpad version                 Print the version

Breakpoints are comment markers placed on their own line above a
statement:

  //dbg:break
  total := price * qty

Instrumentation rewrites each marker into a call to a generated hook
so the host pauses there at run time. The inspector process receives
the paused source and a snapshot of the local variables over a pair of
pipes and can expand values lazily before resuming execution.

Configuration is read from $HOME/.draftpad.yaml and DRAFTPAD_*
environment variables: the log level.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.draftpad.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		panic(err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".draftpad" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".draftpad")
	}

	viper.SetEnvPrefix("DRAFTPAD")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}

	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
}
