package main

import (
	"github.com/spf13/cobra"
)

var exitCode int

// Build the cobra command that handles our command line tool.
func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kinarch COMMAND [args]",
		Short: "Archive stream records into S3 under a partitioned key layout",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	rootCmd.AddCommand(
		pollCmd(),
		processFileCmd(),
	)

	return rootCmd
}

func Execute() int {
	rootCmd := rootCommand()

	if err := rootCmd.Execute(); err != nil {
		exitCode = -1
	}
	return exitCode
}
