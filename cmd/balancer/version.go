package main

import (
	"github.com/joaoariedi/money-balancer/server/version"
	"github.com/spf13/cobra"
)

func createVersionCmd() *cobra.Command {
	var full bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if full {
				version.PrintFull(cmd.OutOrStdout())
				return
			}
			version.Print(cmd.OutOrStdout())
		},
	}
	versionCmd.Flags().BoolVar(&full, "full", false, "print full version information")
	return versionCmd
}
