// Package main provides the entry point for the topicgrab CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for topicgrab.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topicgrab",
		Short: "Forum topic image crawler",
		Long: `topicgrab walks a chain of forum topic pages and downloads the images
each page embeds. Starting from one topic URL it follows "next topic"
or "previous topic" links until the chain ends, saving images under a
configurable directory layout.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
