// Package main provides the entry point for the sitesnap CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for sitesnap.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitesnap",
		Short: "Turn a live web page into a self-contained offline bundle",
		Long: `sitesnap fetches a web page and rewrites it into an offline bundle:
one HTML file, one consolidated stylesheet, one consolidated script,
and a localized media tree. Every remote reference is replaced with a
relative path inside the bundle.

Use 'snapshot' for a single page, or 'crawl' to also walk same-origin
pages and prefetch their assets into the shared media tree.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewSnapshotCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
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
