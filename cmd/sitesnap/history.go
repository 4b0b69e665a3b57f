package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nao1215/sitesnap/internal/config"
	"github.com/nao1215/sitesnap/internal/database"
	"github.com/nao1215/sitesnap/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
// This command lists past builds recorded in the snapshot database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "List past snapshot builds for a host",
		Long: `History lists builds recorded in the snapshot database.

Each build saves its manifest: page count, assets by category, total
bytes, and failed URLs. History summarizes them per host so you can see
how a site's snapshot footprint changes over time.

Examples:
  # List every host with recorded builds
  sitesnap history --hosts

  # List builds for one host
  sitesnap history example.com

  # Show the full manifest report of build 5
  sitesnap history --id 5

  # Output build metadata as JSON
  sitesnap history --json example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Bool("hosts", false,
		"List all hosts with recorded builds")
	cmd.Flags().Int64P("id", "i", 0,
		"Show the stored manifest report for a build ID (use the list to find IDs)")
	cmd.Flags().BoolP("json", "j", false,
		"Output build metadata in JSON format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	listHosts, err := cmd.Flags().GetBool("hosts")
	if err != nil {
		return err
	}
	snapshotID, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	// Open read-only: history never creates the database, so a fresh
	// install gets a friendly message instead of an empty file.
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false

	db, err := database.Open(config.XDGDataDir(), opts)
	if err != nil {
		fmt.Println("No snapshot history found.")
		fmt.Println("\nUse 'sitesnap snapshot <url>' to build and record a snapshot.")
		return nil
	}
	defer db.Close()

	ctx := context.Background()

	if snapshotID > 0 {
		return showStoredManifest(ctx, db, snapshotID)
	}

	if listHosts {
		return listSnapshotHosts(ctx, db)
	}

	host := ""
	if len(args) > 0 {
		host = args[0]
	}
	return listSnapshotHistory(ctx, db, host, jsonOutput)
}

// listSnapshotHosts lists all hosts that have builds in the database.
func listSnapshotHosts(ctx context.Context, db *database.SnapshotDB) error {
	hosts, err := db.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}

	if len(hosts) == 0 {
		fmt.Println("No recorded builds found in the database.")
		fmt.Println("\nUse 'sitesnap snapshot <url>' to build and record a snapshot.")
		return nil
	}

	fmt.Printf("Hosts with recorded builds (%d):\n\n", len(hosts))
	for _, host := range hosts {
		fmt.Printf("  • %s\n", host)
	}
	fmt.Println("\nUse 'sitesnap history <host>' to see the builds for a host.")

	return nil
}

// listSnapshotHistory lists build records, optionally filtered by host.
func listSnapshotHistory(ctx context.Context, db *database.SnapshotDB, host string, jsonOutput bool) error {
	records, err := db.History(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	}

	if len(records) == 0 {
		if host != "" {
			fmt.Printf("No builds found for %s\n", host)
		} else {
			fmt.Println("No recorded builds found in the database.")
		}
		fmt.Println("\nUse 'sitesnap snapshot <url>' to build and record a snapshot.")
		return nil
	}

	if host != "" {
		fmt.Printf("Builds for %s (%d):\n\n", host, len(records))
	} else {
		fmt.Printf("Recorded builds (%d):\n\n", len(records))
	}

	fmt.Printf("  %-6s  %-20s  %-7s  %-8s  %-10s  %-7s  %s\n",
		"ID", "Date", "Pages", "Assets", "Bytes", "Failed", "Status")
	fmt.Println("  " + strings.Repeat("-", 76))

	for _, meta := range records {
		status := "ok"
		if meta.ErrorMessage != "" {
			status = "error: " + meta.ErrorMessage
		}
		fmt.Printf("  %-6d  %-20s  %-7d  %-8d  %-10d  %-7d  %s\n",
			meta.ID,
			meta.CreatedAt.Format("2006-01-02 15:04:05"),
			meta.PagesCrawled,
			meta.AssetCount,
			meta.AssetBytes,
			meta.FailedCount,
			status,
		)
	}

	fmt.Println("\nUse 'sitesnap history --id <id>' to see a build's full manifest report.")

	return nil
}

// showStoredManifest prints the full manifest report of a stored build.
func showStoredManifest(ctx context.Context, db *database.SnapshotDB, id int64) error {
	snap, err := db.GetSnapshotByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load build %d: %w", id, err)
	}
	if snap == nil {
		return fmt.Errorf("build %d not found", id)
	}

	writer := report.NewSimpleWriter(os.Stdout, report.WithVerbose(true))
	_, err = writer.Write(snap)
	return err
}
