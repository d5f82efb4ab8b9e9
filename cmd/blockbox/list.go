package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded files",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show storage statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := connect(ctx); err != nil {
		return err
	}

	records, err := apiClient.List(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		// payloads can be large and are not useful on a terminal
		for i := range records {
			records[i].Payload = nil
		}
		printJSON(map[string]interface{}{
			"identity": apiClient.Identity(),
			"files":    records,
		})
		return nil
	}

	if len(records) == 0 {
		printInfo("No files uploaded for %s", apiClient.Identity())
		return nil
	}

	fmt.Printf("%-40s  %-28s  %10s  %-20s  %s\n", "ID", "NAME", "SIZE", "UPLOADED", "CID")
	for _, r := range records {
		fmt.Printf("%-40s  %-28s  %10s  %-20s  %s\n",
			r.ID,
			truncate(r.Name, 28),
			formatBytes(r.Size),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			color.HiBlackString(r.CID),
		)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := connect(ctx); err != nil {
		return err
	}

	stats, err := apiClient.Stats(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"identity": apiClient.Identity(),
			"stats":    stats,
		})
		return nil
	}

	last := "none"
	if stats.LastActivity != nil {
		last = stats.LastActivity.Local().Format("2006-01-02 15:04:05")
	}

	fmt.Printf("Identity:        %s\n", color.CyanString(apiClient.Identity()))
	fmt.Printf("Files:           %d\n", stats.TotalFiles)
	fmt.Printf("Total size:      %s\n", formatBytes(stats.TotalSize))
	fmt.Printf("Encrypted files: %d\n", stats.EncryptedFiles)
	fmt.Printf("Last activity:   %s\n", last)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
