package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/blockbox/internal/content"
)

var infoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show a file record and the metadata stored with its blob",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := connect(ctx); err != nil {
		return err
	}

	record, err := apiClient.Registry.Get(ctx, apiClient.Identity(), args[0])
	if err != nil {
		return err
	}
	record.Payload = nil

	meta, err := apiClient.StoredMetadata(ctx, record.ID)
	stored := err == nil
	if err != nil && !errors.Is(err, content.ErrNoMetadata) {
		return err
	}

	if jsonOutput {
		out := map[string]interface{}{"record": record}
		if stored {
			out["stored"] = meta
		}
		printJSON(out)
		return nil
	}

	fmt.Printf("ID:        %s\n", record.ID)
	fmt.Printf("Name:      %s\n", record.Name)
	fmt.Printf("Size:      %s\n", formatBytes(record.Size))
	fmt.Printf("Type:      %s\n", record.MimeType)
	fmt.Printf("CID:       %s\n", color.CyanString(record.CID))
	fmt.Printf("Uploaded:  %s\n", record.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Checksum:  %s\n", record.Checksum)

	if !stored {
		printWarning("The content store keeps no metadata for this blob")
		return nil
	}
	fmt.Printf("Stored as: %s (%s, %s of ciphertext)\n", meta.Name, meta.MimeType, formatBytes(meta.Size))
	return nil
}
