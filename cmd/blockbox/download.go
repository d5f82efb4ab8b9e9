package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/blockbox/internal/storage"
)

var downloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download and decrypt a file",
	Long: `Download fetches a file's ciphertext, decrypts it with the wallet key,
verifies its size and checksum and writes it under its original name.`,
	Example: `  blockbox download 1714555800000-6f1c... --dest ./restored
  blockbox download 1714555800000-6f1c... --conflict rename`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

var (
	downloadDest     string
	downloadConflict string
)

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&downloadDest, "dest", "d", "",
		"Destination directory (defaults to storage.export_dir)")
	downloadCmd.Flags().StringVar(&downloadConflict, "conflict", "overwrite",
		"Existing file handling: overwrite, rename, skip, error")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	strategy, err := storage.ParseConflictStrategy(downloadConflict)
	if err != nil {
		return err
	}

	dest := downloadDest
	if dest == "" {
		dest = cfg.Storage.ExportDir
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	sink, err := storage.NewLocalStore(dest, logger)
	if err != nil {
		return err
	}
	sink.SetConflictStrategy(strategy)
	sink.SetMaxFileSize(cfg.Upload.MaxFileSize)

	if err := connect(ctx); err != nil {
		return err
	}

	path, err := apiClient.ExportTo(ctx, id, sink)
	if err != nil {
		return err
	}

	full := ""
	if path != "" {
		full = filepath.Join(dest, filepath.FromSlash(path))
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"id":      id,
			"path":    full,
			"skipped": path == "",
		})
		return nil
	}

	if path == "" {
		printWarning("File exists, skipped")
		return nil
	}
	printSuccess("Saved %s", full)
	return nil
}
