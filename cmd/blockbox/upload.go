package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/blockbox/internal/models"
	"github.com/TheMichaelB/blockbox/internal/services/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Encrypt and upload files",
	Long: `Upload encrypts each file with the wallet key, stores the ciphertext and
records it in the wallet's registry. A failing file does not stop the rest of
the batch. Interrupting finishes the file in flight and skips the remainder.`,
	Example: `  blockbox upload report.pdf photo.jpg --identity 0xABC`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	files := make([]models.File, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		files = append(files, models.File{
			Name: filepath.Base(path),
			Data: data,
		})
	}

	if err := connect(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			printWarning("\nUpload interrupted, finishing current file...")
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	if !jsonOutput {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchUpload(apiClient.Uploader.Events(), len(files))
		}()
	}

	summary, err := apiClient.Upload(ctx, files)
	wg.Wait()
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(summaryJSON(summary))
	} else {
		fmt.Printf("\nUploaded %d/%d files in %s\n",
			summary.Succeeded, len(files), summary.Duration.Round(time.Millisecond))
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, len(files))
	}
	return nil
}

func watchUpload(ch <-chan upload.Event, total int) {
	done := 0
	for event := range ch {
		switch event.Type {
		case upload.EventFileComplete:
			done++
			printSuccess("[%d/%d] %s  %s  %s", done, total, event.File,
				formatBytes(event.Record.Size), event.Record.CID)
		case upload.EventFileError:
			done++
			printError("[%d/%d] %s failed while %s: %v", done, total, event.File, event.Phase, event.Error)
		}
	}
}

func summaryJSON(s *models.BatchSummary) map[string]interface{} {
	results := make([]map[string]interface{}, 0, len(s.Results))
	for _, r := range s.Results {
		entry := map[string]interface{}{"name": r.Name, "success": r.OK()}
		if r.Record != nil {
			entry["record"] = r.Record
		}
		if r.Err != nil {
			entry["phase"] = r.Phase
			entry["code"] = models.Code(r.Err)
			entry["error"] = r.Err.Error()
		}
		results = append(results, entry)
	}

	return map[string]interface{}{
		"success":   s.Failed == 0,
		"succeeded": s.Succeeded,
		"failed":    s.Failed,
		"duration":  s.Duration.String(),
		"results":   results,
	}
}
