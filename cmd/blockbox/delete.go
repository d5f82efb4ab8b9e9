package main

import (
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove a file from the registry",
	Long: `Delete removes a record from the wallet's registry. With --unpin the
stored ciphertext is released as well; content already gone from the store is
not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var deleteUnpin bool

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVar(&deleteUnpin, "unpin", false,
		"Also release the stored content")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	if err := connect(ctx); err != nil {
		return err
	}

	if err := apiClient.Delete(ctx, id, deleteUnpin); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":  true,
			"id":       id,
			"unpinned": deleteUnpin,
		})
		return nil
	}

	printSuccess("Deleted %s", id)
	return nil
}
