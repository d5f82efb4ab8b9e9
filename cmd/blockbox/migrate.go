package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/blockbox/internal/client"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/state"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy registries between persistence backends",
	Long: `Migrate copies every wallet's registry from one backend to another.
Both backends take their remaining settings (directory, table, bucket,
region) from the registry section of the configuration.`,
	Example: `  blockbox migrate --from json --to sqlite
  blockbox migrate --from bolt --to dynamodb`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var (
	migrateFrom string
	migrateTo   string
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVar(&migrateFrom, "from", "",
		"Source backend: json, sqlite, bolt, dynamodb, s3 (required)")
	migrateCmd.Flags().StringVar(&migrateTo, "to", "",
		"Target backend (required)")

	_ = migrateCmd.MarkFlagRequired("from")
	_ = migrateCmd.MarkFlagRequired("to")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := events.FromContext(ctx)

	if migrateFrom == migrateTo {
		return fmt.Errorf("source and target backend are both %s", migrateFrom)
	}

	srcCfg := cfg.Registry
	srcCfg.Backend = migrateFrom
	src, err := client.OpenStateStore(ctx, &srcCfg, log)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dstCfg := cfg.Registry
	dstCfg.Backend = migrateTo
	dst, err := client.OpenStateStore(ctx, &dstCfg, log)
	if err != nil {
		return fmt.Errorf("open target: %w", err)
	}
	defer dst.Close()

	copied, err := state.Migrate(src, dst)
	if err != nil {
		if copied > 0 {
			printWarning("Copied %d registries before the failure; keep %s as the active backend", copied, migrateFrom)
		}
		return err
	}
	log.WithFields(map[string]interface{}{
		"from":       migrateFrom,
		"to":         migrateTo,
		"identities": copied,
	}).Info("Registry migrated")

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":    true,
			"from":       migrateFrom,
			"to":         migrateTo,
			"identities": copied,
		})
		return nil
	}

	printSuccess("Migrated %d registries from %s to %s", copied, migrateFrom, migrateTo)
	return nil
}
