package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/blockbox/internal/client"
	"github.com/TheMichaelB/blockbox/internal/config"
	"github.com/TheMichaelB/blockbox/internal/events"
	"github.com/TheMichaelB/blockbox/internal/models"
)

var (
	cfgFile    string
	identity   string
	jsonOutput bool
	verbose    bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

// annotationNoConfig marks commands that run without loading configuration.
const annotationNoConfig = "no-config"

var rootCmd = &cobra.Command{
	Use:   "blockbox",
	Short: "Encrypted file storage on content-addressed networks",
	Long: `BlockBox encrypts files with a key derived from your wallet address,
stores the ciphertext on a content-addressed store and keeps a per-wallet
registry of what was uploaded.

Configuration is read from blockbox.{json,yaml,toml} in the current
directory, ~/.config/blockbox or ~/.blockbox, and from BLOCKBOX_*
environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentPreRunE = setup

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file path")
	flags.StringVarP(&identity, "identity", "i", "", "Wallet address (or BLOCKBOX_IDENTITY)")
	flags.BoolVar(&jsonOutput, "json", false, "Output JSON")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[annotationNoConfig] == "true" {
		logger = events.NewTestLogger(events.WarnLevel, "text", os.Stderr)
		return nil
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Viper().BindPFlag("identity.address", cmd.Root().PersistentFlags().Lookup("identity")); err != nil {
		return err
	}

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}

	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)
	cmd.SetContext(events.WithLogger(cmd.Context(), logger))

	if used := loader.ConfigFileUsed(); used != "" {
		logger.WithField("file", used).Debug("Loaded config")
	}

	return cfg.EnsureDirectories()
}

// connect builds the client and connects the configured wallet.
func connect(ctx context.Context) error {
	if cfg.Identity.Address == "" {
		return fmt.Errorf("%w: set --identity or BLOCKBOX_IDENTITY", models.ErrNotConnected)
	}

	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}

	if err := c.Connect(ctx, cfg.Identity.Address); err != nil {
		_ = c.Close()
		return err
	}

	apiClient = c
	return nil
}

func closeClient() {
	if apiClient == nil {
		return
	}
	if err := apiClient.Close(); err != nil {
		logger.WithError(err).Warn("Close client")
	}
	apiClient = nil
}

func main() {
	ctx := events.WithRunID(context.Background(), uuid.NewString())
	err := rootCmd.ExecuteContext(ctx)
	closeClient()

	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"code":    models.Code(err),
				"error":   err.Error(),
			})
		} else {
			printError("%v", err)
		}
		os.Exit(1)
	}
}
