package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/blockbox/internal/crypto"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Show the wallet key fingerprint",
	Long: `Key prints a short fingerprint of the encryption key derived from the
wallet address. Equal fingerprints mean files can be decrypted across
machines. The key itself is never printed.`,
	Args: cobra.NoArgs,
	RunE: runKey,
}

func init() {
	rootCmd.AddCommand(keyCmd)
}

func runKey(cmd *cobra.Command, args []string) error {
	if err := connect(cmd.Context()); err != nil {
		return err
	}

	fp, err := apiClient.KeyFingerprint()
	if err != nil {
		return err
	}

	info := crypto.Info()
	if jsonOutput {
		printJSON(map[string]interface{}{
			"identity":    apiClient.Identity(),
			"fingerprint": fp,
			"encryption":  info,
		})
		return nil
	}

	printInfo("Identity:    %s", apiClient.Identity())
	printInfo("Fingerprint: %s", color.YellowString(fp))
	printInfo("Cipher:      %s", info.Algorithm)
	return nil
}
