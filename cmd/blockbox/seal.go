package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/blockbox/internal/creds"
	"github.com/TheMichaelB/blockbox/internal/crypto"
	"github.com/TheMichaelB/blockbox/internal/models"
)

// sealedExt is appended to sealed files.
const sealedExt = ".sealed"

var sealCmd = &cobra.Command{
	Use:   "seal <file>",
	Short: "Encrypt a local file under a password",
	Long: `Seal encrypts a file with a key stretched from a password and writes
base64 text next to it. Sealed files are independent of any wallet.

The password comes from --password, the credentials file named by
content.token_file (matched by identity), or an interactive prompt.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeal,
}

var unsealCmd = &cobra.Command{
	Use:   "unseal <file>",
	Short: "Decrypt a file produced by seal",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnseal,
}

var (
	sealPassword string
	sealOutput   string
)

func init() {
	rootCmd.AddCommand(sealCmd)
	rootCmd.AddCommand(unsealCmd)

	for _, c := range []*cobra.Command{sealCmd, unsealCmd} {
		c.Flags().StringVarP(&sealPassword, "password", "p", "",
			"Password (will prompt if not provided)")
		c.Flags().StringVarP(&sealOutput, "out", "o", "",
			"Output path")
	}
}

func runSeal(cmd *cobra.Command, args []string) error {
	in := args[0]
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}

	password, err := resolvePassword(true)
	if err != nil {
		return err
	}

	sealed, err := crypto.SealWithPassword(data, password)
	if err != nil {
		return err
	}

	out := sealOutput
	if out == "" {
		out = in + sealedExt
	}
	if err := os.WriteFile(out, []byte(crypto.Armor(sealed)+"\n"), 0600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	return reportSealed("sealed", in, out)
}

func runUnseal(cmd *cobra.Command, args []string) error {
	in := args[0]
	text, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}

	sealed, err := crypto.Unarmor(strings.TrimSpace(string(text)))
	if err != nil {
		return &models.DecryptError{Name: in, Reason: "not a sealed file", Err: err}
	}

	password, err := resolvePassword(false)
	if err != nil {
		return err
	}

	data, err := crypto.OpenWithPassword(sealed, password)
	if err != nil {
		return err
	}

	out := sealOutput
	if out == "" {
		out = strings.TrimSuffix(in, sealedExt)
		if out == in {
			out = in + ".out"
		}
	}
	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	return reportSealed("unsealed", in, out)
}

func reportSealed(action, in, out string) error {
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"action":  action,
			"input":   in,
			"output":  out,
		})
		return nil
	}
	printSuccess("%s %s -> %s", strings.ToUpper(action[:1])+action[1:], in, out)
	return nil
}

// resolvePassword returns the password from the flag, the credentials file or
// a prompt, in that order.
func resolvePassword(confirm bool) (string, error) {
	if sealPassword != "" {
		return sealPassword, nil
	}

	if cfg != nil && cfg.Content.TokenFile != "" {
		c, err := creds.LoadFromFile(cfg.Content.TokenFile)
		if err != nil {
			logger.WithError(err).Debug("Credentials file unavailable")
		} else if id, err := models.NormalizeIdentity(cfg.Identity.Address); err == nil {
			if pw := c.Password(id); pw != "" {
				return pw, nil
			}
		}
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if confirm {
		again, err := promptPassword("Confirm password: ")
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if again != password {
			return "", fmt.Errorf("passwords do not match")
		}
	}
	return password, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	return string(password), nil
}
