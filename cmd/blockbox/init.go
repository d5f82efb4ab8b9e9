package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/blockbox/internal/config"
)

var initCmd = &cobra.Command{
	Use:         "init [path]",
	Short:       "Write an example configuration file",
	Example:     `  blockbox init blockbox.yaml`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{annotationNoConfig: "true"},
	RunE:        runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false,
		"Overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "blockbox.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.SaveExample(path); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "path": path})
		return nil
	}
	printSuccess("Wrote %s", path)
	return nil
}
