package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lochel/genealogy/utils"
)

var exportCmd = &cobra.Command{
	Use:   "export <archive.zip>",
	Short: "Write a ZIP archive of all records and portraits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}
		n, err := utils.WriteArchive(f, cfg.RelativesDir)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(args[0])
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archived %d files to %s\n", n, args[0])
		return nil
	},
}
