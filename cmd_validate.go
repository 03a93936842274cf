package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lochel/genealogy/repository"
	"github.com/lochel/genealogy/services"
)

var (
	validateFormat string
	validateStrict bool
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	summaryStyle = lipgloss.NewStyle().Bold(true)
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the relatives directory for broken cross-references",
	Long: `Scan every record and report:
  - files whose name does not match the record id
  - files that cannot be read
  - father, mother and spouse references to unknown relatives
  - empty spouse entries
  - spouse references that are not reciprocated

Nothing is modified.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := repository.NewRelativeStore(cfg.RelativesDir)
		if err != nil {
			return err
		}
		report, err := services.Validate(store)
		if err != nil {
			return err
		}
		if err := writeReport(cmd.OutOrStdout(), report, validateFormat); err != nil {
			return err
		}
		if validateStrict && !report.OK() {
			os.Exit(2)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "text", "output format: text, json or yaml")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "exit with status 2 when warnings were found")
}

func writeReport(w io.Writer, report *services.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(report)
	case "text":
		for _, warning := range report.Warnings {
			fmt.Fprintln(w, warnStyle.Render("! "+warning.String()))
		}
		if report.OK() {
			fmt.Fprintln(w, okStyle.Render(fmt.Sprintf("✓ %d relatives, no problems found", report.Relatives)))
			return nil
		}
		fmt.Fprintln(w, summaryStyle.Render(fmt.Sprintf("%d relatives, %d unreadable files, %d warnings",
			report.Relatives, report.Failures, len(report.Warnings))))
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
