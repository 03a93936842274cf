package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lochel/genealogy/repository"
)

var (
	diagramRender bool
	diagramAll    bool
)

var diagramCmd = &cobra.Command{
	Use:   "diagram [id...]",
	Short: "Generate the family diagram TeX source, and optionally the PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		ids := args
		if diagramAll {
			relatives, err := a.relatives.LoadAll()
			if err != nil {
				return err
			}
			ids = ids[:0]
			for _, rel := range relatives {
				ids = append(ids, rel.ID)
			}
		}
		if len(ids) == 0 {
			return fmt.Errorf("no relative given, pass ids or --all")
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, id := range ids {
			if err := generateOne(cmd.Context(), a, id, out); err != nil {
				fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("! %s: %v", id, err)))
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d diagrams failed", failed, len(ids))
		}
		return nil
	},
}

func init() {
	diagramCmd.Flags().BoolVar(&diagramRender, "render", false, "run pdflatex and pdftoppm and store the PNG")
	diagramCmd.Flags().BoolVar(&diagramAll, "all", false, "generate diagrams for every relative")
}

func generateOne(ctx context.Context, a *app, id string, out io.Writer) error {
	if err := repository.ValidateID(id); err != nil {
		return err
	}
	path, result, err := a.generator.Generate(id)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(out, warnStyle.Render("! "+w))
	}
	fmt.Fprintf(out, "%s: wrote %s\n", id, path)

	if !diagramRender {
		return nil
	}
	image, err := a.renderer.Render(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: stored %s\n", id, image)
	return nil
}
