package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/lochel/genealogy/logging"
)

// CommandRunner runs an external program in dir and returns its combined output.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// RenderError is a failed toolchain step, with the tail of its output.
type RenderError struct {
	Step   string
	Output string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// LatexConfig configures the external toolchain.
type LatexConfig struct {
	TexDir      string
	PdflatexBin string
	PdftoppmBin string
	Timeout     time.Duration
}

// LatexRenderer compiles <texDir>/<id>.tex to a PDF, rasterizes the first page
// and hands the image to the Processor.
type LatexRenderer struct {
	cfg       LatexConfig
	processor *Processor
	run       CommandRunner
}

func NewLatexRenderer(cfg LatexConfig, processor *Processor, run CommandRunner) *LatexRenderer {
	if cfg.PdflatexBin == "" {
		cfg.PdflatexBin = "pdflatex"
	}
	if cfg.PdftoppmBin == "" {
		cfg.PdftoppmBin = "pdftoppm"
	}
	if run == nil {
		run = ExecRunner
	}
	return &LatexRenderer{cfg: cfg, processor: processor, run: run}
}

// Render turns the generated TeX source of id into family/<id>.png. The whole
// toolchain run is bounded by the configured timeout.
func (r *LatexRenderer) Render(ctx context.Context, id string) (string, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	texFile := id + ".tex"
	if _, err := os.Stat(filepath.Join(r.cfg.TexDir, texFile)); err != nil {
		return "", fmt.Errorf("diagram source for %s: %w", id, err)
	}

	if err := r.step(ctx, "pdflatex", r.cfg.PdflatexBin, "-interaction=nonstopmode", "-halt-on-error", texFile); err != nil {
		return "", err
	}
	if err := r.step(ctx, "pdftoppm", r.cfg.PdftoppmBin, "-png", "-singlefile", id+".pdf", id); err != nil {
		return "", err
	}

	pngPath := filepath.Join(r.cfg.TexDir, id+".png")
	img, err := imaging.Open(pngPath)
	if err != nil {
		return "", fmt.Errorf("failed to open rasterized diagram '%s': %w", pngPath, err)
	}
	defer os.Remove(pngPath)

	return r.processor.SaveDiagram(id, img)
}

func (r *LatexRenderer) step(ctx context.Context, step, bin string, args ...string) error {
	start := time.Now()
	out, err := r.run(ctx, r.cfg.TexDir, bin, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", context.DeadlineExceeded, time.Since(start).Round(time.Millisecond))
		}
		return &RenderError{Step: step, Output: tail(string(out), 20), Err: err}
	}
	logging.L().Debugf("latex: %s finished in %s", step, time.Since(start).Round(time.Millisecond))
	return nil
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
