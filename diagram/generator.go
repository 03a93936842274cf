package diagram

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/models"
)

// Loader supplies the record set a diagram is laid out from.
type Loader interface {
	LoadAll() ([]models.Relative, error)
}

// Generator writes <texDir>/<id>.tex for a relative.
type Generator struct {
	loader       Loader
	texDir       string
	templatePath string
	theme        Theme
}

func NewGenerator(loader Loader, texDir, templatePath string, theme Theme) *Generator {
	return &Generator{
		loader:       loader,
		texDir:       texDir,
		templatePath: templatePath,
		theme:        theme,
	}
}

// TexDir is the directory TeX sources are written to.
func (g *Generator) TexDir() string { return g.texDir }

// Template returns the configured template, or DefaultTemplate when no template
// file exists.
func (g *Generator) Template() (string, error) {
	if g.templatePath == "" {
		return DefaultTemplate, nil
	}
	raw, err := os.ReadFile(g.templatePath)
	if os.IsNotExist(err) {
		logging.L().Debugf("diagram: template %s not found, using built-in template", g.templatePath)
		return DefaultTemplate, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read diagram template '%s': %w", g.templatePath, err)
	}
	return string(raw), nil
}

// Build lays out and materializes the diagram of id without touching the disk.
func (g *Generator) Build(id string) (string, *Result, error) {
	relatives, err := g.loader.LoadAll()
	if err != nil {
		return "", nil, err
	}
	result, err := Layout(id, relatives)
	if err != nil {
		return "", nil, err
	}
	template, err := g.Template()
	if err != nil {
		return "", nil, err
	}
	tex, err := Materialize(result, template, g.theme)
	if err != nil {
		return "", nil, err
	}
	return tex, result, nil
}

// Generate builds the diagram of id and writes it to the TeX directory. It
// returns the path of the written file.
func (g *Generator) Generate(id string) (string, *Result, error) {
	tex, result, err := g.Build(id)
	if err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(g.texDir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create tex directory '%s': %w", g.texDir, err)
	}
	path := filepath.Join(g.texDir, id+".tex")
	if err := os.WriteFile(path, []byte(tex), 0644); err != nil {
		return "", nil, fmt.Errorf("failed to write diagram source '%s': %w", path, err)
	}
	for _, w := range result.Warnings {
		logging.L().Warnf("diagram: %s: %s", id, w)
	}
	logging.L().Infof("diagram: wrote %s (%d nodes, %d hubs)", path, len(result.Nodes), len(result.Hubs))
	return path, result, nil
}
