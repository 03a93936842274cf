package diagram

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Theme holds the visual parameters of the generated TeX.
type Theme struct {
	MaleColor    string `yaml:"male_color"`
	FemaleColor  string `yaml:"female_color"`
	UnknownColor string `yaml:"unknown_color"`

	// OutlineWidth and OutlineColor are used for the wide first pass of every
	// connector, LineWidth and LineColor for the thin second pass.
	OutlineWidth string `yaml:"outline_width"`
	OutlineColor string `yaml:"outline_color"`
	LineWidth    string `yaml:"line_width"`
	LineColor    string `yaml:"line_color"`

	// ImageDir is the portrait directory as seen from the TeX directory. The
	// server derives it from its configured directories unless a theme file
	// sets it.
	ImageDir string `yaml:"image_dir"`
}

// DefaultTheme returns the stock look: blue for men, red for women, black for
// unknown, white-outlined black connectors.
func DefaultTheme() Theme {
	return Theme{
		MaleColor:    "blue",
		FemaleColor:  "red",
		UnknownColor: "black",
		OutlineWidth: "0.4cm",
		OutlineColor: "white",
		LineWidth:    "0.2cm",
		LineColor:    "black",
		ImageDir:     "../relatives/images/",
	}
}

// ImageDirFor returns imagesDir as seen from texDir, slash separated and with
// a trailing slash. It falls back to imagesDir when no relative path exists.
func ImageDirFor(texDir, imagesDir string) string {
	dir, err := filepath.Rel(texDir, imagesDir)
	if err != nil {
		dir = imagesDir
	}
	return strings.TrimSuffix(filepath.ToSlash(dir), "/") + "/"
}

// LoadTheme reads a YAML theme file. Keys absent from the file keep their
// default values.
func LoadTheme(path string) (Theme, error) {
	return LoadThemeOver(DefaultTheme(), path)
}

// LoadThemeOver reads a YAML theme file on top of base. base is returned
// unchanged when the file cannot be read or parsed.
func LoadThemeOver(base Theme, path string) (Theme, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read theme '%s': %w", path, err)
	}
	theme := base
	if err := yaml.Unmarshal(raw, &theme); err != nil {
		return base, fmt.Errorf("failed to parse theme '%s': %w", path, err)
	}
	return theme, nil
}
