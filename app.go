package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lochel/genealogy/config"
	"github.com/lochel/genealogy/diagram"
	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/media"
	"github.com/lochel/genealogy/repository"
)

// app holds the components shared by all commands.
type app struct {
	cfg       config.Config
	relatives *repository.RelativeStore
	processor *media.Processor
	generator *diagram.Generator
	renderer  *media.LatexRenderer
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	for _, dir := range []string{cfg.RelativesDir, cfg.TexDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	relatives, err := repository.NewRelativeStore(cfg.RelativesDir)
	if err != nil {
		return nil, err
	}

	theme, err := diagramTheme(cfg)
	if err != nil {
		return nil, err
	}

	portraits, err := media.NewLocalStorage(cfg.ImagesDir, media.DefaultSubDirs)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portrait store: %w", err)
	}
	var diagrams media.Store = portraits
	if cfg.MediaDriver == config.MediaDriverS3 {
		diagrams, err = media.NewS3Storage(ctx, media.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
		}, media.DefaultSubDirs)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize diagram store: %w", err)
		}
	}
	if _, err := diagrams.EnsureDir(media.AssetTypeFamily); err != nil {
		return nil, err
	}

	processor := media.NewProcessor(portraits, diagrams,
		media.PortraitOptions{MaxSize: cfg.PortraitMaxSize},
		media.DiagramOptions{MaxWidth: cfg.FamilyImageMaxWidth})

	renderer := media.NewLatexRenderer(media.LatexConfig{
		TexDir:      cfg.TexDir,
		PdflatexBin: cfg.PdflatexBin,
		PdftoppmBin: cfg.PdftoppmBin,
		Timeout:     cfg.RenderTimeout,
	}, processor, media.ExecRunner)

	logging.L().Infof("app: relatives in %s, images in %s, diagrams via %s store", cfg.RelativesDir, cfg.ImagesDir, cfg.MediaDriver)
	return &app{
		cfg:       cfg,
		relatives: relatives,
		processor: processor,
		generator: diagram.NewGenerator(relatives, cfg.TexDir, cfg.TexTemplate, theme),
		renderer:  renderer,
	}, nil
}

// diagramTheme is the default theme pointed at the configured portrait
// directory, overlaid with the theme file when one is configured.
func diagramTheme(cfg config.Config) (diagram.Theme, error) {
	theme := diagram.DefaultTheme()
	theme.ImageDir = diagram.ImageDirFor(cfg.TexDir, cfg.ImagesDir)
	if cfg.DiagramTheme == "" {
		return theme, nil
	}
	return diagram.LoadThemeOver(theme, cfg.DiagramTheme)
}
