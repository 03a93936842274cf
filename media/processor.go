package media

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/utils"
)

const (
	PortraitJpegQuality   = 90
	PortraitFileExtension = ".jpg"
	DefaultPortraitSize   = 1200

	FamilyFileExtension = ".png"
)

// Processor handles portrait and diagram image transformations. It relies on
// Store implementations for saving the results.
type Processor struct {
	portraits Store
	diagrams  Store
	portrait  PortraitOptions
	diagram   DiagramOptions
}

func NewProcessor(portraits, diagrams Store, portrait PortraitOptions, diagram DiagramOptions) *Processor {
	if portrait.MaxSize <= 0 {
		portrait.MaxSize = DefaultPortraitSize
	}
	if portrait.Quality <= 0 {
		portrait.Quality = PortraitJpegQuality
	}
	return &Processor{portraits: portraits, diagrams: diagrams, portrait: portrait, diagram: diagram}
}

func (p *Processor) Portraits() Store { return p.portraits }

// Diagrams is the store family diagrams are written to.
func (p *Processor) Diagrams() Store { return p.diagrams }

// encodeAndSave streams img through the encoder into store.
func encodeAndSave(store Store, assetType AssetType, filename string, img image.Image, format imaging.Format, opts ...imaging.EncodeOption) (string, error) {
	reader, writer := io.Pipe()
	go func() {
		err := imaging.Encode(writer, img, format, opts...)
		if err != nil {
			logging.L().Errorf("processor: failed to encode %s: %v", filename, err)
			writer.CloseWithError(fmt.Errorf("encoding %s failed: %w", filename, err))
			return
		}
		writer.Close()
	}()

	savedRelPath, err := store.Save(assetType, "", filename, reader)
	// unblock the encoder if Save returned before draining the pipe
	reader.Close()
	if err != nil {
		return "", fmt.Errorf("failed to save %s via store: %w", filename, err)
	}
	return savedRelPath, nil
}

// ProcessPortrait decodes an uploaded portrait, turns it upright according to
// its EXIF orientation, fits it into the configured square and stores it as a
// JPEG under a fresh UUID name. It returns the stored filename.
func (p *Processor) ProcessPortrait(fileData io.Reader) (string, error) {
	raw, err := io.ReadAll(fileData)
	if err != nil {
		return "", fmt.Errorf("failed to read uploaded portrait: %w", err)
	}

	meta, err := utils.GetImageMetadata(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to decode uploaded portrait: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to decode uploaded portrait: %w", err)
	}
	logging.L().Debugf("processor: decoded portrait (format: %s, %dx%d, orientation %d)", meta.Format, meta.Width, meta.Height, meta.Orientation)

	img = utils.ApplyOrientation(img, meta.Orientation)
	img = imaging.Fit(img, p.portrait.MaxSize, p.portrait.MaxSize, imaging.Lanczos)

	portraitUUID, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID for portrait: %w", err)
	}
	filename := portraitUUID.String() + PortraitFileExtension

	savedRelPath, err := encodeAndSave(p.portraits, AssetTypePortrait, filename, img, imaging.JPEG, imaging.JPEGQuality(p.portrait.Quality))
	if err != nil {
		return "", err
	}
	logging.L().Infof("processor: processed and saved portrait to %s", savedRelPath)
	return filename, nil
}

// SaveDiagram stores a rasterized family diagram as family/<id>.png, scaled
// down to the configured maximum width.
func (p *Processor) SaveDiagram(id string, img image.Image) (string, error) {
	if w := p.diagram.MaxWidth; w > 0 && img.Bounds().Dx() > w {
		img = imaging.Resize(img, w, 0, imaging.Lanczos)
	}
	savedRelPath, err := encodeAndSave(p.diagrams, AssetTypeFamily, DiagramFilename(id), img, imaging.PNG)
	if err != nil {
		return "", err
	}
	logging.L().Infof("processor: saved family diagram for %s to %s", id, savedRelPath)
	return savedRelPath, nil
}

// DiagramFilename is the stored name of the family diagram of id.
func DiagramFilename(id string) string { return id + FamilyFileExtension }

// DiagramPath is the path of the family diagram of id relative to the images root.
func DiagramPath(id string) string {
	return DefaultSubDirs[AssetTypeFamily] + "/" + DiagramFilename(id)
}
