package utils

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/lochel/genealogy/logging"
)

// Metadata is the subset of image metadata relevant for portraits.
type Metadata struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Format      string  `json:"format"`
	CameraMake  *string `json:"camera_make,omitempty"`
	CameraModel *string `json:"camera_model,omitempty"`
	TakenAt     *int64  `json:"taken_at,omitempty"`
	// Orientation is the EXIF orientation tag, 1 when absent.
	Orientation int `json:"orientation"`
}

// helper to safely get an integer tag
func getInt(exifData *exif.Exif, tagName exif.FieldName) *int {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val := strings.Trim(strings.TrimRight(tag.String(), "\x00"), `"`)
	if val == "" {
		return nil
	}
	return &val
}

// GetImageMetadata reads dimensions and EXIF data from r. Missing EXIF data is
// not an error.
func GetImageMetadata(r io.ReadSeeker) (*Metadata, error) {
	config, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to decode image config: %w", err)
	}
	meta := &Metadata{Width: config.Width, Height: config.Height, Format: format, Orientation: 1}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("metadata: failed to seek: %w", err)
	}

	exifData, err := exif.Decode(r)
	if err != nil {
		logging.L().Debugf("metadata: no EXIF data: %v", err)
		return meta, nil
	}

	meta.CameraMake = getString(exifData, exif.Make)
	meta.CameraModel = getString(exifData, exif.Model)
	if o := getInt(exifData, exif.Orientation); o != nil && *o >= 1 && *o <= 8 {
		meta.Orientation = *o
	}
	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	}
	return meta, nil
}

// ApplyOrientation transforms img so that it displays upright for the given
// EXIF orientation value.
func ApplyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
