package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetImageMetadataWithoutExif(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 7, 3))))

	meta, err := GetImageMetadata(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 7, meta.Width)
	assert.Equal(t, 3, meta.Height)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 1, meta.Orientation)
	assert.Nil(t, meta.CameraMake)
	assert.Nil(t, meta.TakenAt)
}

func TestGetImageMetadataRejectsGarbage(t *testing.T) {
	_, err := GetImageMetadata(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestApplyOrientation(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})

	assert.Same(t, image.Image(src), ApplyOrientation(src, 1))
	assert.Same(t, image.Image(src), ApplyOrientation(src, 0))

	for _, o := range []int{5, 6, 7, 8} {
		b := ApplyOrientation(src, o).Bounds()
		assert.Equal(t, 2, b.Dx(), "orientation %d", o)
		assert.Equal(t, 4, b.Dy(), "orientation %d", o)
	}

	flipped := ApplyOrientation(src, 2)
	r, _, _, _ := flipped.At(3, 0).RGBA()
	assert.EqualValues(t, 0xffff, r)
}
