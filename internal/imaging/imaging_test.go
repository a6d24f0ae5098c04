package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func createTestPNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestProcessJPEG(t *testing.T) {
	result, err := Process(bytes.NewReader(createTestJPEG(100, 100)), 0)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", result.MIME)
	assert.NotEmpty(t, result.Data)
}

func TestProcessPNG(t *testing.T) {
	result, err := Process(bytes.NewReader(createTestPNG(100, 100, color.RGBA{0, 0, 255, 255})), 0)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", result.MIME, "PNG is re-encoded as JPEG")
	decode(t, result.Data)
}

func TestProcessDownscale(t *testing.T) {
	result, err := Process(bytes.NewReader(createTestJPEG(2048, 1024)), 0)
	require.NoError(t, err)

	bounds := decode(t, result.Data).Bounds()
	assert.Equal(t, MaxDimension, bounds.Dx())
	assert.Equal(t, 512, bounds.Dy())
	assert.Equal(t, MaxDimension, result.Width)
}

func TestProcessSmallImageNotUpscaled(t *testing.T) {
	result, err := Process(bytes.NewReader(createTestJPEG(200, 150)), 0)
	require.NoError(t, err)

	bounds := decode(t, result.Data).Bounds()
	assert.Equal(t, 200, bounds.Dx())
	assert.Equal(t, 150, bounds.Dy())
}

func TestProcessTransparentPNGOnWhite(t *testing.T) {
	result, err := Process(bytes.NewReader(createTestPNG(10, 10, color.RGBA{})), 0)
	require.NoError(t, err)

	r, g, b, _ := decode(t, result.Data).At(5, 5).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestProcessInvalidFormat(t *testing.T) {
	_, err := Process(bytes.NewReader([]byte("not an image")), 0)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestProcessGIFRejected(t *testing.T) {
	_, err := Process(bytes.NewReader([]byte("GIF89a...")), 0)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestProcessTooLarge(t *testing.T) {
	data := createTestJPEG(100, 100)
	_, err := Process(bytes.NewReader(data), int64(len(data)-1))
	assert.ErrorIs(t, err, ErrTooLarge)
}
