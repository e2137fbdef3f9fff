package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func grayLevel(i int) color.Color {
	return color.RGBA{R: uint8(i * 8), G: uint8(i * 8), B: uint8(i * 8), A: 255}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeDecoder serves n synthetic frames, each a distinct gray level.
type fakeDecoder struct {
	n         int
	err       error
	lastLimit int
}

func (f *fakeDecoder) DecodeFrames(_ context.Context, _ []byte, limit int) ([]image.Image, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	n := f.n
	if limit > 0 && n > limit {
		n = limit
	}
	frames := make([]image.Image, n)
	for i := range frames {
		frames[i] = solidImage(16, 12, grayLevel(i))
	}
	return frames, nil
}
