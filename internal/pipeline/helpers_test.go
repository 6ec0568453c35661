package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-pinto/internal/timestamp"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// frame encodes a textured w x h colour frame; seed varies the content.
func frame(t testing.TB, w, h, seed int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{
				R: uint8(x*5 + y*3 + seed*17),
				G: uint8(x*y + seed),
				B: uint8((x ^ y) * (seed + 3)),
				A: 0xFF,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func clipFrames(t testing.TB, n int) [][]byte {
	t.Helper()
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = frame(t, 64, 64, i)
	}
	return frames
}

func decode(t testing.TB, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

type fakeStamper struct {
	stamp timestamp.Stamp
	err   error
	got   []string
}

func (s *fakeStamper) Stamp(_ context.Context, digest string) (timestamp.Stamp, error) {
	s.got = append(s.got, digest)
	return s.stamp, s.err
}
