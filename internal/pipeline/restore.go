package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	pinto "github.com/ajroetker/go-pinto"
	"github.com/ajroetker/go-pinto/watermark"
)

// DefaultQuality is the JPEG quality of restored frames.
const DefaultQuality = 90

// RestoreOptions configures Restore.
type RestoreOptions struct {
	Rows, Cols int // Detection grid the clip was redacted with
	Quality    int // JPEG quality; zero means DefaultQuality
	Workers    int
	Logger     *logrus.Logger
}

// RestoreFrame patches the side-channel blocks of a stored frame back over
// their cells, scaled up with nearest-neighbour sampling, and re-encodes
// the result. A frame without a side channel is returned as its image
// bytes.
func RestoreFrame(data []byte, rows, cols, quality int) ([]byte, error) {
	f, rec, err := pinto.SplitFrame(data)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return f.Image(), nil
	}
	img, err := decodePixels(f)
	if err != nil {
		return nil, err
	}
	grid, err := f.Grid(rows, cols)
	if err != nil {
		return nil, err
	}
	if quality == 0 {
		quality = DefaultQuality
	}

	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
	for _, e := range rec.Entries {
		rect, err := grid.CellRect(int(e.Index))
		if err != nil {
			return nil, fmt.Errorf("%w: side-channel cell %d: %v", pinto.ErrDecode, e.Index, err)
		}
		if rect.Empty() {
			return nil, fmt.Errorf("%w: side-channel cell %d covers no MCU", pinto.ErrDecode, e.Index)
		}
		b, err := watermark.DecodeBlock(e.Data)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", e.Index, err)
		}
		patch := b.Image()
		draw.NearestNeighbor.Scale(canvas, rect, patch, patch.Bounds(), draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore writes the restored form of every frame of src to dst and
// returns the number of frames that had a side channel.
func Restore(ctx context.Context, src FrameSource, dst FrameSink, opts RestoreOptions) (int, error) {
	if opts.Rows < 1 || opts.Cols < 1 {
		return 0, fmt.Errorf("pipeline: invalid grid %dx%d", opts.Rows, opts.Cols)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	type restored struct {
		data    []byte
		patched bool
	}
	work := func(_ context.Context, _ int, data []byte) (restored, error) {
		out, err := RestoreFrame(data, opts.Rows, opts.Cols, opts.Quality)
		if err != nil {
			return restored{}, err
		}
		f, err := pinto.ParseFrame(data)
		if err != nil {
			return restored{}, err
		}
		return restored{data: out, patched: len(f.Trailer()) > 0}, nil
	}

	patched := 0
	frames := 0
	err := runOrdered(ctx, opts.Workers, src, work, func(_ int, r restored) error {
		frames++
		if r.patched {
			patched++
		}
		return dst.Write(r.data)
	})
	if err != nil {
		return 0, err
	}
	opts.Logger.WithFields(logrus.Fields{"frames": frames, "patched": patched}).Info("clip restored")
	return patched, nil
}
