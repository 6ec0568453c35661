package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"slices"

	pinto "github.com/ajroetker/go-pinto"
	"github.com/ajroetker/go-pinto/hashchain"
	"github.com/ajroetker/go-pinto/watermark"
)

// decodePixels decodes the image part of a frame.
func decodePixels(f *pinto.Frame) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(f.Image()))
	if err != nil {
		return nil, fmt.Errorf("%w: pixels: %v", pinto.ErrDecode, err)
	}
	return img, nil
}

// cellInputs returns the packed RGB pixels of every detection cell of img,
// in row-major order. Cells covering no MCU are nil.
func cellInputs(g *pinto.Grid, img image.Image) ([][]byte, error) {
	inputs := make([][]byte, g.Len())
	for i := range inputs {
		r, err := g.CellRect(i)
		if err != nil {
			return nil, err
		}
		if r.Empty() {
			continue
		}
		b, err := watermark.FromImage(img, r)
		if err != nil {
			return nil, err
		}
		inputs[i] = b.Pix
	}
	return inputs, nil
}

// coveredCells maps detected regions to detection cells, ascending and
// without duplicates.
func coveredCells(g *pinto.Grid, rects []image.Rectangle) []int {
	var cells []int
	for _, r := range rects {
		cells = append(cells, g.CellsCovering(r)...)
	}
	slices.Sort(cells)
	return slices.Compact(cells)
}

// updateChain feeds one frame's cell inputs to chain.
func updateChain(chain *hashchain.State, inputs [][]byte) {
	for _, p := range inputs {
		if p != nil {
			chain.Update(p)
		}
	}
}
