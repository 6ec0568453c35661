// Package watermark pixelates image blocks and imprints the digest of the
// original content into the pixelated result, so a redacted region can
// later be tied back to what it replaced.
package watermark

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrInvalidBlock is returned for blocks whose size and pixel data disagree,
// or that cannot hold an imprint.
var ErrInvalidBlock = errors.New("watermark: invalid block")

// Block is a packed RGB pixel block, row-major, 3 bytes per pixel.
type Block struct {
	Width  int
	Height int
	Pix    []byte
}

// NewBlock returns a zeroed block.
func NewBlock(width, height int) Block {
	return Block{Width: width, Height: height, Pix: make([]byte, 3*width*height)}
}

// Validate checks that Pix matches the block size.
func (b Block) Validate() error {
	if b.Width < 1 || b.Height < 1 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidBlock, b.Width, b.Height)
	}
	if len(b.Pix) != 3*b.Width*b.Height {
		return fmt.Errorf("%w: %dx%d holds %d bytes, want %d",
			ErrInvalidBlock, b.Width, b.Height, len(b.Pix), 3*b.Width*b.Height)
	}
	return nil
}

// Offset returns the index in Pix of the pixel at (x, y).
func (b Block) Offset(x, y int) int {
	return 3 * (y*b.Width + x)
}

// FromImage copies the pixels of img inside r into a new block. r must be
// non-empty and inside img's bounds.
func FromImage(img image.Image, r image.Rectangle) (Block, error) {
	if r.Empty() || !r.In(img.Bounds()) {
		return Block{}, fmt.Errorf("%w: region %v outside image %v", ErrInvalidBlock, r, img.Bounds())
	}
	b := NewBlock(r.Dx(), r.Dy())
	i := 0
	switch src := img.(type) {
	case *image.YCbCr:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				yi, ci := src.YOffset(x, y), src.COffset(x, y)
				b.Pix[i], b.Pix[i+1], b.Pix[i+2] = color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				i += 3
			}
		}
	case *image.Gray:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				v := src.Pix[src.PixOffset(x, y)]
				b.Pix[i], b.Pix[i+1], b.Pix[i+2] = v, v, v
				i += 3
			}
		}
	default:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				b.Pix[i], b.Pix[i+1], b.Pix[i+2] = c.R, c.G, c.B
				i += 3
			}
		}
	}
	return b, nil
}

// Image returns the block as an opaque RGBA image anchored at the origin.
func (b Block) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for i, j := 0, 0; i < len(b.Pix); i, j = i+3, j+4 {
		img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = b.Pix[i], b.Pix[i+1], b.Pix[i+2], 0xFF
	}
	return img
}
