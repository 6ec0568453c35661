package watermark

import (
	"crypto/sha256"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Imprint geometry: the first ImprintPixels pixels of row 0 carry 16 bits
// of the digest each.
const (
	ImprintPixels = 10
	bitsPerPixel  = 16

	// FingerprintSize is the number of digest bytes an imprint carries.
	FingerprintSize = ImprintPixels * bitsPerPixel / 8
)

// Fingerprint is the low 160 bits of a SHA-256 digest, big-endian. It is
// the part of the digest an imprint can hold.
type Fingerprint [FingerprintSize]byte

// FingerprintOf returns the fingerprint of a full digest.
func FingerprintOf(digest [sha256.Size]byte) Fingerprint {
	var fp Fingerprint
	copy(fp[:], digest[sha256.Size-FingerprintSize:])
	return fp
}

// field places one slice of digest bits into one channel of one pixel.
type field struct {
	pixel   int
	channel int
	shift   uint // first digest bit, counted from the least significant
	width   uint
	keep    byte // pixel bits left untouched
}

// Layout is the fixed assignment of digest bits to imprint channels.
// Pixel p stores bits [16p, 16p+6) in channel 0 under keep-mask 0xC0,
// bits [16p+6, 16p+11) in channel 1 and bits [16p+11, 16p+16) in channel 2,
// both under keep-mask 0xE0.
type Layout struct {
	fields [3 * ImprintPixels]field
}

// NewLayout builds the imprint layout.
func NewLayout() *Layout {
	l := &Layout{}
	for p := range ImprintPixels {
		base := uint(bitsPerPixel * p)
		l.fields[3*p] = field{pixel: p, channel: 0, shift: base, width: 6, keep: 0b11000000}
		l.fields[3*p+1] = field{pixel: p, channel: 1, shift: base + 6, width: 5, keep: 0b11100000}
		l.fields[3*p+2] = field{pixel: p, channel: 2, shift: base + 11, width: 5, keep: 0b11100000}
	}
	return l
}

// digestBits returns width bits of a big-endian digest starting at bit
// shift, counted from the least significant bit.
func digestBits(d []byte, shift, width uint) byte {
	var v byte
	for i := range width {
		j := shift + i
		bit := d[len(d)-1-int(j/8)] >> (j % 8) & 1
		v |= bit << i
	}
	return v
}

// setDigestBits stores the low width bits of v at bit shift of d.
func setDigestBits(d []byte, shift, width uint, v byte) {
	for i := range width {
		j := shift + i
		idx := len(d) - 1 - int(j/8)
		if v>>i&1 == 1 {
			d[idx] |= 1 << (j % 8)
		} else {
			d[idx] &^= 1 << (j % 8)
		}
	}
}

// WatermarkedBlock is a pixelated block carrying the imprint of the
// digest of the block it was made from.
type WatermarkedBlock struct {
	Block
	Digest [sha256.Size]byte // SHA-256 of the original packed RGB bytes
}

// Embedder pixelates blocks and imprints their digest using a shared
// layout.
type Embedder struct {
	layout *Layout
}

// NewEmbedder returns an embedder using layout. A nil layout selects the
// standard one.
func NewEmbedder(layout *Layout) *Embedder {
	if layout == nil {
		layout = defaultLayout
	}
	return &Embedder{layout: layout}
}

var defaultLayout = NewLayout()

var defaultEmbedder = NewEmbedder(defaultLayout)

// PixelatedSize returns the size a w x h block is reduced to: each side is
// divided by intensity and rounded down, but never below ImprintPixels wide
// or one pixel high.
func PixelatedSize(w, h int, intensity float64) (int, int) {
	pw := int(math.Floor(float64(w) / intensity))
	ph := int(math.Floor(float64(h) / intensity))
	return max(ImprintPixels, pw), max(1, ph)
}

// Embed pixelates b by intensity with nearest-neighbour sampling and
// imprints the SHA-256 digest of b's original bytes into the first
// ImprintPixels pixels of row 0.
func (e *Embedder) Embed(b Block, intensity float64) (WatermarkedBlock, error) {
	if err := b.Validate(); err != nil {
		return WatermarkedBlock{}, err
	}
	if !(intensity >= 1) || math.IsInf(intensity, 0) {
		return WatermarkedBlock{}, fmt.Errorf("watermark: invalid intensity %v", intensity)
	}

	digest := sha256.Sum256(b.Pix)
	w, h := PixelatedSize(b.Width, b.Height, intensity)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), b.Image(), image.Rect(0, 0, b.Width, b.Height), draw.Src, nil)

	out := WatermarkedBlock{Block: NewBlock(w, h), Digest: digest}
	for i, j := 0, 0; i < len(out.Pix); i, j = i+3, j+4 {
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = dst.Pix[j], dst.Pix[j+1], dst.Pix[j+2]
	}
	for _, f := range e.layout.fields {
		k := out.Offset(f.pixel, 0) + f.channel
		out.Pix[k] = out.Pix[k]&f.keep | digestBits(digest[:], f.shift, f.width)
	}
	return out, nil
}

// Extract reads the fingerprint imprinted in b.
func (e *Embedder) Extract(b Block) (Fingerprint, error) {
	var fp Fingerprint
	if err := b.Validate(); err != nil {
		return fp, err
	}
	if b.Width < ImprintPixels {
		return fp, fmt.Errorf("%w: %d pixels wide, imprint needs %d", ErrInvalidBlock, b.Width, ImprintPixels)
	}
	for _, f := range e.layout.fields {
		v := b.Pix[b.Offset(f.pixel, 0)+f.channel] &^ f.keep
		setDigestBits(fp[:], f.shift, f.width, v)
	}
	return fp, nil
}

// Matches reports whether watermarked carries the fingerprint of original.
func (e *Embedder) Matches(watermarked, original Block) (bool, error) {
	if err := original.Validate(); err != nil {
		return false, err
	}
	fp, err := e.Extract(watermarked)
	if err != nil {
		return false, err
	}
	return fp == FingerprintOf(sha256.Sum256(original.Pix)), nil
}

// Embed pixelates and imprints b with the standard layout.
func Embed(b Block, intensity float64) (WatermarkedBlock, error) {
	return defaultEmbedder.Embed(b, intensity)
}

// Extract reads the fingerprint imprinted in b with the standard layout.
func Extract(b Block) (Fingerprint, error) {
	return defaultEmbedder.Extract(b)
}

// Matches reports whether watermarked carries the fingerprint of original
// under the standard layout.
func Matches(watermarked, original Block) (bool, error) {
	return defaultEmbedder.Matches(watermarked, original)
}
