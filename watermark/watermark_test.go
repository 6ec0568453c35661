package watermark

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func patternBlock(w, h int) Block {
	b := NewBlock(w, h)
	for i := range b.Pix {
		b.Pix[i] = byte(i*31 + i/7)
	}
	return b
}

func TestLayout(t *testing.T) {
	l := NewLayout()
	covered := make([]bool, FingerprintSize*8)
	for _, f := range l.fields {
		assert.Less(t, f.pixel, ImprintPixels)
		assert.Equal(t, 8, int(f.width)+countOnes(f.keep), "field %+v must fill the channel", f)
		for i := range f.width {
			require.False(t, covered[f.shift+i], "bit %d written twice", f.shift+i)
			covered[f.shift+i] = true
		}
	}
	for i, c := range covered {
		assert.True(t, c, "bit %d not covered", i)
	}
	assert.Equal(t, field{pixel: 3, channel: 1, shift: 54, width: 5, keep: 0b11100000}, l.fields[10])
}

func countOnes(b byte) int {
	n := 0
	for ; b != 0; b &= b - 1 {
		n++
	}
	return n
}

func TestEmbed_SizeAndDigest(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		i            float64
		wantW, wantH int
	}{
		{"regular", 64, 48, 8, 10, 6},
		{"wide", 200, 40, 10, 20, 4},
		{"narrow keeps imprint width", 16, 16, 4, 10, 4},
		{"flat keeps one row", 40, 3, 8, 10, 1},
		{"intensity one", 12, 5, 1, 12, 5},
		{"fractional intensity", 30, 9, 2.5, 12, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := patternBlock(tt.w, tt.h)
			wb, err := Embed(b, tt.i)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, wb.Width)
			assert.Equal(t, tt.wantH, wb.Height)
			assert.Len(t, wb.Pix, 3*tt.wantW*tt.wantH)
			assert.Equal(t, sha256.Sum256(b.Pix), wb.Digest)
		})
	}
}

func TestEmbed_ImprintBits(t *testing.T) {
	b := NewBlock(20, 20)
	for i := range b.Pix {
		b.Pix[i] = 0xFF
	}
	wb, err := Embed(b, 2)
	require.NoError(t, err)

	d := wb.Digest
	// Pixel 0 carries the lowest 16 bits of the digest.
	low := uint16(d[30])<<8 | uint16(d[31])
	assert.Equal(t, byte(0b11000000|low&0x3F), wb.Pix[0])
	assert.Equal(t, byte(0b11100000|low>>6&0x1F), wb.Pix[1])
	assert.Equal(t, byte(0b11100000|low>>11&0x1F), wb.Pix[2])

	// Pixels past the imprint and other rows are untouched.
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, wb.Pix[wb.Offset(ImprintPixels, 0):wb.Offset(ImprintPixels, 0)+3])
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, wb.Pix[wb.Offset(0, 1):wb.Offset(0, 1)+3])
}

func TestEmbed_Deterministic(t *testing.T) {
	b := patternBlock(33, 17)
	a1, err := Embed(b, 3)
	require.NoError(t, err)
	a2, err := NewEmbedder(NewLayout()).Embed(b, 3)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}

func TestEmbed_OnePixelSensitivity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 40).Draw(t, "w")
		h := rapid.IntRange(1, 40).Draw(t, "h")
		b := NewBlock(w, h)
		copy(b.Pix, rapid.SliceOfN(rapid.Byte(), len(b.Pix), len(b.Pix)).Draw(t, "pix"))

		c := Block{Width: w, Height: h, Pix: bytes.Clone(b.Pix)}
		k := rapid.IntRange(0, len(c.Pix)-1).Draw(t, "k")
		c.Pix[k] ^= 1 << rapid.IntRange(0, 7).Draw(t, "bit")

		wb, err := Embed(b, 4)
		if err != nil {
			t.Fatal(err)
		}
		wc, err := Embed(c, 4)
		if err != nil {
			t.Fatal(err)
		}
		if wb.Digest == wc.Digest {
			t.Fatal("digest unchanged by a one-bit pixel edit")
		}
		ok, err := Matches(wb.Block, c)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("watermark matched a modified original")
		}
	})
}

func TestExtractAndMatches(t *testing.T) {
	b := patternBlock(50, 30)
	wb, err := Embed(b, 5)
	require.NoError(t, err)

	fp, err := Extract(wb.Block)
	require.NoError(t, err)
	assert.Equal(t, FingerprintOf(wb.Digest), fp)

	ok, err := Matches(wb.Block, b)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Extract(NewBlock(9, 1))
	assert.ErrorIs(t, err, ErrInvalidBlock)
}

func TestEmbed_InvalidInput(t *testing.T) {
	_, err := Embed(Block{Width: 2, Height: 2, Pix: make([]byte, 5)}, 2)
	assert.ErrorIs(t, err, ErrInvalidBlock)

	_, err = Embed(patternBlock(4, 4), 0)
	assert.Error(t, err)
	_, err = Embed(patternBlock(4, 4), math.NaN())
	assert.Error(t, err)
}

func TestFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 1, color.RGBA{R: 10, G: 20, B: 30, A: 0xFF})

	b, err := FromImage(img, image.Rect(2, 1, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, b.Width)
	assert.Equal(t, 2, b.Height)
	assert.Equal(t, []byte{10, 20, 30}, b.Pix[:3])

	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	gray.Pix[3] = 77
	b, err = FromImage(gray, gray.Bounds())
	require.NoError(t, err)
	assert.Equal(t, []byte{77, 77, 77}, b.Pix[9:12])

	_, err = FromImage(img, image.Rect(3, 3, 6, 6))
	assert.ErrorIs(t, err, ErrInvalidBlock)
}

func TestFromImage_YCbCrMatchesGenericPath(t *testing.T) {
	ycc := image.NewYCbCr(image.Rect(0, 0, 8, 8), image.YCbCrSubsampleRatio420)
	for i := range ycc.Y {
		ycc.Y[i] = byte(i * 3)
	}
	for i := range ycc.Cb {
		ycc.Cb[i] = byte(100 + i)
		ycc.Cr[i] = byte(160 - i)
	}
	fast, err := FromImage(ycc, ycc.Bounds())
	require.NoError(t, err)

	for y := range 8 {
		for x := range 8 {
			r, g, b := color.YCbCrToRGB(ycc.YCbCrAt(x, y).Y, ycc.YCbCrAt(x, y).Cb, ycc.YCbCrAt(x, y).Cr)
			k := fast.Offset(x, y)
			require.Equal(t, []byte{r, g, b}, fast.Pix[k:k+3], "pixel %d,%d", x, y)
		}
	}
}

func TestCodecs_RoundTrip(t *testing.T) {
	wb, err := Embed(patternBlock(64, 64), 4)
	require.NoError(t, err)

	for _, c := range []Codec{PNG, QOI} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := EncodeBlock(c, wb.Block)
			require.NoError(t, err)

			got, err := DecodeBlock(data)
			require.NoError(t, err)
			assert.Equal(t, wb.Block, got)

			fp, err := Extract(got)
			require.NoError(t, err)
			assert.Equal(t, FingerprintOf(wb.Digest), fp)
		})
	}
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "png", c.Name())

	c, err = CodecByName("qoi")
	require.NoError(t, err)
	assert.Equal(t, "qoi", c.Name())

	_, err = CodecByName("webp")
	assert.True(t, errors.Is(err, ErrUnknownCodec))
}

func TestDecodeBlock_Garbage(t *testing.T) {
	_, err := DecodeBlock([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnknownCodec)

	_, err = DecodeBlock(append(bytes.Clone(pngMagic), 0x00, 0x01))
	assert.Error(t, err)
}
