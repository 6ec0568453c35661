package pinto

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// testPattern returns a deterministic, textured RGBA image.
func testPattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{
				R: uint8(x*7 + y*3),
				G: uint8(x*x + y),
				B: uint8((x ^ y) * 5),
				A: 0xFF,
			})
		}
	}
	return img
}

// grayPattern returns a deterministic, textured grayscale image.
func grayPattern(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: uint8(x*9 + y*y)})
		}
	}
	return img
}

// encodeJPEG encodes img with the standard library encoder, which writes
// baseline frames with 4:2:0 subsampling for colour images.
func encodeJPEG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

// mustParse parses data or fails the test.
func mustParse(t testing.TB, data []byte) *Frame {
	t.Helper()
	f, err := ParseFrame(data)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	return f
}

// twoComponentFrame builds a 64x64 frame with a 2x2-sampled first
// component and a 1x1 second component, so each 16x16 MCU carries four
// blocks of component 0 and one of component 1. Every unit has a non-zero
// DC and a few AC coefficients.
func twoComponentFrame(t testing.TB) ([]byte, []CodingUnit) {
	t.Helper()
	opts := &EncodeOptions{
		Width:  64,
		Height: 64,
		Components: []Component{
			{ID: 1, H: 2, V: 2},
			{ID: 2, H: 1, V: 1},
		},
	}
	var units []CodingUnit
	for m := range 16 {
		for comp, blocks := range []int{4, 1} {
			for b := range blocks {
				u := CodingUnit{MCU: m, Component: comp, Block: b}
				u.Coef[0] = int32(10*m + 3*b - 40*comp + 7)
				u.Coef[1] = int32(m%5 - 2)
				u.Coef[5] = int32(b + 1)
				u.Coef[40] = -3
				u.Coef[63] = int32(comp + 1)
				units = append(units, u)
			}
		}
	}
	var buf bytes.Buffer
	if err := EncodeCoefficients(&buf, units, opts); err != nil {
		t.Fatalf("EncodeCoefficients: %v", err)
	}
	return buf.Bytes(), units
}

// appendSegment appends a marker segment with a length field.
func appendSegment(buf []byte, marker byte, body []byte) []byte {
	buf = append(buf, 0xFF, marker)
	buf = appendUint16(buf, uint16(len(body)+2))
	return append(buf, body...)
}

// appendUint16 appends a big-endian uint16 to buf.
func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

// insertAt returns a copy of data with extra inserted at offset.
func insertAt(data []byte, offset int, extra []byte) []byte {
	out := make([]byte, 0, len(data)+len(extra))
	out = append(out, data[:offset]...)
	out = append(out, extra...)
	return append(out, data[offset:]...)
}
