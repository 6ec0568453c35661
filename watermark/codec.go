package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io"

	"github.com/xfmoulet/qoi"
)

// ErrUnknownCodec is returned for encoded blocks in no supported format.
var ErrUnknownCodec = errors.New("watermark: unknown block codec")

// Codec is a lossless block encoding.
type Codec interface {
	Name() string
	Encode(w io.Writer, b Block) error
	Decode(r io.Reader) (Block, error)
}

// PNG stores blocks as maximally compressed PNG images.
var PNG Codec = pngCodec{}

// QOI stores blocks as QOI images, which encode and decode much faster
// than PNG at a somewhat larger size.
var QOI Codec = qoiCodec{}

var (
	pngMagic = []byte("\x89PNG\r\n\x1a\n")
	qoiMagic = []byte("qoif")
)

type pngCodec struct{}

func (pngCodec) Name() string { return "png" }

func (pngCodec) Encode(w io.Writer, b Block) error {
	if err := b.Validate(); err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	return enc.Encode(w, b.Image())
}

func (pngCodec) Decode(r io.Reader) (Block, error) {
	img, err := png.Decode(r)
	if err != nil {
		return Block{}, fmt.Errorf("watermark: decode png block: %w", err)
	}
	return FromImage(img, img.Bounds())
}

type qoiCodec struct{}

func (qoiCodec) Name() string { return "qoi" }

func (qoiCodec) Encode(w io.Writer, b Block) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return qoi.Encode(w, b.Image())
}

func (qoiCodec) Decode(r io.Reader) (Block, error) {
	img, err := qoi.Decode(r)
	if err != nil {
		return Block{}, fmt.Errorf("watermark: decode qoi block: %w", err)
	}
	return FromImage(img, img.Bounds())
}

// CodecByName returns the codec called name ("png" or "qoi").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", PNG.Name():
		return PNG, nil
	case QOI.Name():
		return QOI, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// EncodeBlock encodes b with c and returns the bytes.
func EncodeBlock(c Codec, b Block) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBlock decodes an encoded block, selecting the codec from its
// signature.
func DecodeBlock(data []byte) (Block, error) {
	c, err := sniff(data)
	if err != nil {
		return Block{}, err
	}
	return c.Decode(bytes.NewReader(data))
}

func sniff(data []byte) (Codec, error) {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return PNG, nil
	case bytes.HasPrefix(data, qoiMagic):
		return QOI, nil
	}
	return nil, ErrUnknownCodec
}
