// Package container reads and writes clip files: a sequence of frames,
// each stored as a 4-byte big-endian length followed by the frame bytes.
// A zero-length record or the end of the file ends the clip.
package container

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single record.
const MaxFrameSize = 64 << 20

// ErrFrameTooLarge is returned for records over MaxFrameSize.
var ErrFrameTooLarge = errors.New("container: frame too large")

// Reader iterates over the frames of a clip.
type Reader struct {
	r     *bufio.Reader
	n     int
	ended bool
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next frame, or io.EOF at the end of the clip. A record
// cut short is reported as io.ErrUnexpectedEOF.
func (cr *Reader) Next() ([]byte, error) {
	if cr.ended {
		return nil, io.EOF
	}
	var hdr [4]byte
	if _, err := io.ReadFull(cr.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			cr.ended = true
			return nil, io.EOF
		}
		return nil, fmt.Errorf("container: frame %d header: %w", cr.n, err)
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size == 0 {
		cr.ended = true
		return nil, io.EOF
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame %d is %d bytes", ErrFrameTooLarge, cr.n, size)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(cr.r, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("container: frame %d body: %w", cr.n, err)
	}
	cr.n++
	return frame, nil
}

// Count returns the number of frames read so far.
func (cr *Reader) Count() int {
	return cr.n
}

// ReadAll reads every remaining frame.
func ReadAll(r io.Reader) ([][]byte, error) {
	cr := NewReader(r)
	var frames [][]byte
	for {
		f, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
}

// Writer appends frames to a clip.
type Writer struct {
	w *bufio.Writer
	n int
}

// NewWriter returns a Writer to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends one frame. Empty frames are rejected since a zero length
// marks the end of the clip.
func (cw *Writer) Write(frame []byte) error {
	if len(frame) == 0 {
		return errors.New("container: empty frame")
	}
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: frame %d is %d bytes", ErrFrameTooLarge, cw.n, len(frame))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := cw.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := cw.w.Write(frame); err != nil {
		return err
	}
	cw.n++
	return nil
}

// Count returns the number of frames written.
func (cw *Writer) Count() int {
	return cw.n
}

// Close writes the end-of-clip record and flushes. It does not close the
// underlying writer.
func (cw *Writer) Close() error {
	if _, err := cw.w.Write([]byte{0, 0, 0, 0}); err != nil {
		return err
	}
	return cw.w.Flush()
}
