package pinto

// bitWriter provides bit-level writing of JPEG entropy-coded data.
// Bits are written in MSB-first order (most significant bit first).
//
// Every completed 0xFF byte is followed by a stuffed 0x00 byte so the
// output never contains an accidental marker sequence.
type bitWriter struct {
	buf   []byte // completed bytes, stuffing included
	acc   uint32 // pending bits, right-aligned
	nbits uint   // number of pending bits (0-7 between calls)
}

// newBitWriter creates a new bit writer with room for sizeHint bytes.
func newBitWriter(sizeHint int) *bitWriter {
	return &bitWriter{
		buf: make([]byte, 0, sizeHint),
	}
}

// WriteBits writes the low n bits of val (MSB first, n <= 24).
func (w *bitWriter) WriteBits(val uint32, n int) {
	if n <= 0 {
		return
	}
	w.acc = w.acc<<uint(n) | val&(1<<uint(n)-1)
	w.nbits += uint(n)

	for w.nbits >= 8 {
		b := byte(w.acc >> (w.nbits - 8))
		w.buf = append(w.buf, b)
		if b == 0xFF {
			w.buf = append(w.buf, 0x00)
		}
		w.nbits -= 8
		w.acc &= 1<<w.nbits - 1
	}
}

// Bytes finalizes writing and returns the encoded bytes.
// A trailing partial byte is padded with 1-bits per ITU-T T.81 F.1.2.3.
// Returns a copy of the internal buffer.
func (w *bitWriter) Bytes() []byte {
	if w.nbits > 0 {
		pad := 8 - int(w.nbits)
		w.WriteBits(1<<uint(pad)-1, pad)
	}

	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Len returns the current length in bytes, including any partial byte
// that has not yet been flushed.
func (w *bitWriter) Len() int {
	n := len(w.buf)
	if w.nbits > 0 {
		n++
	}
	return n
}
