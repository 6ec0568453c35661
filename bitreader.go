package pinto

import "fmt"

// bitReader provides bit-level reading from a JPEG entropy-coded segment.
// Bits are read in MSB-first order (most significant bit first).
//
// Per ITU-T T.81 F.1.2.3, every 0xFF byte of entropy-coded data is followed
// by a stuffed 0x00 byte that carries no data. The reader drops the stuffed
// byte. A 0xFF followed by any other byte is a marker and ends the segment.
type bitReader struct {
	data      []byte
	pos       int  // next byte to load
	cur       byte // byte being consumed
	bitPos    uint // bits already consumed from cur (8 = need a new byte)
	hitMarker bool // a marker sequence ended the segment
}

// newBitReader creates a new bit reader over stuffed entropy-coded data.
func newBitReader(data []byte) *bitReader {
	return &bitReader{
		data:   data,
		bitPos: 8,
	}
}

// loadByte moves to the next data byte, dropping a stuffed 0x00 after 0xFF.
func (r *bitReader) loadByte() error {
	if r.hitMarker || r.pos >= len(r.data) {
		return ErrEndOfStream
	}

	b := r.data[r.pos]
	r.pos++
	if b == 0xFF && r.pos < len(r.data) {
		if r.data[r.pos] != 0x00 {
			// Back up so Position points at the marker prefix.
			r.pos--
			r.hitMarker = true
			return ErrEndOfStream
		}
		r.pos++
	}

	r.cur = b
	r.bitPos = 0
	return nil
}

// ReadBit reads a single bit (MSB first order).
// Returns 0 or 1, or ErrEndOfStream once the payload is exhausted.
func (r *bitReader) ReadBit() (uint32, error) {
	if r.bitPos == 8 {
		if err := r.loadByte(); err != nil {
			return 0, err
		}
	}

	bit := uint32(r.cur>>(7-r.bitPos)) & 1
	r.bitPos++
	return bit, nil
}

// ReadBits reads n bits (n <= 32), MSB first.
// Returns the bits as a uint32, or ErrEndOfStream if not enough data.
func (r *bitReader) ReadBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, fmt.Errorf("pinto: invalid bit count: %d", n)
	}

	var result uint32
	for range n {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		result = (result << 1) | bit
	}

	return result, nil
}

// Position returns the offset of the byte currently being consumed.
func (r *bitReader) Position() int {
	return r.pos
}

// HitMarker returns true if reading stopped at a marker sequence.
func (r *bitReader) HitMarker() bool {
	return r.hitMarker
}
