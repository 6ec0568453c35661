package pinto

import (
	"errors"
	"fmt"
)

// AC symbols with special meaning.
const (
	symbolEOB byte = 0x00 // End of block
	symbolZRL byte = 0xF0 // Run of 16 zeros
)

// acToken is one decoded AC code word and its magnitude bits.
type acToken struct {
	code   huffmanCode
	symbol uint8
	bits   uint32
}

// dataUnit holds the entropy-coded form of one 8x8 data unit as it was
// read from the payload, plus the values derived from it.
type dataUnit struct {
	MCU       int // Raster MCU index
	Component int // Index into Frame.Scan
	Block     int // Block index within the MCU for this component

	dcCode huffmanCode
	dcSize uint8
	dcBits uint32
	DCDiff int32 // Decoded DC difference
	DC     int32 // Absolute DC (predictor after this unit)

	ac []acToken
}

// scanComponent is the per-component walk state.
type scanComponent struct {
	frameIndex int
	blocks     int
	dc, ac     *HuffmanTable
	pred       int32 // True DC predictor from decoded values
}

// walkScan decodes every data unit of the scan in order and calls fn once
// for each complete unit. The dataUnit passed to fn is reused between
// calls. Reaching the end of the payload stops the walk without error; a
// partially read unit is never passed to fn.
func (f *Frame) walkScan(fn func(u *dataUnit) error) error {
	comps := make([]scanComponent, len(f.Scan))
	for i, ci := range f.Scan {
		c := f.Components[ci]
		comps[i] = scanComponent{
			frameIndex: ci,
			blocks:     f.BlocksPerMCU(ci),
			dc:         f.DCTables[c.Td],
			ac:         f.ACTables[c.Ta],
		}
	}

	maxDC, maxAC := uint8(11), uint8(10)
	if f.Precision == 12 {
		maxDC, maxAC = 15, 14
	}

	r := newBitReader(f.Payload())
	u := &dataUnit{ac: make([]acToken, 0, blockSize)}
	total := f.MCUCount()

	for m := range total {
		for si := range comps {
			sc := &comps[si]
			for b := range sc.blocks {
				u.MCU, u.Component, u.Block = m, si, b
				err := readUnit(r, sc, u, maxDC, maxAC)
				if errors.Is(err, ErrEndOfStream) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("mcu %d component %d block %d: %w", m, si, b, err)
				}
				if err := fn(u); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// readUnit reads one data unit and advances the component's predictor.
func readUnit(r *bitReader, sc *scanComponent, u *dataUnit, maxDC, maxAC uint8) error {
	sym, code, err := sc.dc.decode(r)
	if err != nil {
		return err
	}
	size := sym & 0x0F
	if sym>>4 != 0 || size > maxDC {
		return fmt.Errorf("%w: DC category %d out of range", ErrDecode, sym)
	}
	bits, err := r.ReadBits(int(size))
	if err != nil {
		return err
	}
	u.dcCode, u.dcSize, u.dcBits = code, size, bits
	u.DCDiff = extend(bits, size)

	u.ac = u.ac[:0]
	for k := 1; k < blockSize; {
		sym, code, err := sc.ac.decode(r)
		if err != nil {
			return err
		}
		run, size := int(sym>>4), sym&0x0F
		if size == 0 {
			if sym == symbolEOB {
				u.ac = append(u.ac, acToken{code: code, symbol: sym})
				break
			}
			if sym != symbolZRL {
				return fmt.Errorf("%w: invalid AC symbol 0x%02X", ErrDecode, sym)
			}
		} else if size > maxAC {
			return fmt.Errorf("%w: AC size %d out of range", ErrDecode, size)
		}
		bits, err := r.ReadBits(int(size))
		if err != nil {
			return err
		}
		// ZRL skips 16 positions, any other symbol run+1.
		k += run + 1
		if k > blockSize {
			return fmt.Errorf("%w: coefficient index %d past end of block", ErrDecode, k)
		}
		u.ac = append(u.ac, acToken{code: code, symbol: sym, bits: bits})
	}

	sc.pred += u.DCDiff
	u.DC = sc.pred
	return nil
}

// extend converts size magnitude bits into a signed value (T.81 F.2.2.1).
func extend(bits uint32, size uint8) int32 {
	if size == 0 {
		return 0
	}
	if bits < 1<<(size-1) {
		return int32(bits) - (1 << size) + 1
	}
	return int32(bits)
}

// magnitude returns the size category and magnitude bits of v.
func magnitude(v int32) (uint8, uint32) {
	a := v
	if a < 0 {
		a = -a
	}
	var size uint8
	for a > 0 {
		size++
		a >>= 1
	}
	if v < 0 {
		return size, uint32(v+(1<<size)-1) & (1<<size - 1)
	}
	return size, uint32(v)
}

// coefficients expands the unit's AC tokens into zig-zag ordered values,
// with the absolute DC at index 0.
func (u *dataUnit) coefficients() [blockSize]int32 {
	var coef [blockSize]int32
	coef[0] = u.DC
	k := 1
	for _, t := range u.ac {
		if t.symbol == symbolEOB {
			break
		}
		k += int(t.symbol >> 4)
		if t.symbol == symbolZRL {
			k++
			continue
		}
		coef[k] = extend(t.bits, t.symbol&0x0F)
		k++
	}
	return coef
}
