package pinto

import (
	"bytes"
	"fmt"
	"io"
)

// EncodeOptions describes the frame produced by EncodeCoefficients.
type EncodeOptions struct {
	Width, Height int

	// Components lists the frame components with their ID and sampling
	// factors. Table selectors are assigned by the encoder: the first
	// component uses the luminance tables, the others the chrominance
	// tables. Nil means a single 1x1 component.
	Components []Component
}

// EncodeCoefficients writes a baseline JPEG frame holding the given data
// units. Units must be supplied in scan order, one per data unit, with
// absolute DC values; the frame uses the ITU-T T.81 Annex K example
// quantization and Huffman tables.
func EncodeCoefficients(w io.Writer, units []CodingUnit, opts *EncodeOptions) error {
	f, err := newEncodeFrame(opts)
	if err != nil {
		return err
	}

	perMCU := 0
	for _, ci := range f.Scan {
		perMCU += f.BlocksPerMCU(ci)
	}
	if want := perMCU * f.MCUCount(); len(units) != want {
		return fmt.Errorf("%w: got %d data units, frame needs %d", ErrFormat, len(units), want)
	}

	bw := newBitWriter(len(units) * 8)
	pred := make([]int32, len(f.Scan))
	i := 0
	for m := range f.MCUCount() {
		for si, ci := range f.Scan {
			for b := range f.BlocksPerMCU(ci) {
				u := &units[i]
				i++
				if u.MCU != m || u.Component != si || u.Block != b {
					return fmt.Errorf("%w: unit %d is (mcu %d, component %d, block %d), want (%d, %d, %d)",
						ErrFormat, i-1, u.MCU, u.Component, u.Block, m, si, b)
				}
				c := f.Components[ci]
				if err := encodeUnit(bw, f.DCTables[c.Td], f.ACTables[c.Ta], &u.Coef, pred[si]); err != nil {
					return fmt.Errorf("unit %d: %w", i-1, err)
				}
				pred[si] = u.Coef[0]
			}
		}
	}

	var buf bytes.Buffer
	sw := newSegmentWriter(&buf)
	sw.writeMarker(markerSOI)
	sw.writeDQT(f.quantTables()...)
	sw.writeSOF(f.Width, f.Height, f.Components)
	sw.writeDHT(f.huffmanTables()...)
	sw.writeSOS(f.Components)
	sw.write(bw.Bytes())
	sw.writeMarker(markerEOI)
	if sw.err != nil {
		return sw.err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// newEncodeFrame validates opts and returns the frame geometry and tables
// the encoder writes.
func newEncodeFrame(opts *EncodeOptions) (*Frame, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: missing encode options", ErrFormat)
	}
	if opts.Width < 1 || opts.Width > 0xFFFF || opts.Height < 1 || opts.Height > 0xFFFF {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrFormat, opts.Width, opts.Height)
	}
	comps := opts.Components
	if comps == nil {
		comps = []Component{{ID: 1, H: 1, V: 1}}
	}
	if len(comps) < 1 || len(comps) > maxComponents {
		return nil, fmt.Errorf("%w: %d components", ErrFormat, len(comps))
	}

	f := &Frame{
		Precision:  8,
		Width:      opts.Width,
		Height:     opts.Height,
		Components: make([]Component, len(comps)),
		Scan:       make([]int, len(comps)),
	}
	seen := map[uint8]bool{}
	for i, c := range comps {
		if c.H < 1 || c.H > 4 || c.V < 1 || c.V > 4 {
			return nil, fmt.Errorf("%w: invalid sampling factors %dx%d for component %d", ErrFormat, c.H, c.V, c.ID)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%w: duplicate component id %d", ErrFormat, c.ID)
		}
		seen[c.ID] = true

		var sel uint8
		if i > 0 {
			sel = 1
		}
		f.Components[i] = Component{ID: c.ID, H: c.H, V: c.V, Tq: sel, Td: sel, Ta: sel}
		f.Scan[i] = i
	}

	f.QuantTables[0] = &QuantTable{ID: 0, Values: stdLuminanceQuant}
	f.DCTables[0] = standardTable(dcClass, 0)
	f.ACTables[0] = standardTable(acClass, 0)
	if len(comps) > 1 {
		f.QuantTables[1] = &QuantTable{ID: 1, Values: stdChrominanceQuant}
		f.DCTables[1] = standardTable(dcClass, 1)
		f.ACTables[1] = standardTable(acClass, 1)
	}
	return f, nil
}

func (f *Frame) quantTables() []*QuantTable {
	var out []*QuantTable
	for _, t := range f.QuantTables {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (f *Frame) huffmanTables() []*HuffmanTable {
	var out []*HuffmanTable
	for _, set := range [][maxTables]*HuffmanTable{f.DCTables, f.ACTables} {
		for _, t := range set {
			if t != nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// encodeUnit writes one data unit: the DC difference against pred, then
// the AC coefficients run-length coded with ZRL and EOB.
func encodeUnit(w *bitWriter, dc, ac *HuffmanTable, coef *[blockSize]int32, pred int32) error {
	size, _ := magnitude(coef[0] - pred)
	if size > 11 {
		return fmt.Errorf("%w: DC difference %d out of range", ErrFormat, coef[0]-pred)
	}
	if err := writeDiff(w, dc, coef[0]-pred); err != nil {
		return err
	}

	run := 0
	for k := 1; k < blockSize; k++ {
		if coef[k] == 0 {
			run++
			continue
		}
		for run > 15 {
			if err := ac.encode(w, symbolZRL); err != nil {
				return err
			}
			run -= 16
		}
		size, bits := magnitude(coef[k])
		if size > 10 {
			return fmt.Errorf("%w: AC coefficient %d out of range", ErrFormat, coef[k])
		}
		if err := ac.encode(w, byte(run)<<4|size); err != nil {
			return err
		}
		w.WriteBits(bits, int(size))
		run = 0
	}
	if run > 0 {
		return ac.encode(w, symbolEOB)
	}
	return nil
}
