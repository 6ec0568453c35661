package pinto

import "fmt"

// emitter re-encodes a scan while tracking, per scan component, the DC
// predictor a decoder of the output will hold.
type emitter struct {
	f       *Frame
	w       *bitWriter
	set     *RedactionSet
	emitted []int32
}

// Redact returns a copy of the frame in which every data unit of every MCU
// in set is erased: DC forced to zero and all AC coefficients dropped.
// Units outside set decode to exactly the same coefficients as before.
//
// The result is the original header bytes, the re-encoded payload, an EOI
// marker and, when record is non-nil, the encoded side-channel record. Any
// trailer already present in the frame is dropped. A nil or empty set
// reproduces the original payload byte for byte.
func (f *Frame) Redact(set *RedactionSet, record *SideChannelRecord) ([]byte, error) {
	e := &emitter{
		f:       f,
		w:       newBitWriter(f.DataEnd - f.DataOffset),
		set:     set,
		emitted: make([]int32, len(f.Scan)),
	}
	if err := f.walkScan(e.unit); err != nil {
		return nil, err
	}
	payload := e.w.Bytes()

	var trailer []byte
	if record != nil {
		var err error
		if trailer, err = record.MarshalBinary(); err != nil {
			return nil, err
		}
	}

	out := make([]byte, 0, f.DataOffset+len(payload)+2+len(trailer))
	out = append(out, f.Data[:f.DataOffset]...)
	out = append(out, payload...)
	out = append(out, 0xFF, markerEOI)
	out = append(out, trailer...)
	return out, nil
}

func (e *emitter) unit(u *dataUnit) error {
	c := e.f.Components[e.f.Scan[u.Component]]
	dc, ac := e.f.DCTables[c.Td], e.f.ACTables[c.Ta]
	prev := u.DC - u.DCDiff

	if e.set.Contains(u.MCU) {
		if err := writeDiff(e.w, dc, -e.emitted[u.Component]); err != nil {
			return e.wrap(u, err)
		}
		e.emitted[u.Component] = 0
		if err := ac.encode(e.w, symbolEOB); err != nil {
			return e.wrap(u, err)
		}
		return nil
	}

	if e.emitted[u.Component] == prev {
		e.w.WriteBits(uint32(u.dcCode.code), int(u.dcCode.length))
		e.w.WriteBits(u.dcBits, int(u.dcSize))
	} else if err := writeDiff(e.w, dc, u.DC-e.emitted[u.Component]); err != nil {
		return e.wrap(u, err)
	}
	e.emitted[u.Component] = u.DC

	for _, t := range u.ac {
		e.w.WriteBits(uint32(t.code.code), int(t.code.length))
		e.w.WriteBits(t.bits, int(t.symbol&0x0F))
	}
	return nil
}

func (e *emitter) wrap(u *dataUnit, err error) error {
	return fmt.Errorf("mcu %d component %d block %d: %w", u.MCU, u.Component, u.Block, err)
}

// writeDiff encodes a DC difference with table t.
func writeDiff(w *bitWriter, t *HuffmanTable, diff int32) error {
	size, bits := magnitude(diff)
	if err := t.encode(w, size); err != nil {
		return err
	}
	w.WriteBits(bits, int(size))
	return nil
}
