package pinto

import (
	"encoding/binary"
	"fmt"
)

// JPEG marker codes (second byte after the 0xFF prefix).
const (
	markerSOF0  byte = 0xC0 // Baseline DCT
	markerSOF1  byte = 0xC1 // Extended sequential DCT, Huffman coding
	markerDHT   byte = 0xC4 // Define Huffman table
	markerRST0  byte = 0xD0 // Restart 0
	markerRST7  byte = 0xD7 // Restart 7
	markerSOI   byte = 0xD8 // Start of image
	markerEOI   byte = 0xD9 // End of image
	markerSOS   byte = 0xDA // Start of scan
	markerDQT   byte = 0xDB // Define quantization table
	markerDRI   byte = 0xDD // Define restart interval
	markerAPP0  byte = 0xE0 // Application segment 0
	markerAPP15 byte = 0xEF // Application segment 15
	markerCOM   byte = 0xFE // Comment
)

const (
	blockSize     = 64 // An 8x8 data unit.
	maxComponents = 4
	maxTables     = 4
)

// Component describes one colour component declared in the frame header,
// together with the Huffman tables the scan header assigns to it.
type Component struct {
	ID uint8 // Component identifier (Ci)
	H  int   // Horizontal sampling factor
	V  int   // Vertical sampling factor
	Tq uint8 // Quantization table selector
	Td uint8 // DC Huffman table selector (from SOS)
	Ta uint8 // AC Huffman table selector (from SOS)
}

// QuantTable is one table of a DQT segment.
type QuantTable struct {
	Precision uint8 // 0 = 8-bit values, 1 = 16-bit values
	ID        uint8
	Values    [blockSize]uint16 // Zig-zag order
}

// Segment is an application or comment segment kept as an opaque blob.
type Segment struct {
	Marker byte
	Offset int    // Offset of the 0xFF prefix
	Data   []byte // Segment body without the length field
}

// Frame is a parsed baseline JPEG frame. The underlying bytes are never
// modified; editing operations return new byte slices.
type Frame struct {
	Data []byte

	// From SOF
	Precision  int
	Width      int
	Height     int
	Components []Component // Frame order

	// From SOS: indices into Components in scan order
	Scan []int

	QuantTables [maxTables]*QuantTable
	DCTables    [maxTables]*HuffmanTable
	ACTables    [maxTables]*HuffmanTable
	Segments    []Segment // APPn and COM

	// Byte offsets of the 0xFF prefix of each marker (-1 if absent).
	SOIOffset int
	DQTOffset int
	SOFOffset int
	DHTOffset int
	SOSOffset int
	EOIOffset int

	// DataOffset is the first byte of the entropy-coded payload and
	// DataEnd the byte after it.
	DataOffset int
	DataEnd    int
}

// ParseFrame parses a baseline JPEG frame. Parsing stops at the first EOI
// marker; any bytes after it are available through Trailer.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, fmt.Errorf("%w: missing SOI marker", ErrFormat)
	}

	f := &Frame{
		Data:      data,
		SOIOffset: 0,
		DQTOffset: -1,
		SOFOffset: -1,
		DHTOffset: -1,
		SOSOffset: -1,
		EOIOffset: -1,
	}

	pos := 2
	for {
		if pos >= len(data) {
			return nil, fmt.Errorf("%w: missing EOI marker", ErrFormat)
		}
		if data[pos] != 0xFF {
			return nil, fmt.Errorf("%w: expected marker at offset %d, got 0x%02X", ErrFormat, pos, data[pos])
		}
		// Any number of 0xFF fill bytes may precede a marker.
		for pos < len(data) && data[pos] == 0xFF {
			pos++
		}
		if pos >= len(data) {
			return nil, fmt.Errorf("%w: missing EOI marker", ErrFormat)
		}
		marker := data[pos]
		offset := pos - 1
		pos++

		switch {
		case marker == markerEOI:
			if f.SOSOffset < 0 {
				return nil, fmt.Errorf("%w: missing SOS marker", ErrFormat)
			}
			f.EOIOffset = offset
			return f, nil

		case marker == markerSOI:
			return nil, fmt.Errorf("%w: unexpected SOI at offset %d", ErrFormat, offset)

		case marker >= markerRST0 && marker <= markerRST7:
			return nil, fmt.Errorf("%w: restart marker RST%d outside entropy data", ErrFormat, marker-markerRST0)
		}

		if pos+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated segment 0x%02X at offset %d", ErrFormat, marker, offset)
		}
		segLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		if segLen < 2 || pos+segLen > len(data) {
			return nil, fmt.Errorf("%w: truncated segment 0x%02X at offset %d", ErrFormat, marker, offset)
		}
		body := data[pos+2 : pos+segLen]

		var err error
		switch {
		case marker == markerDQT:
			if f.DQTOffset < 0 {
				f.DQTOffset = offset
			}
			err = f.parseDQT(body)

		case marker == markerSOF0 || marker == markerSOF1:
			if f.SOFOffset >= 0 {
				return nil, fmt.Errorf("%w: duplicate SOF marker", ErrFormat)
			}
			f.SOFOffset = offset
			err = f.parseSOF(body)

		case marker == markerDHT:
			if f.DHTOffset < 0 {
				f.DHTOffset = offset
			}
			err = f.parseDHT(body)

		case marker == markerDRI:
			err = parseDRI(body)

		case marker == markerSOS:
			if f.SOSOffset >= 0 {
				return nil, fmt.Errorf("%w: multiple scans are not supported", ErrFormat)
			}
			f.SOSOffset = offset
			err = f.parseSOS(body)

		case marker >= markerAPP0 && marker <= markerAPP15, marker == markerCOM:
			f.Segments = append(f.Segments, Segment{Marker: marker, Offset: offset, Data: body})

		case marker >= 0xC0 && marker <= 0xCF:
			// SOF2-SOF15 and DAC: progressive, lossless or arithmetic coding.
			return nil, fmt.Errorf("%w: unsupported coding process (marker 0x%02X)", ErrFormat, marker)

		default:
			return nil, fmt.Errorf("%w: unexpected marker 0x%02X at offset %d", ErrFormat, marker, offset)
		}
		if err != nil {
			return nil, err
		}
		pos += segLen

		if marker == markerSOS {
			f.DataOffset = pos
			end, eoi, err := findPayloadEnd(data, pos)
			if err != nil {
				return nil, err
			}
			f.DataEnd = end
			pos = eoi
		}
	}
}

// findPayloadEnd scans entropy-coded data starting at pos. It returns the
// end of the payload and the offset of the marker that terminates it.
func findPayloadEnd(data []byte, pos int) (int, int, error) {
	for i := pos; i+1 < len(data); i++ {
		if data[i] != 0xFF {
			continue
		}
		next := data[i+1]
		if next == 0x00 {
			// Stuffed byte: an escaped 0xFF literal.
			i++
			continue
		}
		j := i + 1
		for j < len(data) && data[j] == 0xFF {
			j++
		}
		if j >= len(data) {
			break
		}
		if data[j] == markerEOI {
			return i, j - 1, nil
		}
		if data[j] >= markerRST0 && data[j] <= markerRST7 {
			return 0, 0, fmt.Errorf("%w: restart markers are not supported", ErrFormat)
		}
		return 0, 0, fmt.Errorf("%w: marker 0x%02X inside entropy-coded data", ErrFormat, data[j])
	}
	return 0, 0, fmt.Errorf("%w: missing EOI marker", ErrFormat)
}

// parseDQT parses one or more quantization tables.
func (f *Frame) parseDQT(body []byte) error {
	for len(body) > 0 {
		pq, tq := body[0]>>4, body[0]&0x0F
		if pq > 1 {
			return fmt.Errorf("%w: bad DQT precision %d", ErrFormat, pq)
		}
		if tq >= maxTables {
			return fmt.Errorf("%w: bad DQT destination %d", ErrFormat, tq)
		}
		size := blockSize * int(pq+1)
		if len(body) < 1+size {
			return fmt.Errorf("%w: DQT segment too short", ErrFormat)
		}
		qt := &QuantTable{Precision: pq, ID: tq}
		for i := range blockSize {
			if pq == 0 {
				qt.Values[i] = uint16(body[1+i])
			} else {
				qt.Values[i] = binary.BigEndian.Uint16(body[1+2*i:])
			}
		}
		f.QuantTables[tq] = qt
		body = body[1+size:]
	}
	return nil
}

// parseSOF parses the frame header.
func (f *Frame) parseSOF(body []byte) error {
	if len(body) < 6 {
		return fmt.Errorf("%w: SOF segment too short", ErrFormat)
	}
	f.Precision = int(body[0])
	f.Height = int(binary.BigEndian.Uint16(body[1:3]))
	f.Width = int(binary.BigEndian.Uint16(body[3:5]))
	nComp := int(body[5])

	if f.Precision != 8 && f.Precision != 12 {
		return fmt.Errorf("%w: unsupported sample precision %d", ErrFormat, f.Precision)
	}
	if f.Width == 0 || f.Height == 0 {
		return fmt.Errorf("%w: invalid frame dimensions %dx%d", ErrFormat, f.Width, f.Height)
	}
	if nComp < 1 || nComp > maxComponents {
		return fmt.Errorf("%w: invalid component count %d", ErrFormat, nComp)
	}
	if len(body) != 6+3*nComp {
		return fmt.Errorf("%w: SOF length inconsistent with %d components", ErrFormat, nComp)
	}

	f.Components = make([]Component, nComp)
	for i := range nComp {
		b := body[6+3*i:]
		c := Component{
			ID: b[0],
			H:  int(b[1] >> 4),
			V:  int(b[1] & 0x0F),
			Tq: b[2],
		}
		if c.H < 1 || c.H > 4 || c.V < 1 || c.V > 4 {
			return fmt.Errorf("%w: bad sampling factors %dx%d for component %d", ErrFormat, c.H, c.V, c.ID)
		}
		if c.Tq >= maxTables {
			return fmt.Errorf("%w: bad quantization table selector %d", ErrFormat, c.Tq)
		}
		for j := range i {
			if f.Components[j].ID == c.ID {
				return fmt.Errorf("%w: repeated component identifier %d", ErrFormat, c.ID)
			}
		}
		f.Components[i] = c
	}
	return nil
}

// parseDHT parses one or more Huffman tables.
func (f *Frame) parseDHT(body []byte) error {
	for len(body) > 0 {
		if len(body) < 17 {
			return fmt.Errorf("%w: DHT segment too short", ErrFormat)
		}
		tc, th := body[0]>>4, body[0]&0x0F
		if tc > acClass || th >= maxTables {
			return fmt.Errorf("%w: bad DHT class/destination %d/%d", ErrFormat, tc, th)
		}
		var counts [16]uint8
		copy(counts[:], body[1:17])
		total := 0
		for _, c := range counts {
			total += int(c)
		}
		if total > maxSymbols {
			return fmt.Errorf("%w: DHT table has %d symbols", ErrFormat, total)
		}
		if len(body) < 17+total {
			return fmt.Errorf("%w: DHT segment too short", ErrFormat)
		}
		t, err := NewHuffmanTable(tc, th, counts, body[17:17+total])
		if err != nil {
			return err
		}
		if tc == dcClass {
			f.DCTables[th] = t
		} else {
			f.ACTables[th] = t
		}
		body = body[17+total:]
	}
	return nil
}

// parseDRI accepts only a zero restart interval.
func parseDRI(body []byte) error {
	if len(body) != 2 {
		return fmt.Errorf("%w: DRI segment has wrong length", ErrFormat)
	}
	if binary.BigEndian.Uint16(body) != 0 {
		return fmt.Errorf("%w: restart intervals are not supported", ErrFormat)
	}
	return nil
}

// parseSOS parses the scan header and resolves its table selectors.
func (f *Frame) parseSOS(body []byte) error {
	if f.SOFOffset < 0 {
		return fmt.Errorf("%w: SOS before SOF", ErrFormat)
	}
	if len(body) < 1 {
		return fmt.Errorf("%w: SOS segment too short", ErrFormat)
	}
	nComp := int(body[0])
	if nComp < 1 || nComp > maxComponents || len(body) != 1+2*nComp+3 {
		return fmt.Errorf("%w: SOS length inconsistent with %d components", ErrFormat, nComp)
	}
	if nComp != len(f.Components) {
		return fmt.Errorf("%w: scan covers %d of %d components", ErrFormat, nComp, len(f.Components))
	}

	f.Scan = make([]int, nComp)
	for i := range nComp {
		cs := body[1+2*i]
		idx := -1
		for j, c := range f.Components {
			if c.ID == cs {
				idx = j
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: unknown component selector %d", ErrFormat, cs)
		}
		for j := range i {
			if f.Scan[j] == idx {
				return fmt.Errorf("%w: repeated component selector %d", ErrFormat, cs)
			}
		}
		td, ta := body[2+2*i]>>4, body[2+2*i]&0x0F
		if td >= maxTables || f.DCTables[td] == nil {
			return fmt.Errorf("%w: DC table %d not defined", ErrFormat, td)
		}
		if ta >= maxTables || f.ACTables[ta] == nil {
			return fmt.Errorf("%w: AC table %d not defined", ErrFormat, ta)
		}
		f.Components[idx].Td = td
		f.Components[idx].Ta = ta
		f.Scan[i] = idx
	}

	ss, se, ahal := body[1+2*nComp], body[2+2*nComp], body[3+2*nComp]
	if ss != 0 || se != 63 || ahal != 0 {
		return fmt.Errorf("%w: not a sequential scan (Ss=%d Se=%d Ah/Al=0x%02X)", ErrFormat, ss, se, ahal)
	}
	return nil
}

// Payload returns the stuffed entropy-coded data of the scan.
func (f *Frame) Payload() []byte {
	return f.Data[f.DataOffset:f.DataEnd]
}

// Trailer returns the bytes following the EOI marker.
func (f *Frame) Trailer() []byte {
	return f.Data[f.EOIOffset+2:]
}

// Image returns the frame bytes up to and including the EOI marker.
func (f *Frame) Image() []byte {
	return f.Data[:f.EOIOffset+2]
}

// maxSampling returns the largest horizontal and vertical sampling factors.
func (f *Frame) maxSampling() (int, int) {
	h, v := 1, 1
	for _, c := range f.Components {
		h = max(h, c.H)
		v = max(v, c.V)
	}
	return h, v
}

// interleaved reports whether the scan interleaves several components.
// A single-component scan is coded in 8x8 data units regardless of the
// declared sampling factors.
func (f *Frame) interleaved() bool {
	return len(f.Scan) > 1
}

// MCUSize returns the width and height in pixels of one MCU.
func (f *Frame) MCUSize() (int, int) {
	if !f.interleaved() {
		return 8, 8
	}
	h, v := f.maxSampling()
	return 8 * h, 8 * v
}

// MCUCols returns the number of MCUs per row.
func (f *Frame) MCUCols() int {
	w, _ := f.MCUSize()
	return (f.Width + w - 1) / w
}

// MCURows returns the number of MCU rows.
func (f *Frame) MCURows() int {
	_, h := f.MCUSize()
	return (f.Height + h - 1) / h
}

// MCUCount returns the total number of MCUs in the scan.
func (f *Frame) MCUCount() int {
	return f.MCUCols() * f.MCURows()
}

// BlocksPerMCU returns how many data units of the given frame component
// each MCU carries.
func (f *Frame) BlocksPerMCU(comp int) int {
	if !f.interleaved() {
		return 1
	}
	return f.Components[comp].H * f.Components[comp].V
}

// Grid returns the mapper between an R x C detection grid and this frame's
// MCU grid.
func (f *Frame) Grid(rows, cols int) (*Grid, error) {
	w, h := f.MCUSize()
	return NewGrid(rows, cols, f.Width, f.Height, w, h)
}
