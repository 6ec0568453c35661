package pinto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// segmentWriter writes JPEG marker segments to an io.Writer. The first
// write error is kept and every later call becomes a no-op.
type segmentWriter struct {
	w   io.Writer
	err error
}

func newSegmentWriter(w io.Writer) *segmentWriter {
	return &segmentWriter{w: w}
}

func (sw *segmentWriter) write(p []byte) {
	if sw.err != nil {
		return
	}
	_, sw.err = sw.w.Write(p)
}

// writeMarker writes a bare 2-byte marker.
func (sw *segmentWriter) writeMarker(marker byte) {
	sw.write([]byte{0xFF, marker})
}

// writeSegment writes a marker followed by its length field and body.
func (sw *segmentWriter) writeSegment(marker byte, body []byte) {
	if sw.err != nil {
		return
	}
	if len(body)+2 > 0xFFFF {
		sw.err = fmt.Errorf("%w: segment 0x%02X too long (%d bytes)", ErrFormat, marker, len(body))
		return
	}
	var hdr [4]byte
	hdr[0], hdr[1] = 0xFF, marker
	binary.BigEndian.PutUint16(hdr[2:], uint16(len(body)+2))
	sw.write(hdr[:])
	sw.write(body)
}

// writeDQT writes one DQT segment holding every table in tables.
// Per ITU-T T.81 B.2.4.1, each table is Pq/Tq followed by 64 values.
func (sw *segmentWriter) writeDQT(tables ...*QuantTable) {
	var body []byte
	for _, t := range tables {
		body = append(body, t.Precision<<4|t.ID)
		for _, v := range t.Values {
			if t.Precision == 0 {
				body = append(body, byte(v))
			} else {
				body = binary.BigEndian.AppendUint16(body, v)
			}
		}
	}
	sw.writeSegment(markerDQT, body)
}

// writeSOF writes a baseline frame header (T.81 B.2.2).
func (sw *segmentWriter) writeSOF(width, height int, comps []Component) {
	body := make([]byte, 0, 6+3*len(comps))
	body = append(body, 8)
	body = binary.BigEndian.AppendUint16(body, uint16(height))
	body = binary.BigEndian.AppendUint16(body, uint16(width))
	body = append(body, byte(len(comps)))
	for _, c := range comps {
		body = append(body, c.ID, byte(c.H<<4|c.V), c.Tq)
	}
	sw.writeSegment(markerSOF0, body)
}

// writeDHT writes one DHT segment holding every table in tables.
func (sw *segmentWriter) writeDHT(tables ...*HuffmanTable) {
	var body []byte
	for _, t := range tables {
		body = append(body, t.Class<<4|t.ID)
		body = append(body, t.Counts[:]...)
		body = append(body, t.Symbols...)
	}
	sw.writeSegment(markerDHT, body)
}

// writeSOS writes a sequential scan header covering comps in order.
func (sw *segmentWriter) writeSOS(comps []Component) {
	body := make([]byte, 0, 4+2*len(comps))
	body = append(body, byte(len(comps)))
	for _, c := range comps {
		body = append(body, c.ID, c.Td<<4|c.Ta)
	}
	body = append(body, 0, 63, 0)
	sw.writeSegment(markerSOS, body)
}
