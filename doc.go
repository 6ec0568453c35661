// Package pinto edits baseline JPEG frames at the entropy-coded level.
//
// A frame is parsed into its marker segments, the Huffman-coded payload is
// walked data unit by data unit, and every MCU selected for redaction is
// rewritten as a flat block (DC 0, no AC terms) while all other units are
// copied bit for bit. The replacement content of the redacted cells travels
// in a side-channel record appended after the end-of-image marker.
//
// Redacting a frame:
//
//	frame, err := pinto.ParseFrame(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	grid, err := frame.Grid(rows, cols)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	set, err := grid.RedactionSet([]int{0, 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	record := &pinto.SideChannelRecord{}
//	record.Add(0, block0)
//	record.Add(5, block5)
//	out, err := frame.Redact(set, record)
//
// Reading a stored frame back:
//
//	frame, record, err := pinto.SplitFrame(out)
//	units, err := frame.DecodeCoefficients()
//
// Only sequential Huffman frames with a single scan are supported.
// Progressive, arithmetic-coded and restart-interval streams are rejected.
package pinto
