package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	pinto "github.com/ajroetker/go-pinto"
	"github.com/ajroetker/go-pinto/watermark"
)

// inspect prints the structure of one stored frame.
func inspect(out io.Writer, data []byte, rows, cols int) error {
	f, rec, err := pinto.SplitFrame(data)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "size\t%dx%d, %d-bit, %d bytes\n", f.Width, f.Height, f.Precision, len(data))
	for i, c := range f.Components {
		fmt.Fprintf(tw, "component %d\tid %d, sampling %dx%d, quant %d, huffman dc %d ac %d\n",
			i, c.ID, c.H, c.V, c.Tq, c.Td, c.Ta)
	}
	for _, s := range f.Segments {
		fmt.Fprintf(tw, "segment\tmarker 0x%02X at %d, %d bytes\n", s.Marker, s.Offset, len(s.Data))
	}
	mw, mh := f.MCUSize()
	fmt.Fprintf(tw, "mcu\t%dx%d, %d cols x %d rows, %d total\n", mw, mh, f.MCUCols(), f.MCURows(), f.MCUCount())
	fmt.Fprintf(tw, "payload\t%d bytes at %d\n", len(f.Payload()), f.DataOffset)
	units, err := f.DecodeCoefficients()
	if err != nil {
		return err
	}
	zero := 0
	for i := range units {
		if units[i].IsZero() {
			zero++
		}
	}
	fmt.Fprintf(tw, "data units\t%d decoded, %d flat\n", len(units), zero)

	grid, err := f.Grid(rows, cols)
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "grid\t%dx%d cells\n", grid.Rows, grid.Cols)
	if rec == nil {
		fmt.Fprintf(tw, "side channel\tnone\n")
		return nil
	}
	fmt.Fprintf(tw, "side channel\t%d entries, %d bytes\n", len(rec.Entries), len(f.Trailer()))
	for _, e := range rec.Entries {
		rect, err := grid.CellRect(int(e.Index))
		if err != nil {
			fmt.Fprintf(tw, "  cell %d\toutside grid, %d bytes\n", e.Index, len(e.Data))
			continue
		}
		b, err := watermark.DecodeBlock(e.Data)
		if err != nil {
			fmt.Fprintf(tw, "  cell %d\t%v, %d bytes, undecodable: %v\n", e.Index, rect, len(e.Data), err)
			continue
		}
		fp, _ := watermark.Extract(b)
		fmt.Fprintf(tw, "  cell %d\t%v, block %dx%d, %d bytes, imprint %x\n",
			e.Index, rect, b.Width, b.Height, len(e.Data), fp[:])
	}
	return nil
}
