package pinto

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"pgregory.net/rapid"
)

// buildGrayFrame assembles a single-component 8-bit frame with the given
// DC and AC tables and raw entropy-coded payload.
func buildGrayFrame(t testing.TB, width, height int, dc, ac *HuffmanTable, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	sw := newSegmentWriter(&buf)
	comps := []Component{{ID: 1, H: 1, V: 1}}
	sw.writeMarker(markerSOI)
	sw.writeDQT(&QuantTable{Values: stdLuminanceQuant})
	sw.writeSOF(width, height, comps)
	sw.writeDHT(dc, ac)
	sw.writeSOS(comps)
	sw.write(payload)
	sw.writeMarker(markerEOI)
	if sw.err != nil {
		t.Fatal(sw.err)
	}
	return buf.Bytes()
}

func mustTable(t testing.TB, class uint8, counts [16]uint8, symbols ...uint8) *HuffmanTable {
	t.Helper()
	table, err := NewHuffmanTable(class, 0, counts, symbols)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestRedact_EmptySetIsIdentity(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"gray", encodeJPEG(t, grayPattern(37, 21))},
		{"color 4:2:0", encodeJPEG(t, testPattern(50, 33))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustParse(t, tt.data)
			got, err := f.Redact(nil, nil)
			if err != nil {
				t.Fatalf("Redact: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Error("Redact with an empty set changed the frame")
			}
		})
	}
}

func TestRedact_TwoComponentScenario(t *testing.T) {
	data, original := twoComponentFrame(t)
	f := mustParse(t, data)

	g, err := f.Grid(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	set, err := g.RedactionSet([]int{0})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []int{0, 1, 4, 5} {
		if !set.Contains(m) {
			t.Fatalf("redaction set missing MCU %d", m)
		}
	}

	rec := &SideChannelRecord{}
	rec.Add(0, []byte("block zero"))
	out, err := f.Redact(set, rec)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}

	rf, gotRec, err := SplitFrame(out)
	if err != nil {
		t.Fatalf("SplitFrame: %v", err)
	}
	if gotRec == nil || len(gotRec.Entries) != 1 || gotRec.Entries[0].Index != 0 {
		t.Fatalf("side channel = %+v, want one entry tagged 0", gotRec)
	}
	if string(gotRec.Entries[0].Data) != "block zero" {
		t.Errorf("side channel data = %q", gotRec.Entries[0].Data)
	}

	units, err := rf.DecodeCoefficients()
	if err != nil {
		t.Fatalf("DecodeCoefficients: %v", err)
	}
	if len(units) != len(original) {
		t.Fatalf("decoded %d units, want %d", len(units), len(original))
	}
	for i, u := range units {
		if set.Contains(u.MCU) {
			if !u.IsZero() {
				t.Errorf("unit %d (mcu %d) not erased: %v", i, u.MCU, u.Coef)
			}
			continue
		}
		if u.Coef != original[i].Coef {
			t.Errorf("unit %d (mcu %d) changed", i, u.MCU)
		}
	}
}

func TestRedact_DecodesWithStandardDecoder(t *testing.T) {
	src := encodeJPEG(t, testPattern(48, 48))
	f := mustParse(t, src)
	g, err := f.Grid(3, 3)
	if err != nil {
		t.Fatal(err)
	}
	set, err := g.RedactionSet([]int{4})
	if err != nil {
		t.Fatal(err)
	}
	out, err := f.Redact(set, nil)
	if err != nil {
		t.Fatal(err)
	}

	before, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	after, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("redacted frame does not decode: %v", err)
	}

	cell, _ := g.CellRect(4)
	for y := range 48 {
		for x := range 48 {
			p := image.Pt(x, y)
			if p.In(cell) {
				if c := after.(*image.YCbCr).YCbCrAt(x, y); c.Y != 128 || c.Cb != 128 || c.Cr != 128 {
					t.Fatalf("redacted pixel %v = %+v, want mid-gray", p, c)
				}
				continue
			}
			if before.At(x, y) != after.At(x, y) {
				t.Fatalf("pixel %v changed outside the redacted cell", p)
			}
		}
	}
}

func TestRedact_Completeness(t *testing.T) {
	src := encodeJPEG(t, testPattern(64, 48))
	f := mustParse(t, src)
	original, err := f.DecodeCoefficients()
	if err != nil {
		t.Fatal(err)
	}

	rapid.Check(t, func(t *rapid.T) {
		set := NewRedactionSet(f.MCUCount())
		for _, m := range rapid.SliceOfDistinct(rapid.IntRange(0, f.MCUCount()-1), rapid.ID[int]).Draw(t, "mcus") {
			set.Add(m)
		}

		out, err := f.Redact(set, nil)
		if err != nil {
			t.Fatalf("Redact: %v", err)
		}
		_, units, err := DecodeCoefficients(out)
		if err != nil {
			t.Fatalf("DecodeCoefficients: %v", err)
		}
		if len(units) != len(original) {
			t.Fatalf("decoded %d units, want %d", len(units), len(original))
		}
		for i, u := range units {
			switch {
			case set.Contains(u.MCU) && !u.IsZero():
				t.Fatalf("unit %d in redacted mcu %d not zero", i, u.MCU)
			case !set.Contains(u.MCU) && u.Coef != original[i].Coef:
				t.Fatalf("unit %d in mcu %d changed", i, u.MCU)
			}
		}
	})
}

func TestRedact_DropsExistingTrailer(t *testing.T) {
	data, _ := twoComponentFrame(t)
	withTrailer := append(append([]byte(nil), data...), 0x00, 0x00)

	out, err := mustParse(t, withTrailer).Redact(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, data) {
		t.Error("trailer was not dropped")
	}
}

func TestRedact_TruncatedPayload(t *testing.T) {
	dc := mustTable(t, dcClass, [16]uint8{1}, 0)
	ac := mustTable(t, acClass, [16]uint8{1}, symbolEOB)
	// 16x8 frame has two MCUs; the payload holds one unit ("0" "0").
	data := buildGrayFrame(t, 16, 8, dc, ac, []byte{0x3F})
	f := mustParse(t, data)

	units, err := f.DecodeCoefficients()
	if err != nil {
		t.Fatalf("DecodeCoefficients: %v", err)
	}
	if len(units) != 1 {
		t.Errorf("decoded %d units, want 1", len(units))
	}
	out, err := f.Redact(nil, nil)
	if err != nil {
		t.Fatalf("Redact: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("Redact changed a truncated frame: % X", out)
	}
}

func TestRedact_DecodeErrors(t *testing.T) {
	dcZero := mustTable(t, dcClass, [16]uint8{1}, 0)

	tests := []struct {
		name    string
		dc, ac  *HuffmanTable
		payload []byte
		redact  []int
	}{
		{
			name:    "size-0 AC symbol that is not a sentinel",
			dc:      dcZero,
			ac:      mustTable(t, acClass, [16]uint8{2}, symbolEOB, 0x10),
			payload: []byte{0x7F}, // DC "0", AC "1"
		},
		{
			name:    "coefficient index past end of block",
			dc:      dcZero,
			ac:      mustTable(t, acClass, [16]uint8{1}, symbolZRL),
			payload: []byte{0x07}, // DC "0", four ZRL
		},
		{
			name:    "DC category out of range",
			dc:      mustTable(t, dcClass, [16]uint8{1}, 12),
			ac:      mustTable(t, acClass, [16]uint8{1}, symbolEOB),
			payload: []byte{0x00, 0x00, 0x00},
		},
		{
			name: "re-encoded DC category missing from table",
			// DC "0" is category 0 and "1" category 3.
			dc: mustTable(t, dcClass, [16]uint8{2}, 0, 3),
			ac: mustTable(t, acClass, [16]uint8{1}, symbolEOB),
			// Two units of DC difference +4: "1" "100" "0" twice.
			payload: []byte{0xC6, 0x3F},
			// Erasing the first forces a difference of 8 (category 4).
			redact: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustParse(t, buildGrayFrame(t, 16, 8, tt.dc, tt.ac, tt.payload))
			set := NewRedactionSet(f.MCUCount())
			for _, m := range tt.redact {
				set.Add(m)
			}
			if _, err := f.Redact(set, nil); !errors.Is(err, ErrDecode) {
				t.Errorf("Redact() error = %v, want ErrDecode", err)
			}
		})
	}
}
