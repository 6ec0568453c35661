package pinto

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestStandardTableCodes(t *testing.T) {
	tests := []struct {
		name   string
		class  uint8
		id     uint8
		sym    uint8
		code   uint16
		length int
	}{
		{"DC luminance 0", dcClass, 0, 0, 0b00, 2},
		{"DC luminance 1", dcClass, 0, 1, 0b010, 3},
		{"DC luminance 11", dcClass, 0, 11, 0b111111110, 9},
		{"DC chrominance 0", dcClass, 1, 0, 0b00, 2},
		{"DC chrominance 11", dcClass, 1, 11, 0b11111111110, 11},
		{"AC luminance EOB", acClass, 0, symbolEOB, 0b1010, 4},
		{"AC luminance 0/1", acClass, 0, 0x01, 0b00, 2},
		{"AC luminance ZRL", acClass, 0, symbolZRL, 0b11111111001, 11},
		{"AC chrominance EOB", acClass, 1, symbolEOB, 0b00, 2},
		{"AC chrominance ZRL", acClass, 1, symbolZRL, 0b1111111010, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := standardTable(tt.class, tt.id)
			code, length, ok := table.Code(tt.sym)
			if !ok {
				t.Fatalf("Code(0x%02X) not found", tt.sym)
			}
			if code != tt.code || length != tt.length {
				t.Errorf("Code(0x%02X) = %b/%d, want %b/%d", tt.sym, code, length, tt.code, tt.length)
			}
			sym, ok := table.Lookup(tt.code, tt.length)
			if !ok || sym != tt.sym {
				t.Errorf("Lookup(%b, %d) = 0x%02X, %v; want 0x%02X", tt.code, tt.length, sym, ok, tt.sym)
			}
		})
	}
}

func TestNewHuffmanTable_Errors(t *testing.T) {
	tests := []struct {
		name    string
		counts  [16]uint8
		symbols []uint8
	}{
		{
			name:    "count mismatch",
			counts:  [16]uint8{0, 2},
			symbols: []uint8{1},
		},
		{
			name:    "code space overflow",
			counts:  [16]uint8{3},
			symbols: []uint8{1, 2, 3},
		},
		{
			name:    "too many symbols",
			counts:  [16]uint8{15: 255, 14: 2},
			symbols: make([]uint8, 257),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHuffmanTable(acClass, 0, tt.counts, tt.symbols)
			if !errors.Is(err, ErrFormat) {
				t.Errorf("NewHuffmanTable() error = %v, want ErrFormat", err)
			}
		})
	}
}

func TestHuffmanDecode_NoMatch(t *testing.T) {
	// A table with a single 1-bit code "0": a run of ones never matches.
	table, err := NewHuffmanTable(dcClass, 0, [16]uint8{1}, []uint8{5})
	if err != nil {
		t.Fatal(err)
	}
	r := newBitReader([]byte{0xFF, 0x00, 0xFF, 0x00, 0xFF, 0x00})
	if _, _, err := table.decode(r); !errors.Is(err, ErrDecode) {
		t.Errorf("decode() error = %v, want ErrDecode", err)
	}

	w := newBitWriter(1)
	if err := table.encode(w, 6); !errors.Is(err, ErrDecode) {
		t.Errorf("encode() of missing symbol error = %v, want ErrDecode", err)
	}
}

// drawTable draws a random canonical table that fits its code space.
func drawTable(t *rapid.T) *HuffmanTable {
	var counts [16]uint8
	total := 0
	space := 1 // codes still free at the current length, before shifting
	for l := range 16 {
		space *= 2
		n := rapid.IntRange(0, min(space, maxSymbols-total, 255)).Draw(t, "count")
		counts[l] = uint8(n)
		total += n
		space -= n
	}
	if total == 0 {
		counts[0] = 1
		total = 1
	}
	perm := rapid.Permutation(func() []uint8 {
		s := make([]uint8, maxSymbols)
		for i := range s {
			s[i] = uint8(i)
		}
		return s
	}()).Draw(t, "symbols")

	table, err := NewHuffmanTable(acClass, 0, counts, perm[:total])
	if err != nil {
		t.Fatalf("NewHuffmanTable: %v", err)
	}
	return table
}

func TestHuffmanRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		table := drawTable(t)
		msg := rapid.SliceOfN(rapid.SampledFrom(table.Symbols), 0, 200).Draw(t, "message")

		w := newBitWriter(len(msg))
		for _, sym := range msg {
			if err := table.encode(w, sym); err != nil {
				t.Fatalf("encode(0x%02X): %v", sym, err)
			}
		}

		r := newBitReader(w.Bytes())
		for i, want := range msg {
			got, code, err := table.decode(r)
			if err != nil {
				t.Fatalf("symbol %d: decode: %v", i, err)
			}
			if got != want {
				t.Fatalf("symbol %d: got 0x%02X, want 0x%02X", i, got, want)
			}
			if c, l, _ := table.Code(got); c != code.code || l != int(code.length) {
				t.Fatalf("symbol %d: raw code %b/%d does not match inverse %b/%d", i, code.code, code.length, c, l)
			}
		}
	})
}
