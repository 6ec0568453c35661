package pinto

import "fmt"

// Huffman table classes (Tc in the DHT segment).
const (
	dcClass = 0
	acClass = 1
)

const (
	maxCodeLength = 16
	maxSymbols    = 256
)

// huffmanCode is one canonical code word.
type huffmanCode struct {
	code   uint16
	length uint8
}

// HuffmanTable is a canonical Huffman table as defined by a DHT segment.
//
// Codes are assigned per ITU-T T.81 Annex C: the first code of length 1 is 0,
// codes increment within a length and shift left by one bit when moving to
// the next length.
type HuffmanTable struct {
	Class   uint8     // 0 = DC, 1 = AC
	ID      uint8     // Destination identifier (0-3)
	Counts  [16]uint8 // Number of codes of each length 1..16
	Symbols []uint8   // Symbols in order of increasing code length

	// Forward lookup per length: codes of length l are
	// firstCode[l] .. firstCode[l]+Counts[l-1]-1 and map to
	// Symbols[firstSymbol[l]:].
	firstCode   [maxCodeLength + 1]int32
	firstSymbol [maxCodeLength + 1]int32

	// Inverse lookup.
	codes   [maxSymbols]huffmanCode
	defined [maxSymbols]bool
}

// NewHuffmanTable builds the forward and inverse code maps from the 16
// length-bucket counts and the flattened symbol list.
func NewHuffmanTable(class, id uint8, counts [16]uint8, symbols []uint8) (*HuffmanTable, error) {
	total := 0
	for _, c := range counts {
		total += int(c)
	}
	if total > maxSymbols {
		return nil, fmt.Errorf("%w: huffman table %d/%d has %d symbols", ErrFormat, class, id, total)
	}
	if total != len(symbols) {
		return nil, fmt.Errorf("%w: huffman table %d/%d declares %d symbols, got %d",
			ErrFormat, class, id, total, len(symbols))
	}

	t := &HuffmanTable{
		Class:   class,
		ID:      id,
		Counts:  counts,
		Symbols: append([]uint8(nil), symbols...),
	}

	code := int32(0)
	index := int32(0)
	for l := 1; l <= maxCodeLength; l++ {
		n := int32(counts[l-1])
		t.firstCode[l] = code
		t.firstSymbol[l] = index
		if code+n > int32(1)<<uint(l) {
			return nil, fmt.Errorf("%w: huffman table %d/%d overflows %d-bit code space",
				ErrFormat, class, id, l)
		}
		for range n {
			sym := symbols[index]
			if !t.defined[sym] {
				t.codes[sym] = huffmanCode{code: uint16(code), length: uint8(l)}
				t.defined[sym] = true
			}
			code++
			index++
		}
		code <<= 1
	}

	return t, nil
}

// Lookup returns the symbol for a (code, length) pair.
func (t *HuffmanTable) Lookup(code uint16, length int) (uint8, bool) {
	if length < 1 || length > maxCodeLength {
		return 0, false
	}
	offset := int32(code) - t.firstCode[length]
	if offset < 0 || offset >= int32(t.Counts[length-1]) {
		return 0, false
	}
	return t.Symbols[t.firstSymbol[length]+offset], true
}

// Code returns the code word and its length in bits for sym.
func (t *HuffmanTable) Code(sym uint8) (uint16, int, bool) {
	if !t.defined[sym] {
		return 0, 0, false
	}
	c := t.codes[sym]
	return c.code, int(c.length), true
}

// Len returns the number of symbols in the table.
func (t *HuffmanTable) Len() int {
	return len(t.Symbols)
}

// decode reads one code word from r. It returns the decoded symbol together
// with the raw code bits so the caller can re-emit them verbatim.
func (t *HuffmanTable) decode(r *bitReader) (uint8, huffmanCode, error) {
	var code uint16
	for l := 1; l <= maxCodeLength; l++ {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, huffmanCode{}, err
		}
		code = code<<1 | uint16(bit)
		if sym, ok := t.Lookup(code, l); ok {
			return sym, huffmanCode{code: code, length: uint8(l)}, nil
		}
	}
	return 0, huffmanCode{}, fmt.Errorf("%w: no %s code in table %d matches near byte %d",
		ErrDecode, className(t.Class), t.ID, r.Position())
}

// encode writes the code word for sym to w.
func (t *HuffmanTable) encode(w *bitWriter, sym uint8) error {
	code, length, ok := t.Code(sym)
	if !ok {
		return fmt.Errorf("%w: symbol 0x%02X missing from %s table %d",
			ErrDecode, sym, className(t.Class), t.ID)
	}
	w.WriteBits(uint32(code), length)
	return nil
}

func className(class uint8) string {
	if class == dcClass {
		return "DC"
	}
	return "AC"
}
