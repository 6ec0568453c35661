package pinto

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// SideChannelEntry is one encoded block keyed by its detection index.
type SideChannelEntry struct {
	Index uint16
	Data  []byte
}

// SideChannelRecord is the trailer appended after the EOI marker of a
// redacted frame. Its layout is
//
//	count   uint16   number of index bytes (2 per entry)
//	index   uint16   repeated count/2 times
//	entry   uint32 length + bytes, repeated in index order
//
// with every integer big-endian.
type SideChannelRecord struct {
	Entries []SideChannelEntry
}

// Add appends an entry.
func (s *SideChannelRecord) Add(index int, data []byte) {
	s.Entries = append(s.Entries, SideChannelEntry{Index: uint16(index), Data: data})
}

// Lookup returns the block stored for a detection index.
func (s *SideChannelRecord) Lookup(index int) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	for _, e := range s.Entries {
		if int(e.Index) == index {
			return e.Data, true
		}
	}
	return nil, false
}

// Indices returns the detection indices present in the record.
func (s *SideChannelRecord) Indices() []int {
	if s == nil {
		return nil
	}
	out := make([]int, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = int(e.Index)
	}
	return out
}

// MarshalBinary encodes the record. Entries are written in ascending index
// order; duplicate indices are rejected.
func (s *SideChannelRecord) MarshalBinary() ([]byte, error) {
	entries := make([]SideChannelEntry, len(s.Entries))
	copy(entries, s.Entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })

	if 2*len(entries) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d side-channel entries", ErrFormat, len(entries))
	}
	size := 2 + 2*len(entries)
	for i, e := range entries {
		if i > 0 && entries[i-1].Index == e.Index {
			return nil, fmt.Errorf("%w: duplicate side-channel index %d", ErrFormat, e.Index)
		}
		if uint64(len(e.Data)) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: side-channel block %d too large", ErrFormat, e.Index)
		}
		size += 4 + len(e.Data)
	}

	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint16(out, uint16(2*len(entries)))
	for _, e := range entries {
		out = binary.BigEndian.AppendUint16(out, e.Index)
	}
	for _, e := range entries {
		out = binary.BigEndian.AppendUint32(out, uint32(len(e.Data)))
		out = append(out, e.Data...)
	}
	return out, nil
}

// ParseSideChannel decodes a side-channel record. Entry data aliases data.
func ParseSideChannel(data []byte) (*SideChannelRecord, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: side-channel record truncated", ErrDecode)
	}
	count := int(binary.BigEndian.Uint16(data))
	if count%2 != 0 {
		return nil, fmt.Errorf("%w: odd side-channel index byte count %d", ErrDecode, count)
	}
	pos := 2
	if pos+count > len(data) {
		return nil, fmt.Errorf("%w: side-channel indices truncated", ErrDecode)
	}

	rec := &SideChannelRecord{Entries: make([]SideChannelEntry, count/2)}
	for i := range rec.Entries {
		rec.Entries[i].Index = binary.BigEndian.Uint16(data[pos:])
		pos += 2
	}
	for i := range rec.Entries {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("%w: side-channel entry %d truncated", ErrDecode, i)
		}
		n := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if n < 0 || n > len(data)-pos {
			return nil, fmt.Errorf("%w: side-channel entry %d truncated", ErrDecode, i)
		}
		rec.Entries[i].Data = data[pos : pos+n]
		pos += n
	}
	if pos != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after side-channel record", ErrDecode, len(data)-pos)
	}
	return rec, nil
}

// SplitFrame separates a stored frame into its image bytes (through EOI)
// and its side-channel record. The record is nil when the frame carries no
// trailer.
func SplitFrame(data []byte) (*Frame, *SideChannelRecord, error) {
	f, err := ParseFrame(data)
	if err != nil {
		return nil, nil, err
	}
	trailer := f.Trailer()
	if len(trailer) == 0 {
		return f, nil, nil
	}
	rec, err := ParseSideChannel(trailer)
	if err != nil {
		return nil, nil, err
	}
	return f, rec, nil
}
