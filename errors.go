package pinto

import "errors"

var (
	// ErrFormat reports malformed segment structure: a missing required
	// segment, an invalid table or an unsupported marker.
	ErrFormat = errors.New("pinto: format error")
	// ErrDecode reports entropy data that does not resolve against the
	// frame's Huffman tables, or side-channel bookkeeping that does not add up.
	ErrDecode = errors.New("pinto: decode error")
	// ErrEndOfStream signals that the entropy payload is exhausted. The
	// scan walker treats it as normal termination.
	ErrEndOfStream = errors.New("pinto: end of stream")
	// ErrIndexOutOfRange reports a detection index outside the configured grid.
	ErrIndexOutOfRange = errors.New("pinto: detection index out of range")
)
