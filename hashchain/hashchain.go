// Package hashchain keeps the running digest that ties every cell of every
// frame of a clip together.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Algorithm names a chain hash function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ErrUnknownAlgorithm is returned for an unsupported algorithm name.
var ErrUnknownAlgorithm = errors.New("hashchain: unknown algorithm")

// ParseAlgorithm validates name. The empty string selects SHA256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// State is a running digest. It is not safe for concurrent use.
type State struct {
	alg     Algorithm
	h       hash.Hash
	updates int
}

// New returns an empty chain using alg.
func New(alg Algorithm) (*State, error) {
	alg, err := ParseAlgorithm(string(alg))
	if err != nil {
		return nil, err
	}
	s := &State{alg: alg}
	switch alg {
	case BLAKE3:
		s.h = blake3.New()
	default:
		s.h = sha256.New()
	}
	return s, nil
}

// Algorithm returns the chain's hash function.
func (s *State) Algorithm() Algorithm {
	return s.alg
}

// Update feeds p into the chain.
func (s *State) Update(p []byte) {
	s.h.Write(p)
	s.updates++
}

// Updates returns how many times Update was called.
func (s *State) Updates() int {
	return s.updates
}

// Sum returns the current digest. The chain can keep being updated.
func (s *State) Sum() []byte {
	return s.h.Sum(nil)
}

// HexDigest returns the current digest in lowercase hex.
func (s *State) HexDigest() string {
	return hex.EncodeToString(s.Sum())
}
