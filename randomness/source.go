// Package randomness supplies the per-call seeds that kitty minting mixes
// into DNA and gender.
package randomness

import (
	"encoding/binary"

	"github.com/tolelom/kittychain/crypto"
)

// Source yields an unpredictable-to-callers but replayable byte string for
// the given subject.
type Source interface {
	Random(subject []byte) []byte
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(subject []byte) []byte

func (f SourceFunc) Random(subject []byte) []byte { return f(subject) }

// BlockSource seeds from the parent block hash and the height being built,
// so every node executing the block derives the same values.
type BlockSource struct {
	seed [32]byte
}

// NewBlockSource binds a source to the block at height whose parent is prevHash.
func NewBlockSource(prevHash string, height int64) *BlockSource {
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], uint64(height))
	return &BlockSource{seed: crypto.Blake2b256([]byte("kittychain/random"), []byte(prevHash), h[:])}
}

// Random returns BLAKE2b-256(seed ‖ subject).
func (s *BlockSource) Random(subject []byte) []byte {
	out := crypto.Blake2b256(s.seed[:], subject)
	return out[:]
}
