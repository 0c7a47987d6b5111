// Package dna derives kitty attribute vectors from randomness and, when
// breeding, from two parents.
package dna

import (
	"encoding/binary"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
)

// HashFunc compresses arbitrary input into a DNA-sized digest.
type HashFunc func([]byte) [core.DNASize]byte

// Deriver turns seeds into DNA. It is a pure function of its inputs.
type Deriver struct {
	hash HashFunc
}

// NewDeriver returns a Deriver using hash; nil selects BLAKE2b-128.
func NewDeriver(hash HashFunc) *Deriver {
	if hash == nil {
		hash = crypto.Blake2b128
	}
	return &Deriver{hash: hash}
}

// Derive mixes the seed with the caller identity and the call's position
// inside its block, then hashes the result into a fresh DNA.
func (d *Deriver) Derive(seed, caller []byte, index uint32) core.DNA {
	buf := make([]byte, 0, len(seed)+len(caller)+4)
	buf = append(buf, seed...)
	buf = append(buf, caller...)
	buf = binary.LittleEndian.AppendUint32(buf, index)
	return core.DNA(d.hash(buf))
}

// Combine derives a mask exactly as Derive does and crosses the parents
// over with it.
func (d *Deriver) Combine(seed, caller []byte, index uint32, a, b core.DNA) core.DNA {
	return Crossover(d.Derive(seed, caller, index), a, b)
}

// Crossover takes each bit from a where the mask bit is 1 and from b where
// it is 0. Swapping a and b changes the result.
func Crossover(mask, a, b core.DNA) core.DNA {
	var out core.DNA
	for i := range out {
		out[i] = (mask[i] & a[i]) | (^mask[i] & b[i])
	}
	return out
}

// GenderFrom reduces a random draw modulo 2. An empty draw is male.
func GenderFrom(random []byte) core.Gender {
	if len(random) == 0 || random[0]%2 == 0 {
		return core.GenderMale
	}
	return core.GenderFemale
}
