package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
// Transaction IDs, block hashes and the state root all use it.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// Blake2b128 returns the 16-byte BLAKE2b digest of data.
func Blake2b128(data []byte) [16]byte {
	var out [16]byte
	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only reachable with an invalid size or key.
		panic(err)
	}
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}

// Blake2b256 returns the 32-byte BLAKE2b digest of the concatenated parts.
func Blake2b256(parts ...[]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
