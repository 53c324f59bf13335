package crypto

import (
	"crypto/sha256"
)

// HashSize is the output size of the hash primitive in bytes.
const HashSize = sha256.Size

// Hash returns SHA-256 over the ordered concatenation of parts.
func Hash(parts ...[]byte) [HashSize]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}

	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashPair hashes two 32-byte nodes as left ‖ right.
func HashPair(left, right [HashSize]byte) [HashSize]byte {
	return Hash(left[:], right[:])
}
