package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SaltSize is the salt length in bytes (256 bits of entropy).
const SaltSize = 32

// NullifierData holds the per-session inputs of a nullifier.
type NullifierData struct {
	Salt      [SaltSize]byte
	Timestamp uint64 // seconds since epoch, audit only
}

// NewNullifierData draws a fresh salt from r and stamps it with now.
// A nil reader means crypto/rand.
func NewNullifierData(r io.Reader, now time.Time) (NullifierData, error) {
	if r == nil {
		r = rand.Reader
	}
	var d NullifierData
	if _, err := io.ReadFull(r, d.Salt[:]); err != nil {
		return NullifierData{}, fmt.Errorf("failed to read salt: %w", err)
	}
	d.Timestamp = uint64(now.Unix())
	return d, nil
}

// TimestampBytes returns the big-endian timestamp encoding used in hashes.
func (d NullifierData) TimestampBytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], d.Timestamp)
	return b
}

// DeriveNullifier computes Hash(wallet ‖ salt ‖ timestamp).
func DeriveNullifier(wallet common.Address, data NullifierData) [HashSize]byte {
	ts := data.TimestampBytes()
	return Hash(wallet[:], data.Salt[:], ts[:])
}
