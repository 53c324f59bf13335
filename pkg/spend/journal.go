package spend

import (
	"encoding/binary"
	"fmt"
)

// JournalSize is the length of the public-output encoding:
// root [0,32), nullifier [32,64), amount [64,72) as little-endian uint64.
const JournalSize = 72

// EncodeJournal lays out the public outputs.
func EncodeJournal(out *PublicOutputs) []byte {
	buf := make([]byte, JournalSize)
	copy(buf[0:32], out.MerkleRoot[:])
	copy(buf[32:64], out.Nullifier[:])
	binary.LittleEndian.PutUint64(buf[64:72], out.Amount)
	return buf
}

// DecodeJournal parses a public-output encoding.
func DecodeJournal(buf []byte) (*PublicOutputs, error) {
	if len(buf) != JournalSize {
		return nil, fmt.Errorf("invalid journal length: got %d, want %d", len(buf), JournalSize)
	}
	out := &PublicOutputs{}
	copy(out.MerkleRoot[:], buf[0:32])
	copy(out.Nullifier[:], buf[32:64])
	out.Amount = binary.LittleEndian.Uint64(buf[64:72])
	return out, nil
}
