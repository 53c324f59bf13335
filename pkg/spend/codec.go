package spend

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"spendzk/pkg/crypto"
	"spendzk/pkg/merkle"
)

// Fixed part of the input encoding, excluding the path and indices.
const fixedInputSize = 20 + 32 + crypto.CommitmentSize + 8 + crypto.ScalarSize +
	crypto.SaltSize + 8 + 4 + 32 + 8

// EncodeInput serializes in for the proving capability. Field order:
// wallet, nullifier, commitment, amount, blinding, salt, timestamp,
// path length, path, indices, root, expected amount. Integers are big-endian.
func EncodeInput(in *VerificationInput) []byte {
	n := len(in.MerkleProof.Path)
	var buf bytes.Buffer
	buf.Grow(fixedInputSize + n*(crypto.HashSize+1))

	note := &in.Note
	commitment := note.AmountCommitment.CompressedCommitment()
	blinding := note.AmountCommitment.BlindingBytes()

	buf.Write(note.Wallet[:])
	buf.Write(note.Nullifier[:])
	buf.Write(commitment[:])
	writeUint64(&buf, note.AmountCommitment.Amount)
	buf.Write(blinding[:])
	buf.Write(note.NullifierData.Salt[:])
	writeUint64(&buf, note.NullifierData.Timestamp)

	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(n))
	buf.Write(lenBytes[:])
	for _, sibling := range in.MerkleProof.Path {
		buf.Write(sibling[:])
	}
	for _, bit := range in.MerkleProof.Indices {
		if bit {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}

	buf.Write(in.MerkleRoot[:])
	writeUint64(&buf, in.ExpectedAmount)
	return buf.Bytes()
}

// DecodeInput parses an encoding produced by EncodeInput. Every structural
// problem is reported as ErrMalformedInput.
func DecodeInput(data []byte) (*VerificationInput, error) {
	r := &reader{buf: data}
	in := &VerificationInput{}
	note := &in.Note

	r.read(note.Wallet[:])
	r.read(note.Nullifier[:])

	var commitment [crypto.CommitmentSize]byte
	r.read(commitment[:])
	note.AmountCommitment.Amount = r.readUint64()
	var blinding [crypto.ScalarSize]byte
	r.read(blinding[:])
	r.read(note.NullifierData.Salt[:])
	note.NullifierData.Timestamp = r.readUint64()

	n := r.readUint32()
	if r.err == nil && uint64(n)*(crypto.HashSize+1) > uint64(len(r.buf)) {
		return nil, fmt.Errorf("%w: path length %d exceeds payload", ErrMalformedInput, n)
	}
	if r.err == nil {
		in.MerkleProof = merkle.Proof{
			Path:    make([][crypto.HashSize]byte, n),
			Indices: make([]bool, n),
		}
		for i := range in.MerkleProof.Path {
			r.read(in.MerkleProof.Path[i][:])
		}
		for i := range in.MerkleProof.Indices {
			switch b := r.readByte(); b {
			case 0:
			case 1:
				in.MerkleProof.Indices[i] = true
			default:
				if r.err == nil {
					r.err = fmt.Errorf("index %d has value %d", i, b)
				}
			}
		}
	}

	r.read(in.MerkleRoot[:])
	in.ExpectedAmount = r.readUint64()

	if r.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, r.err)
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedInput, len(r.buf))
	}

	if _, err := note.AmountCommitment.Commitment.SetBytes(commitment[:]); err != nil {
		return nil, fmt.Errorf("%w: commitment: %v", ErrMalformedInput, err)
	}
	if err := note.AmountCommitment.BlindingFactor.SetBytesCanonical(blinding[:]); err != nil {
		return nil, fmt.Errorf("%w: blinding factor: %v", ErrMalformedInput, err)
	}
	return in, nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// reader consumes a byte slice and remembers the first short read.
type reader struct {
	buf []byte
	err error
}

func (r *reader) read(dst []byte) {
	if r.err != nil {
		return
	}
	if len(r.buf) < len(dst) {
		r.err = fmt.Errorf("unexpected end of input: need %d bytes, have %d", len(dst), len(r.buf))
		return
	}
	copy(dst, r.buf[:len(dst)])
	r.buf = r.buf[len(dst):]
}

func (r *reader) readByte() byte {
	var b [1]byte
	r.read(b[:])
	return b[0]
}

func (r *reader) readUint32() uint32 {
	var b [4]byte
	r.read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func (r *reader) readUint64() uint64 {
	var b [8]byte
	r.read(b[:])
	return binary.BigEndian.Uint64(b[:])
}
