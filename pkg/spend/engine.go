package spend

import (
	"crypto/subtle"
	"fmt"

	"spendzk/pkg/crypto"
	"spendzk/pkg/merkle"
)

// Verify runs the three spend checks in order and stops at the first
// failure. It performs no I/O and holds no state.
func Verify(in *VerificationInput) (*PublicOutputs, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil input", ErrMalformedInput)
	}
	if err := in.MerkleProof.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	note := &in.Note

	// 1. Nullifier
	if !VerifyNullifier(note) {
		return nil, ErrInvalidNullifier
	}

	// 2. Amount commitment
	if !VerifyAmount(&note.AmountCommitment, in.ExpectedAmount) {
		return nil, ErrInvalidAmountCommitment
	}

	// 3. Merkle membership
	leaf := LeafHash(note)
	ok, err := merkle.Verify(leaf[:], in.MerkleProof, in.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if !ok {
		return nil, ErrInvalidMerkleProof
	}

	return &PublicOutputs{
		MerkleRoot: in.MerkleRoot,
		Nullifier:  note.Nullifier,
		Amount:     in.ExpectedAmount,
	}, nil
}

// VerifyNullifier recomputes the note's nullifier from its wallet and
// nullifier data.
func VerifyNullifier(note *SpendNote) bool {
	computed := crypto.DeriveNullifier(note.Wallet, note.NullifierData)
	return subtle.ConstantTimeCompare(computed[:], note.Nullifier[:]) == 1
}

// VerifyAmount checks that the commitment opens to its claimed amount and
// that this amount is the one the caller expects.
func VerifyAmount(c *crypto.AmountCommitment, expected uint64) bool {
	if c.Amount != expected {
		return false
	}
	return c.Verify()
}

// LeafHash is the accumulator leaf of a note:
// Hash(wallet ‖ nullifier ‖ commitment ‖ blinding ‖ salt ‖ timestamp).
func LeafHash(note *SpendNote) [crypto.HashSize]byte {
	commitment := note.AmountCommitment.CompressedCommitment()
	blinding := note.AmountCommitment.BlindingBytes()
	ts := note.NullifierData.TimestampBytes()
	return crypto.Hash(
		note.Wallet[:],
		note.Nullifier[:],
		commitment[:],
		blinding[:],
		note.NullifierData.Salt[:],
		ts[:],
	)
}
