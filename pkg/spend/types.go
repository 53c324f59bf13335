// Package spend implements the spend verification engine: a pure function
// that checks a note's nullifier, amount commitment and Merkle membership and
// yields only the public root, nullifier and amount.
package spend

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"spendzk/pkg/crypto"
	"spendzk/pkg/merkle"
)

// Error types
var (
	ErrInvalidNullifier        = errors.New("invalid nullifier")
	ErrInvalidAmountCommitment = errors.New("invalid amount commitment")
	ErrInvalidMerkleProof      = errors.New("invalid merkle proof")
	ErrMalformedInput          = errors.New("malformed input")
)

// SpendNote is the note being spent.
type SpendNote struct {
	Wallet           common.Address
	Nullifier        [crypto.HashSize]byte
	AmountCommitment crypto.AmountCommitment
	NullifierData    crypto.NullifierData
}

// VerificationInput is the complete input of one verification pass.
type VerificationInput struct {
	Note           SpendNote
	MerkleProof    merkle.Proof
	MerkleRoot     [crypto.HashSize]byte
	ExpectedAmount uint64
}

// PublicOutputs are the only values a verification pass discloses.
type PublicOutputs struct {
	MerkleRoot [crypto.HashSize]byte
	Nullifier  [crypto.HashSize]byte
	Amount     uint64
}
