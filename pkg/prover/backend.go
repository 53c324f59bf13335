// Package prover is the host side of spend proving: it assembles inputs for
// an external proving capability and cross-checks what that capability
// attests against the claims carried by a SpendProof.
package prover

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrProvingFailure      = errors.New("proving failed")
	ErrVerificationFailure = errors.New("artifact verification failed")
	ErrOutputMismatch      = errors.New("public outputs do not match claim")
)

// ProgramID identifies the verification program an artifact attests to.
type ProgramID = common.Hash

// Artifact is the result of a proving call: an opaque receipt and the
// public outputs embedded in it.
type Artifact struct {
	Receipt []byte
	Journal []byte
}

// Prover turns a serialized spend.VerificationInput into an artifact.
type Prover interface {
	Prove(ctx context.Context, input []byte) (*Artifact, error)
}

// Verifier checks that a receipt attests a correct run of program and
// returns the public outputs it carries.
type Verifier interface {
	Verify(ctx context.Context, receipt []byte, program ProgramID) ([]byte, error)
}

// SpendProof is the transportable result of a successful proving session.
type SpendProof struct {
	Artifact   []byte
	MerkleRoot [32]byte
	Nullifier  [32]byte
	Amount     uint64
}
