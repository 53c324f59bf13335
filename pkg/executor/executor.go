// Package executor is a proving backend that runs the spend verification
// engine on the host and seals the resulting journal with a secp256k1 key.
// Verifiers trust artifacts by the executor's address, the way an attested
// enclave or a committee member would be trusted.
package executor

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"spendzk/pkg/crypto"
	"spendzk/pkg/prover"
	"spendzk/pkg/spend"
)

const (
	programDomain = "spendzk/spend-verifier/v1"
	sealDomain    = "spendzk/receipt/v1"
)

var (
	ErrMalformedReceipt = errors.New("malformed receipt")
	ErrProgramMismatch  = errors.New("receipt attests a different program")
	ErrUntrustedSigner  = errors.New("receipt sealed by untrusted executor")
)

// Receipt is the artifact produced by an Executor.
type Receipt struct {
	Program prover.ProgramID `json:"program"`
	Journal hexutil.Bytes    `json:"journal"`
	Seal    hexutil.Bytes    `json:"seal"`
}

// ProgramID names the spend verification program together with the
// commitment generators it was built for.
func ProgramID() prover.ProgramID {
	g, h := crypto.Generators()
	gb, hb := g.Bytes(), h.Bytes()
	return ethcrypto.Keccak256Hash([]byte(programDomain), gb[:], hb[:])
}

func sealDigest(program prover.ProgramID, journal []byte) []byte {
	return ethcrypto.Keccak256([]byte(sealDomain), program[:], journal)
}

// Executor proves spends by executing the engine and sealing its journal.
type Executor struct {
	key     *ecdsa.PrivateKey
	address common.Address
	program prover.ProgramID
}

// NewExecutor creates an executor sealing with key.
func NewExecutor(key *ecdsa.PrivateKey) *Executor {
	return &Executor{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		program: ProgramID(),
	}
}

// LoadExecutor creates an executor from a hex private key without 0x prefix.
func LoadExecutor(hexKey string) (*Executor, error) {
	key, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid executor key: %v", err)
	}
	return NewExecutor(key), nil
}

// Address returns the address verifiers must trust.
func (e *Executor) Address() common.Address {
	return e.address
}

// Program returns the program identity this executor attests.
func (e *Executor) Program() prover.ProgramID {
	return e.program
}

// Prove implements prover.Prover.
func (e *Executor) Prove(_ context.Context, input []byte) (*prover.Artifact, error) {
	in, err := spend.DecodeInput(input)
	if err != nil {
		return nil, err
	}

	outputs, err := spend.Verify(in)
	if err != nil {
		return nil, err
	}

	journal := spend.EncodeJournal(outputs)
	seal, err := ethcrypto.Sign(sealDigest(e.program, journal), e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to seal journal: %v", err)
	}

	receipt, err := json.Marshal(&Receipt{
		Program: e.program,
		Journal: journal,
		Seal:    seal,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt: %v", err)
	}

	return &prover.Artifact{
		Receipt: receipt,
		Journal: journal,
	}, nil
}

// Verifier checks receipts sealed by a trusted executor.
type Verifier struct {
	trusted common.Address
}

// NewVerifier creates a verifier trusting the executor at address.
func NewVerifier(trusted common.Address) *Verifier {
	return &Verifier{trusted: trusted}
}

// Verify implements prover.Verifier.
func (v *Verifier) Verify(_ context.Context, receipt []byte, program prover.ProgramID) ([]byte, error) {
	var r Receipt
	if err := json.Unmarshal(receipt, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
	}
	if r.Program != program {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrProgramMismatch, r.Program.Hex(), program.Hex())
	}
	if len(r.Seal) != ethcrypto.SignatureLength {
		return nil, fmt.Errorf("%w: seal length %d", ErrMalformedReceipt, len(r.Seal))
	}

	pub, err := ethcrypto.SigToPub(sealDigest(r.Program, r.Journal), r.Seal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
	}
	if signer := ethcrypto.PubkeyToAddress(*pub); signer != v.trusted {
		return nil, fmt.Errorf("%w: %s", ErrUntrustedSigner, signer.Hex())
	}
	return r.Journal, nil
}
