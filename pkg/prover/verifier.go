package prover

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"spendzk/pkg/spend"
)

// ProofVerifier checks SpendProofs against an external verifying capability.
type ProofVerifier struct {
	backend Verifier
	program ProgramID
}

// NewProofVerifier creates a verifier accepting artifacts of program.
func NewProofVerifier(backend Verifier, program ProgramID) *ProofVerifier {
	return &ProofVerifier{
		backend: backend,
		program: program,
	}
}

// VerifySpend confirms the artifact and then compares the outputs it
// attests with the values claimed by p. A sound artifact attached to a
// different claim is rejected with ErrOutputMismatch.
func (v *ProofVerifier) VerifySpend(ctx context.Context, p *SpendProof) error {
	if p == nil {
		return fmt.Errorf("%w: nil spend proof", ErrVerificationFailure)
	}
	journal, err := v.backend.Verify(ctx, p.Artifact, v.program)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerificationFailure, err)
	}

	decoded, err := spend.DecodeJournal(journal)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputMismatch, err)
	}

	switch {
	case !bytes.Equal(decoded.MerkleRoot[:], p.MerkleRoot[:]):
		return fmt.Errorf("%w: merkle root", ErrOutputMismatch)
	case !bytes.Equal(decoded.Nullifier[:], p.Nullifier[:]):
		return fmt.Errorf("%w: nullifier", ErrOutputMismatch)
	case decoded.Amount != p.Amount:
		return fmt.Errorf("%w: amount", ErrOutputMismatch)
	}
	return nil
}

// Accept is the final accept/reject decision for p.
func (v *ProofVerifier) Accept(ctx context.Context, p *SpendProof) bool {
	if err := v.VerifySpend(ctx, p); err != nil {
		event := log.Warn().Err(err)
		if p != nil {
			event = event.Hex("nullifier", p.Nullifier[:])
		}
		event.Msg("Spend proof rejected")
		return false
	}
	return true
}

// VerifyAll verifies proofs with at most limit concurrent backend calls and
// returns one result per proof, in order.
func (v *ProofVerifier) VerifyAll(ctx context.Context, proofs []*SpendProof, limit int) []error {
	errs := make([]error, len(proofs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, p := range proofs {
		i, p := i, p
		g.Go(func() error {
			errs[i] = v.VerifySpend(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	return errs
}
