package prover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"

	"spendzk/pkg/merkle"
	"spendzk/pkg/spend"
)

// Anchor admits a freshly opened note into an accumulator and returns the
// note's membership path together with the root it belongs to.
type Anchor interface {
	Anchor(leaf [32]byte) (merkle.Proof, [32]byte, error)
}

// Option configures a ProofGenerator.
type Option func(*ProofGenerator)

// WithEntropy sets the source of per-session randomness. The function is
// called once per session; returning nil selects crypto/rand.
func WithEntropy(source func() io.Reader) Option {
	return func(g *ProofGenerator) {
		g.entropy = source
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *ProofGenerator) {
		g.now = now
	}
}

// ProofGenerator runs one proving session per call. It keeps no per-session
// state, so a single instance may be shared by concurrent callers.
type ProofGenerator struct {
	backend Prover
	entropy func() io.Reader
	now     func() time.Time
}

// NewProofGenerator creates a generator that proves through backend.
func NewProofGenerator(backend Prover, opts ...Option) *ProofGenerator {
	g := &ProofGenerator{
		backend: backend,
		entropy: func() io.Reader { return nil },
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OpenNote draws fresh salt and blinding factor for a note owned by wallet.
func (g *ProofGenerator) OpenNote(wallet common.Address, amount uint64) (*spend.SpendNote, error) {
	return spend.NewNote(wallet, amount, g.entropy(), g.now())
}

// ProveSpend opens a fresh note for (wallet, amount) and proves it against
// the supplied path and root.
func (g *ProofGenerator) ProveSpend(
	ctx context.Context,
	wallet common.Address,
	amount uint64,
	proof merkle.Proof,
	root [32]byte,
) (*SpendProof, error) {
	note, err := g.OpenNote(wallet, amount)
	if err != nil {
		return nil, err
	}
	return g.ProveNote(ctx, note, proof, root)
}

// ProveAnchored opens a fresh note, lets anchor place it in an accumulator
// and proves membership against the returned root.
func (g *ProofGenerator) ProveAnchored(ctx context.Context, wallet common.Address, amount uint64, anchor Anchor) (*SpendProof, error) {
	note, err := g.OpenNote(wallet, amount)
	if err != nil {
		return nil, err
	}
	proof, root, err := anchor.Anchor(spend.LeafHash(note))
	if err != nil {
		return nil, fmt.Errorf("failed to anchor note: %w", err)
	}
	return g.ProveNote(ctx, note, proof, root)
}

// ProveNote proves an already opened note. The input is checked locally
// first, so engine failures surface as typed errors without a backend call.
func (g *ProofGenerator) ProveNote(ctx context.Context, note *spend.SpendNote, proof merkle.Proof, root [32]byte) (*SpendProof, error) {
	if note == nil {
		return nil, fmt.Errorf("%w: nil note", spend.ErrMalformedInput)
	}
	session := xid.New().String()
	start := time.Now()

	input := &spend.VerificationInput{
		Note:           *note,
		MerkleProof:    proof,
		MerkleRoot:     root,
		ExpectedAmount: note.AmountCommitment.Amount,
	}

	outputs, err := spend.Verify(input)
	if err != nil {
		log.Debug().Str("session", session).Err(err).Msg("Spend input rejected before proving")
		return nil, err
	}

	artifact, err := g.backend.Prove(ctx, spend.EncodeInput(input))
	if err != nil {
		log.Error().Str("session", session).Err(err).Msg("Proving backend failed")
		return nil, fmt.Errorf("%w: %w", ErrProvingFailure, err)
	}
	if artifact == nil {
		return nil, fmt.Errorf("%w: backend returned no artifact", ErrProvingFailure)
	}

	want := spend.EncodeJournal(outputs)
	if !bytes.Equal(artifact.Journal, want) {
		return nil, fmt.Errorf("%w: backend journal does not match the proven input", ErrProvingFailure)
	}

	log.Info().
		Str("session", session).
		Hex("nullifier", outputs.Nullifier[:]).
		Hex("root", outputs.MerkleRoot[:]).
		Dur("elapsed", time.Since(start)).
		Msg("Spend proof generated")

	return &SpendProof{
		Artifact:   artifact.Receipt,
		MerkleRoot: outputs.MerkleRoot,
		Nullifier:  outputs.Nullifier,
		Amount:     outputs.Amount,
	}, nil
}
