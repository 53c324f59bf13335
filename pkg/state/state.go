package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"spendzk/pkg/merkle"
	"spendzk/pkg/prover"
	"spendzk/pkg/spend"
)

// Error types
var (
	ErrDoubleSpend = errors.New("nullifier already spent")
	ErrUnknownRoot = errors.New("merkle root is not a known accumulator root")
)

// RootProvider answers whether a root is authoritative
type RootProvider interface {
	IsKnownRoot(root [32]byte) bool
}

// SpentSet is an append-only set of published nullifiers
type SpentSet struct {
	mu    sync.RWMutex
	spent map[[32]byte]struct{}
}

// NewSpentSet creates an empty spent set
func NewSpentSet() *SpentSet {
	return &SpentSet{spent: make(map[[32]byte]struct{})}
}

// Contains reports whether nullifier has been spent
func (s *SpentSet) Contains(nullifier [32]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spent[nullifier]
	return ok
}

// Add records nullifier, failing if it was already present
func (s *SpentSet) Add(nullifier [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.spent[nullifier]; ok {
		return ErrDoubleSpend
	}
	s.spent[nullifier] = struct{}{}
	return nil
}

// Len returns the number of spent nullifiers
func (s *SpentSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spent)
}

// Registry is an in-memory authority for note roots and spent nullifiers
type Registry struct {
	mu sync.Mutex

	tree        *merkle.Tree
	roots       map[[32]byte]struct{}
	history     [][32]byte
	historySize int
	spent       *SpentSet
}

// NewRegistry creates a registry over a tree of the given depth that keeps
// the last historySize roots valid
func NewRegistry(depth, historySize int) (*Registry, error) {
	tree, err := merkle.NewTree(depth)
	if err != nil {
		return nil, err
	}
	if historySize < 1 {
		return nil, fmt.Errorf("invalid root history size %d", historySize)
	}

	r := &Registry{
		tree:        tree,
		roots:       make(map[[32]byte]struct{}),
		historySize: historySize,
		spent:       NewSpentSet(),
	}
	r.recordRoot(tree.Root())
	return r, nil
}

// Insert appends the note's leaf and returns its index
func (r *Registry) Insert(note *spend.SpendNote) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, err := r.tree.Append(spend.LeafHash(note))
	if err != nil {
		return 0, err
	}
	r.recordRoot(r.tree.Root())
	return index, nil
}

// Anchor appends leaf and returns its path and the resulting root. It lets
// a prover.ProofGenerator place freshly opened notes.
func (r *Registry) Anchor(leaf [32]byte) (merkle.Proof, [32]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, err := r.tree.Append(leaf)
	if err != nil {
		return merkle.Proof{}, [32]byte{}, err
	}
	root := r.tree.Root()
	r.recordRoot(root)

	proof, err := r.tree.Proof(index)
	if err != nil {
		return merkle.Proof{}, [32]byte{}, err
	}
	return proof, root, nil
}

// Proof returns the current path for the leaf at index
func (r *Registry) Proof(index int) (merkle.Proof, error) {
	return r.tree.Proof(index)
}

// Root returns the current accumulator root
func (r *Registry) Root() [32]byte {
	return r.tree.Root()
}

// IsKnownRoot implements RootProvider
func (r *Registry) IsKnownRoot(root [32]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.roots[root]
	return ok
}

// Spent returns the registry's spent set
func (r *Registry) Spent() *SpentSet {
	return r.spent
}

// Settle reconciles a spend proof with the registry: the root must be
// known, the proof must verify and the nullifier must be fresh. On
// success the nullifier is recorded as spent.
func (r *Registry) Settle(ctx context.Context, verifier *prover.ProofVerifier, p *prover.SpendProof) error {
	if !r.IsKnownRoot(p.MerkleRoot) {
		return ErrUnknownRoot
	}
	if r.spent.Contains(p.Nullifier) {
		return ErrDoubleSpend
	}
	if err := verifier.VerifySpend(ctx, p); err != nil {
		return err
	}
	if err := r.spent.Add(p.Nullifier); err != nil {
		return err
	}

	log.Info().
		Hex("nullifier", p.Nullifier[:]).
		Uint64("amount", p.Amount).
		Msg("Spend settled")
	return nil
}

// SettleBatch verifies proofs with at most limit concurrent backend calls
// and then settles them in order. A nullifier repeated inside the batch
// settles once.
func (r *Registry) SettleBatch(ctx context.Context, verifier *prover.ProofVerifier, proofs []*prover.SpendProof, limit int) []error {
	errs := verifier.VerifyAll(ctx, proofs, limit)
	for i, p := range proofs {
		if errs[i] != nil {
			continue
		}
		if !r.IsKnownRoot(p.MerkleRoot) {
			errs[i] = ErrUnknownRoot
			continue
		}
		if err := r.spent.Add(p.Nullifier); err != nil {
			errs[i] = err
			continue
		}
		log.Info().
			Hex("nullifier", p.Nullifier[:]).
			Uint64("amount", p.Amount).
			Msg("Spend settled")
	}
	return errs
}

// recordRoot must be called with r.mu held
func (r *Registry) recordRoot(root [32]byte) {
	if _, ok := r.roots[root]; ok {
		return
	}
	r.history = append(r.history, root)
	r.roots[root] = struct{}{}
	if len(r.history) > r.historySize {
		evicted := r.history[0]
		r.history = r.history[1:]
		delete(r.roots, evicted)
	}
}
