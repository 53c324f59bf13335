// Package merkle verifies and builds membership paths over a SHA-256 hash tree.
package merkle

import (
	"bytes"
	"errors"
	"fmt"

	"spendzk/pkg/crypto"
)

var (
	ErrLengthMismatch = errors.New("merkle path and indices differ in length")
	ErrLeafNotFound   = errors.New("leaf not found")
	ErrLeafSize       = errors.New("leaf is not a tree node")
	ErrTreeFull       = errors.New("merkle tree is full")
)

// Proof is a sibling path from a leaf to the root. Indices[i] set means the
// running hash is the left operand at level i.
type Proof struct {
	Path    [][crypto.HashSize]byte
	Indices []bool
}

// Depth returns the number of levels covered by the proof.
func (p Proof) Depth() int {
	return len(p.Path)
}

// Validate checks the structural invariant of the proof.
func (p Proof) Validate() error {
	if len(p.Path) != len(p.Indices) {
		return fmt.Errorf("%w: path=%d indices=%d", ErrLengthMismatch, len(p.Path), len(p.Indices))
	}
	return nil
}

// Fold hashes leaf up the path and returns the resulting root.
func Fold(leaf []byte, p Proof) ([crypto.HashSize]byte, error) {
	if err := p.Validate(); err != nil {
		return [crypto.HashSize]byte{}, err
	}

	current := leaf
	var next [crypto.HashSize]byte
	if len(p.Path) == 0 {
		// the leaf is the root
		if len(leaf) != crypto.HashSize {
			return next, fmt.Errorf("%w: %d bytes", ErrLeafSize, len(leaf))
		}
		copy(next[:], leaf)
	}
	for i, sibling := range p.Path {
		if p.Indices[i] {
			next = crypto.Hash(current, sibling[:])
		} else {
			next = crypto.Hash(sibling[:], current)
		}
		current = next[:]
	}
	return next, nil
}

// Verify reports whether leaf folds up p to root. The only error is a
// malformed proof; a wrong path is a plain false.
func Verify(leaf []byte, p Proof, root [crypto.HashSize]byte) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	if p.Depth() == 0 {
		// a zero-depth tree is its own leaf
		return bytes.Equal(leaf, root[:]), nil
	}
	computed, err := Fold(leaf, p)
	if err != nil {
		return false, err
	}
	return bytes.Equal(computed[:], root[:]), nil
}
