package merkle

import (
	"fmt"
	"sync"

	"spendzk/pkg/crypto"
)

// MaxDepth bounds the tree depth accepted by NewTree.
const MaxDepth = 32

type node = [crypto.HashSize]byte

// Tree is an append-only Merkle accumulator of fixed depth. Empty
// positions hold the zero hash of their level.
type Tree struct {
	mu         sync.RWMutex
	depth      int
	zeroHashes []node
	// levels[0] are the leaves, levels[depth] holds the root once non-empty
	levels [][]node
}

// NewTree creates an empty tree with the given depth.
func NewTree(depth int) (*Tree, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, fmt.Errorf("invalid tree depth %d (want 1..%d)", depth, MaxDepth)
	}

	t := &Tree{
		depth:      depth,
		zeroHashes: make([]node, depth+1),
		levels:     make([][]node, depth+1),
	}

	// Compute zero hashes for empty branches
	for i := 1; i <= depth; i++ {
		t.zeroHashes[i] = crypto.HashPair(t.zeroHashes[i-1], t.zeroHashes[i-1])
	}
	return t, nil
}

// Depth returns the tree depth.
func (t *Tree) Depth() int {
	return t.depth
}

// Len returns the number of appended leaves.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.levels[0])
}

// Append inserts leaf at the next free position and returns its index.
func (t *Tree) Append(leaf node) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	index := len(t.levels[0])
	if uint64(index) >= uint64(1)<<uint(t.depth) {
		return 0, ErrTreeFull
	}
	t.levels[0] = append(t.levels[0], leaf)

	pos := index
	for level := 0; level < t.depth; level++ {
		parent := pos / 2
		left := t.nodeAt(level, parent*2)
		right := t.nodeAt(level, parent*2+1)
		h := crypto.HashPair(left, right)
		if parent < len(t.levels[level+1]) {
			t.levels[level+1][parent] = h
		} else {
			t.levels[level+1] = append(t.levels[level+1], h)
		}
		pos = parent
	}
	return index, nil
}

// Root returns the current root.
func (t *Tree) Root() node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodeAt(t.depth, 0)
}

// Proof returns the authentic path for the leaf at index.
func (t *Tree) Proof(index int) (Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= len(t.levels[0]) {
		return Proof{}, fmt.Errorf("%w: index %d", ErrLeafNotFound, index)
	}

	p := Proof{
		Path:    make([]node, t.depth),
		Indices: make([]bool, t.depth),
	}
	pos := index
	for level := 0; level < t.depth; level++ {
		isLeft := pos%2 == 0
		if isLeft {
			p.Path[level] = t.nodeAt(level, pos+1)
		} else {
			p.Path[level] = t.nodeAt(level, pos-1)
		}
		p.Indices[level] = isLeft
		pos /= 2
	}
	return p, nil
}

func (t *Tree) nodeAt(level, pos int) node {
	if pos < len(t.levels[level]) {
		return t.levels[level][pos]
	}
	return t.zeroHashes[level]
}
