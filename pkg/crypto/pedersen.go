package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// CommitmentSize is the size of a compressed commitment.
const CommitmentSize = bn254.SizeOfG1AffineCompressed

// ScalarSize is the size of an encoded blinding factor.
const ScalarSize = fr.Bytes

const (
	generatorMsg = "G"
	generatorDST = "SPENDZK-PEDERSEN-G-V1"
)

var ErrAmountOverflow = errors.New("committed amount overflows uint64")

type generators struct {
	g, h bn254.G1Affine
}

var (
	gensOnce sync.Once
	gens     generators
)

// Generators returns the commitment bases (G, H). G is hashed onto the curve
// from a fixed domain string, H is the canonical BN254 G1 base point.
func Generators() (g, h bn254.G1Affine) {
	gensOnce.Do(func() {
		hashed, err := bn254.HashToG1([]byte(generatorMsg), []byte(generatorDST))
		if err != nil {
			// only reachable if the curve parameters are broken
			panic(fmt.Sprintf("pedersen: deriving G: %v", err))
		}
		_, _, base, _ := bn254.Generators()
		gens = generators{g: hashed, h: base}
	})
	return gens.g, gens.h
}

// AmountCommitment is an opened Pedersen commitment to an amount.
type AmountCommitment struct {
	Commitment     bn254.G1Affine
	Amount         uint64
	BlindingFactor fr.Element
}

// Commit computes amount·G + blinding·H.
func Commit(amount uint64, blinding *fr.Element) bn254.G1Affine {
	g, h := Generators()

	var gJac, hJac bn254.G1Jac
	gJac.FromAffine(&g)
	hJac.FromAffine(&h)

	gJac.ScalarMultiplication(&gJac, new(big.Int).SetUint64(amount))
	hJac.ScalarMultiplication(&hJac, blinding.BigInt(new(big.Int)))
	gJac.AddAssign(&hJac)

	var out bn254.G1Affine
	out.FromJacobian(&gJac)
	return out
}

// VerifyCommitment reports whether commitment opens to (amount, blinding).
// The comparison runs over the compressed encodings in constant time.
func VerifyCommitment(commitment *bn254.G1Affine, amount uint64, blinding *fr.Element) bool {
	expected := Commit(amount, blinding)
	got := commitment.Bytes()
	want := expected.Bytes()
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}

// RandomScalar draws a uniformly distributed scalar from r. A nil reader
// means crypto/rand.
func RandomScalar(r io.Reader) (fr.Element, error) {
	if r == nil {
		r = rand.Reader
	}
	// 64 bytes reduced mod q keeps the bias negligible
	var buf [2 * fr.Bytes]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fr.Element{}, fmt.Errorf("failed to read blinding entropy: %w", err)
	}
	var s fr.Element
	s.SetBytes(buf[:])
	return s, nil
}

// NewAmountCommitment commits to amount under a fresh blinding factor.
func NewAmountCommitment(amount uint64, r io.Reader) (*AmountCommitment, error) {
	blinding, err := RandomScalar(r)
	if err != nil {
		return nil, err
	}
	return &AmountCommitment{
		Commitment:     Commit(amount, &blinding),
		Amount:         amount,
		BlindingFactor: blinding,
	}, nil
}

// Verify reports whether the commitment opens to its own amount and blinding factor.
func (c *AmountCommitment) Verify() bool {
	return VerifyCommitment(&c.Commitment, c.Amount, &c.BlindingFactor)
}

// Add returns the homomorphic sum of c and other.
func (c *AmountCommitment) Add(other *AmountCommitment) (*AmountCommitment, error) {
	sum := c.Amount + other.Amount
	if sum < c.Amount {
		return nil, ErrAmountOverflow
	}

	var a, b bn254.G1Jac
	a.FromAffine(&c.Commitment)
	b.FromAffine(&other.Commitment)
	a.AddAssign(&b)

	out := &AmountCommitment{Amount: sum}
	out.Commitment.FromJacobian(&a)
	out.BlindingFactor.Add(&c.BlindingFactor, &other.BlindingFactor)
	return out, nil
}

// CompressedCommitment returns the 32-byte compressed commitment.
func (c *AmountCommitment) CompressedCommitment() [CommitmentSize]byte {
	return c.Commitment.Bytes()
}

// BlindingBytes returns the big-endian canonical encoding of the blinding factor.
func (c *AmountCommitment) BlindingBytes() [ScalarSize]byte {
	return c.BlindingFactor.Bytes()
}
