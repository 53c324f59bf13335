package spend

import (
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"spendzk/pkg/crypto"
)

// NewNote opens a fresh note for wallet: new salt, new blinding factor and
// the nullifier derived from them. r may be nil for crypto/rand.
func NewNote(wallet common.Address, amount uint64, r io.Reader, now time.Time) (*SpendNote, error) {
	nd, err := crypto.NewNullifierData(r, now)
	if err != nil {
		return nil, err
	}
	ac, err := crypto.NewAmountCommitment(amount, r)
	if err != nil {
		return nil, err
	}
	return &SpendNote{
		Wallet:           wallet,
		Nullifier:        crypto.DeriveNullifier(wallet, nd),
		AmountCommitment: *ac,
		NullifierData:    nd,
	}, nil
}
