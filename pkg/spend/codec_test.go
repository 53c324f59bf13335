package spend

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	blindingOffset = 20 + 32 + 32 + 8
	pathLenOffset  = blindingOffset + 32 + 32 + 8
	pathOffset     = pathLenOffset + 4
)

func TestInputRoundTrip(t *testing.T) {
	in := scenarioInput(t)

	data := EncodeInput(in)
	require.Len(t, data, fixedInputSize+3*33)

	decoded, err := DecodeInput(data)
	require.NoError(t, err)

	assert.Equal(t, in.Note.Wallet, decoded.Note.Wallet)
	assert.Equal(t, in.Note.Nullifier, decoded.Note.Nullifier)
	assert.True(t, in.Note.AmountCommitment.Commitment.Equal(&decoded.Note.AmountCommitment.Commitment))
	assert.True(t, in.Note.AmountCommitment.BlindingFactor.Equal(&decoded.Note.AmountCommitment.BlindingFactor))
	assert.Equal(t, in.Note.AmountCommitment.Amount, decoded.Note.AmountCommitment.Amount)
	assert.Equal(t, in.Note.NullifierData, decoded.Note.NullifierData)
	assert.Equal(t, in.MerkleProof, decoded.MerkleProof)
	assert.Equal(t, in.MerkleRoot, decoded.MerkleRoot)
	assert.Equal(t, in.ExpectedAmount, decoded.ExpectedAmount)

	out, err := Verify(decoded)
	require.NoError(t, err)
	assert.Equal(t, in.MerkleRoot, out.MerkleRoot)
}

func TestInputFieldLayout(t *testing.T) {
	in := scenarioInput(t)
	data := EncodeInput(in)

	assert.Equal(t, in.Note.Wallet[:], data[:20])
	assert.Equal(t, in.Note.Nullifier[:], data[20:52])
	assert.Equal(t, uint64(1_000_000), binary.BigEndian.Uint64(data[84:92]))
	assert.Equal(t, uint64(1_700_000_000), binary.BigEndian.Uint64(data[pathLenOffset-8:pathLenOffset]))
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(data[pathLenOffset:pathOffset]))
	assert.Equal(t, []byte{1, 0, 1}, data[pathOffset+96:pathOffset+99])
	assert.Equal(t, in.MerkleRoot[:], data[pathOffset+99:pathOffset+131])
}

func TestDecodeInputRejectsMalformed(t *testing.T) {
	valid := EncodeInput(scenarioInput(t))

	mutate := func(f func([]byte) []byte) []byte {
		return f(bytes.Clone(valid))
	}

	cases := map[string][]byte{
		"empty":     {},
		"truncated": valid[:len(valid)-1],
		"trailing":  append(bytes.Clone(valid), 0x00),
		"bad index": mutate(func(b []byte) []byte {
			b[pathOffset+96+1] = 2
			return b
		}),
		"oversized path length": mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[pathLenOffset:], 1<<30)
			return b
		}),
		"non-canonical blinding": mutate(func(b []byte) []byte {
			copy(b[blindingOffset:blindingOffset+32], bytes.Repeat([]byte{0xff}, 32))
			return b
		}),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeInput(data)
			assert.ErrorIs(t, err, ErrMalformedInput)
		})
	}
}

func TestJournalLayout(t *testing.T) {
	out := &PublicOutputs{Amount: 1_000_000}
	for i := range out.MerkleRoot {
		out.MerkleRoot[i] = 0xaa
		out.Nullifier[i] = 0xbb
	}

	buf := EncodeJournal(out)
	require.Len(t, buf, JournalSize)
	assert.Equal(t, bytes.Repeat([]byte{0xaa}, 32), buf[:32])
	assert.Equal(t, bytes.Repeat([]byte{0xbb}, 32), buf[32:64])
	// 1,000,000 = 0x0f4240, little-endian
	assert.Equal(t, []byte{0x40, 0x42, 0x0f, 0, 0, 0, 0, 0}, buf[64:])

	decoded, err := DecodeJournal(buf)
	require.NoError(t, err)
	assert.Equal(t, out, decoded)

	_, err = DecodeJournal(buf[:71])
	assert.Error(t, err)
}

func TestErrorCodes(t *testing.T) {
	for _, target := range []error{
		ErrInvalidNullifier,
		ErrInvalidAmountCommitment,
		ErrInvalidMerkleProof,
		ErrMalformedInput,
	} {
		wrapped := fmt.Errorf("remote: %w", target)
		code := CodeOf(wrapped)
		require.NotEqual(t, CodeUnknown, code)

		rebuilt := ErrorForCode(code, target.Error())
		assert.ErrorIs(t, rebuilt, target)
		assert.Equal(t, target.Error(), rebuilt.Error())
	}

	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))

	detailed := ErrorForCode(CodeMalformedInput, ErrMalformedInput.Error()+": 3 trailing bytes")
	assert.ErrorIs(t, detailed, ErrMalformedInput)
	assert.Contains(t, detailed.Error(), "3 trailing bytes")

	unknown := ErrorForCode(CodeUnknown, "boom")
	assert.EqualError(t, unknown, "boom")
}
