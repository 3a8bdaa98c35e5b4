package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testParams() BlockParams {
	return BlockParams{Difficulty: 2, VDFIterations: 50}
}

func sealTestBlock(t *testing.T, creator, previous string, seed uint64) Block {
	t.Helper()
	b, err := SealBlock(context.Background(), creator, previous, seed, testParams())
	require.NoError(t, err)
	return b
}

func TestSealBlock(t *testing.T) {
	b := sealTestBlock(t, "node-a", "", 42)

	require.Equal(t, "node-a", b.Creator)
	require.Equal(t, GenesisSentinel, b.PreviousHash)
	require.Equal(t, VDF(42, 50), b.VDFOutput)
	require.NotNil(t, b.Transactions)
	require.Empty(t, b.Transactions)
	require.Len(t, b.Hash, DigestHexLen)

	require.True(t, VerifyPoW(b.Header(), b.Nonce, 2))
	require.True(t, strings.HasPrefix(b.ProofDigest(), "00"))
	require.True(t, b.VerifyHash())
}

func TestSealBlockStoredHashReplacesProofDigest(t *testing.T) {
	b := sealTestBlock(t, "node-a", GenesisSentinel, 7)
	require.NotEqual(t, b.ProofDigest(), b.Hash)
}

func TestSealBlockHeaderUsesTail(t *testing.T) {
	first := sealTestBlock(t, "node-a", "", 1)
	second := sealTestBlock(t, "node-a", first.Hash, 2)
	require.Equal(t, first.Hash, second.PreviousHash)
	require.Equal(t, BlockHeader("node-a", second.VDFOutput, first.Hash), second.Header())
}

func TestSealBlockUnsolved(t *testing.T) {
	_, err := SealBlock(context.Background(), "node-a", "", 1, BlockParams{Difficulty: DigestHexLen, VDFIterations: 1, MaxAttempts: 3})
	require.ErrorIs(t, err, ErrPuzzleUnsolved)
}

func TestVerifyHashDetectsTampering(t *testing.T) {
	b := sealTestBlock(t, "node-a", "", 9)
	tampered := b
	tampered.VDFOutput++
	require.False(t, tampered.VerifyHash())

	tampered = b
	tampered.Creator = "node-z"
	require.False(t, tampered.VerifyHash())
}

func TestProofValidator(t *testing.T) {
	v := ProofValidator(2)
	b := sealTestBlock(t, "node-a", "", 11)
	require.NoError(t, v(b))

	bad := b
	bad.Nonce++
	require.ErrorIs(t, v(bad), ErrInvalidBlock)

	forged := b
	forged.Hash = strings.Repeat("0", DigestHexLen)
	require.ErrorIs(t, v(forged), ErrInvalidBlock)
}

func TestBlockCloneIsIndependent(t *testing.T) {
	b := sealTestBlock(t, "node-a", "", 3)
	c := b.Clone()
	c.Transactions = append(c.Transactions, Transaction{})
	require.Empty(t, b.Transactions)
}
