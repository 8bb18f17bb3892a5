package devoracle

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shielder/internal/shielder"
)

func TestHasherBounds(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(3)

	_, err := h.Hash(ctx, nil)
	require.Error(t, err)
	_, err = h.Hash(ctx, make([]shielder.Scalar, 4))
	require.Error(t, err)

	a, err := h.Hash(ctx, []shielder.Scalar{shielder.ScalarFromUint64(1)})
	require.NoError(t, err)
	b, err := h.Hash(ctx, []shielder.Scalar{shielder.ScalarFromUint64(1)})
	require.NoError(t, err)
	c, err := h.Hash(ctx, []shielder.Scalar{shielder.ScalarFromUint64(2)})
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestSecretDerivationIsDeterministic(t *testing.T) {
	ctx := context.Background()
	sm := SecretManager{}
	seed := []byte("seed")

	id1, err := sm.DeriveID(ctx, seed, 1, common.Address{})
	require.NoError(t, err)
	id2, err := sm.DeriveID(ctx, seed, 1, common.Address{})
	require.NoError(t, err)
	otherChain, err := sm.DeriveID(ctx, seed, 2, common.Address{})
	require.NoError(t, err)
	otherToken, err := sm.DeriveID(ctx, seed, 1, common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.True(t, id1.Equal(id2))
	assert.False(t, id1.Equal(otherChain))
	assert.False(t, id1.Equal(otherToken))

	s0, err := sm.DeriveSecrets(ctx, id1, 0)
	require.NoError(t, err)
	s1, err := sm.DeriveSecrets(ctx, id1, 1)
	require.NoError(t, err)
	assert.False(t, s0.Nullifier.Equal(s1.Nullifier))
	assert.False(t, s0.Nullifier.Equal(s0.Trapdoor))
}

func TestMerkleRootChecksMembership(t *testing.T) {
	ctx := context.Background()
	h := NewHasher(2)
	leaf := shielder.ScalarFromUint64(5)
	sibling := shielder.ScalarFromUint64(6)

	level0 := []shielder.Scalar{leaf, sibling}
	parent, err := h.Hash(ctx, level0)
	require.NoError(t, err)
	path := []shielder.Scalar{leaf, sibling, shielder.ScalarFromUint64(0), parent}

	root, err := merkleRoot(ctx, h, 2, leaf, path)
	require.NoError(t, err)
	want, err := h.Hash(ctx, path[2:])
	require.NoError(t, err)
	assert.True(t, root.Equal(want))

	_, err = merkleRoot(ctx, h, 2, shielder.ScalarFromUint64(7), path)
	require.ErrorIs(t, err, errNotInPath)
	_, err = merkleRoot(ctx, h, 2, leaf, path[:3])
	require.Error(t, err)
}

func TestNewAccountProofRoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := New(Config{})
	advice := shielder.NewAccountAdvice{
		NoteVersion:    shielder.CurrentVersion.NoteVersion(),
		ID:             shielder.ScalarFromUint64(11),
		Nullifier:      shielder.ScalarFromUint64(12),
		TokenAddress:   shielder.NativeToken().Field(),
		InitialDeposit: shielder.ScalarFromUint64(100),
		CallerAddress:  shielder.ScalarFromUint64(13),
		ProtocolFee:    shielder.ScalarFromUint64(1),
	}
	proof, err := cc.NewAccount.Prove(ctx, advice)
	require.NoError(t, err)
	pub, err := cc.NewAccount.PublicInputs(ctx, advice)
	require.NoError(t, err)

	ok, err := cc.NewAccount.Verify(ctx, proof, pub)
	require.NoError(t, err)
	assert.True(t, ok)

	pub.InitialDeposit = shielder.ScalarFromUint64(101)
	ok, err = cc.NewAccount.Verify(ctx, proof, pub)
	require.NoError(t, err)
	assert.False(t, ok)

	advice.ProtocolFee = shielder.ScalarFromUint64(101)
	_, err = cc.NewAccount.Prove(ctx, advice)
	require.ErrorIs(t, err, errNegativeBalance)
}
