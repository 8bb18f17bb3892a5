package note

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shielder/internal/oracle/devoracle"
	"shielder/internal/shielder"
)

func add(current, amount *big.Int) *big.Int { return current.Add(current, amount) }
func sub(current, amount *big.Int) *big.Int { return current.Sub(current, amount) }

func TestRawActionAdvancesNonceAndNote(t *testing.T) {
	ctx := context.Background()
	cc := devoracle.New(devoracle.Config{})
	a := NewAction(cc)
	old := &shielder.AccountState{
		ID:               shielder.ScalarFromUint64(3),
		Token:            shielder.NativeToken(),
		Nonce:            1,
		Balance:          big.NewInt(5),
		CurrentNoteIndex: big.NewInt(0),
	}

	next, err := a.RawAction(ctx, old, big.NewInt(100), add)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, uint64(2), next.Nonce)
	assert.Equal(t, "105", next.Balance.String())
	assert.Nil(t, next.CurrentNoteIndex)
	assert.Equal(t, "5", old.Balance.String())

	secrets, err := cc.Secrets.DeriveSecrets(ctx, old.ID, 1)
	require.NoError(t, err)
	want, err := shielder.HashNote(ctx, cc.Hasher, shielder.CurrentVersion.NoteVersion(), old.ID,
		secrets.Nullifier, shielder.ScalarFromUint64(105), old.Token.Field())
	require.NoError(t, err)
	assert.True(t, next.CurrentNote.Equal(want))
}

func TestRawActionNegativeBalance(t *testing.T) {
	a := NewAction(devoracle.New(devoracle.Config{}))
	old := &shielder.AccountState{ID: shielder.ScalarFromUint64(3), Token: shielder.NativeToken(), Nonce: 1, Balance: big.NewInt(5)}
	next, err := a.RawAction(context.Background(), old, big.NewInt(6), sub)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestMerklePathAndRoot(t *testing.T) {
	a := NewAction(devoracle.New(devoracle.Config{Height: 2, Arity: 2}))
	raw := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4), big.NewInt(5)}
	path, root, err := a.MerklePathAndRoot(context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, path, 4)
	assert.Equal(t, "5", root.String())

	_, _, err = a.MerklePathAndRoot(context.Background(), raw[:3])
	require.ErrorIs(t, err, shielder.ErrWrongPathLength)
	assert.Contains(t, err.Error(), "got 3, expected 5")
}

func TestWrapSendError(t *testing.T) {
	assert.NoError(t, WrapSendError("deposit", nil))

	verr := &shielder.VersionRejectedByContractError{Actual: shielder.ProtocolVersion{0, 0, 2}, Expected: shielder.CurrentVersion}
	assert.Same(t, verr, WrapSendError("deposit", verr))

	err := WrapSendError("deposit", errors.New("connection refused"))
	var terr *shielder.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "deposit", terr.Op)
	assert.ErrorIs(t, err, shielder.ErrTransport)
}

func TestNativeValueAndAmountScalar(t *testing.T) {
	assert.Equal(t, "7", NativeValue(shielder.NativeToken(), big.NewInt(7)).String())
	assert.Equal(t, "0", NativeValue(shielder.ERC20Token(common.HexToAddress("0x01")), big.NewInt(7)).String())

	_, err := AmountScalar("amount", big.NewInt(-1))
	assert.ErrorIs(t, err, shielder.ErrValidation)
}
