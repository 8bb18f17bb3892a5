package shielder

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarConstructors(t *testing.T) {
	t.Run("big int range", func(t *testing.T) {
		_, err := ScalarFromBigInt(big.NewInt(-1))
		require.ErrorIs(t, err, ErrScalarRange)
		_, err = ScalarFromBigInt(fr.Modulus())
		require.ErrorIs(t, err, ErrScalarRange)

		max := new(big.Int).Sub(fr.Modulus(), big.NewInt(1))
		s, err := ScalarFromBigInt(max)
		require.NoError(t, err)
		assert.Equal(t, 0, s.BigInt().Cmp(max))
	})

	t.Run("bytes", func(t *testing.T) {
		want := ScalarFromUint64(123456789)
		b := want.Bytes()
		got, err := ScalarFromBytes(b[:])
		require.NoError(t, err)
		assert.True(t, got.Equal(want))

		_, err = ScalarFromBytes(b[:31])
		require.Error(t, err)
	})

	t.Run("address", func(t *testing.T) {
		addr := common.HexToAddress("0x00000000000000000000000000000000000000ff")
		assert.True(t, ScalarFromAddress(addr).Equal(ScalarFromUint64(255)))
	})

	t.Run("text", func(t *testing.T) {
		s := ScalarFromUint64(42)
		out, err := json.Marshal(s)
		require.NoError(t, err)
		assert.Equal(t, `"42"`, string(out))

		var back Scalar
		require.NoError(t, json.Unmarshal(out, &back))
		assert.True(t, back.Equal(s))
	})
}

func TestTokenEncoding(t *testing.T) {
	native := NativeToken()
	assert.True(t, native.IsNative())
	assert.Equal(t, NativeTokenAddress, native.Address())
	assert.Equal(t, native, TokenFromAddress(common.Address{}))

	addr := common.HexToAddress("0xAbCdEf0000000000000000000000000000000001")
	erc := ERC20Token(addr)
	assert.Equal(t, erc, TokenFromAddress(addr))
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", erc.Key())

	parsed, err := ParseToken("native")
	require.NoError(t, err)
	assert.Equal(t, native, parsed)
	parsed, err = ParseToken(addr.Hex())
	require.NoError(t, err)
	assert.Equal(t, erc, parsed)
	_, err = ParseToken("0x123")
	require.Error(t, err)
}

func TestProtocolVersion(t *testing.T) {
	v, err := ParseProtocolVersion("0x000001")
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, v)
	assert.True(t, IsVersionSupported(v))
	assert.Equal(t, "0x000001", v.Hex())

	other := ProtocolVersion{0x01, 0x00, 0x01}
	assert.False(t, IsVersionSupported(other))
	assert.True(t, other.NoteVersion().Equal(ScalarFromUint64(1)))

	_, err = ParseProtocolVersion("0x0001")
	require.Error(t, err)
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"integrity", &IntegrityError{Reason: "id hash mismatch"}, ErrIntegrity},
		{"consistency", &ConsistencyError{What: "events", Found: 2, Expected: 1}, ErrConsistency},
		{"event version", &UnexpectedVersionInEventError{}, ErrProtocolVersion},
		{"contract version", &VersionRejectedByContractError{}, ErrProtocolVersion},
		{"relayer version", &VersionRejectedByRelayerError{Message: "x"}, ErrProtocolVersion},
		{"insufficient funds", ErrInsufficientFunds, ErrValidation},
		{"wrapped fee", fmt.Errorf("%w: 2", ErrFeeExceedsAmount), ErrValidation},
		{"proof", &ProofError{Action: "deposit", Err: errors.New("boom")}, ErrProof},
		{"verification", ErrVerificationFailed, ErrProof},
		{"transport", &TransportError{Op: "deposit", Err: errors.New("boom")}, ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
		})
	}

	assert.EqualError(t, &ConsistencyError{What: "events", Found: 2, Expected: 1},
		"unexpected number of events: 2, expected 1")
}

func TestNormalizeError(t *testing.T) {
	require.NoError(t, NormalizeError(nil))

	plain := errors.New("boom")
	assert.Equal(t, plain, NormalizeError(plain))

	relayed := fmt.Errorf("withdraw: %w", &VersionRejectedByRelayerError{Message: "Version mismatch"})
	var outdated *OutdatedSDKError
	require.ErrorAs(t, NormalizeError(relayed), &outdated)
	var rejected *VersionRejectedByRelayerError
	assert.ErrorAs(t, outdated, &rejected)

	once := NormalizeError(relayed)
	assert.Equal(t, once, NormalizeError(once))
}

func TestAccountStateClone(t *testing.T) {
	s := &AccountState{
		ID:               ScalarFromUint64(7),
		Token:            NativeToken(),
		Nonce:            3,
		Balance:          big.NewInt(100),
		CurrentNote:      ScalarFromUint64(9),
		CurrentNoteIndex: big.NewInt(4),
	}
	c := s.Clone()
	require.True(t, c.Equal(s))

	c.Balance.SetInt64(1)
	c.CurrentNoteIndex.SetInt64(5)
	assert.Equal(t, int64(100), s.Balance.Int64())
	assert.Equal(t, int64(4), s.CurrentNoteIndex.Int64())
	assert.False(t, c.Equal(s))
}

func TestProtocolFees(t *testing.T) {
	gross, err := ProtocolFeeFromGross(big.NewInt(1000), big.NewInt(25))
	require.NoError(t, err)
	assert.Equal(t, "1000", gross.Amount.String())
	assert.Equal(t, "3", gross.ProtocolFee.String())

	zero, err := ProtocolFeeFromGross(big.NewInt(1000), big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, "0", zero.ProtocolFee.String())

	net, err := ProtocolFeeFromNet(big.NewInt(1000), big.NewInt(25))
	require.NoError(t, err)
	assert.Equal(t, "3", net.ProtocolFee.String())
	assert.Equal(t, "1003", net.Amount.String())

	// What the gross fee takes back out of a grossed-up amount never exceeds what was added.
	back, err := ProtocolFeeFromGross(net.Amount, big.NewInt(25))
	require.NoError(t, err)
	assert.LessOrEqual(t, back.ProtocolFee.Int64(), net.ProtocolFee.Int64())

	_, err = ProtocolFeeFromNet(big.NewInt(1), big.NewInt(MaxBps))
	assert.Error(t, err)
	_, err = ProtocolFeeFromGross(big.NewInt(1), big.NewInt(MaxBps+1))
	assert.Error(t, err)
	_, err = ProtocolFeeFromGross(big.NewInt(-1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrValidation)

	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	_, err = ProtocolFeeFromGross(huge, big.NewInt(MaxBps))
	assert.ErrorIs(t, err, ErrFeeOverflow)
}

func TestWithdrawCommitment(t *testing.T) {
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	relayer := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	c := WithdrawCommitment(CurrentVersion, recipient, relayer, big.NewInt(3))

	assert.Less(t, c.BigInt().BitLen(), 253)
	assert.True(t, c.Equal(WithdrawCommitment(CurrentVersion, recipient, relayer, big.NewInt(3))))
	assert.False(t, c.Equal(WithdrawCommitment(CurrentVersion, recipient, relayer, big.NewInt(4))))
	assert.False(t, c.Equal(WithdrawCommitment(CurrentVersion, relayer, recipient, big.NewInt(3))))
	assert.False(t, c.Equal(WithdrawCommitment(ProtocolVersion{0, 0, 2}, recipient, relayer, big.NewInt(3))))
}
