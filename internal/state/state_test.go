package state

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shielder/internal/oracle/devoracle"
	"shielder/internal/shielder"
	"shielder/internal/storage"
)

type countingSecrets struct {
	shielder.SecretManager
	deriveIDCalls int
}

func (c *countingSecrets) DeriveID(ctx context.Context, seed []byte, chainID uint64, token common.Address) (shielder.Scalar, error) {
	c.deriveIDCalls++
	return c.SecretManager.DeriveID(ctx, seed, chainID, token)
}

type countingHasher struct {
	shielder.Hasher
	calls int
}

func (c *countingHasher) Hash(ctx context.Context, in []shielder.Scalar) (shielder.Scalar, error) {
	c.calls++
	return c.Hasher.Hash(ctx, in)
}

var usdc = shielder.ERC20Token(common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))

func newIDManager(seed string) *IDManager {
	return NewIDManager([]byte(seed), 1, devoracle.SecretManager{}, devoracle.NewHasher(devoracle.DefaultRate))
}

func newRegistry(t *testing.T, seed string) (*Registry, *storage.Manager) {
	t.Helper()
	db, err := storage.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sm := storage.NewManager(db, "", zerolog.Nop())
	return NewRegistry(sm, newIDManager(seed), zerolog.Nop()), sm
}

func TestIDManagerDerivesOncePerToken(t *testing.T) {
	ctx := context.Background()
	secrets := &countingSecrets{SecretManager: devoracle.SecretManager{}}
	hasher := &countingHasher{Hasher: devoracle.NewHasher(devoracle.DefaultRate)}
	m := NewIDManager([]byte("seed"), 1, secrets, hasher)

	first, err := m.ID(ctx, shielder.NativeToken())
	require.NoError(t, err)
	second, err := m.ID(ctx, shielder.NativeToken())
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.Equal(t, 1, secrets.deriveIDCalls)

	h1, err := m.IDHash(ctx, shielder.NativeToken())
	require.NoError(t, err)
	h2, err := m.IDHash(ctx, shielder.NativeToken())
	require.NoError(t, err)
	assert.True(t, h1.Equal(h2))
	assert.Equal(t, 1, hasher.calls)
	assert.Equal(t, 1, secrets.deriveIDCalls)

	other, err := m.ID(ctx, usdc)
	require.NoError(t, err)
	assert.False(t, other.Equal(first))
	assert.Equal(t, 2, secrets.deriveIDCalls)
}

type gatedSecrets struct {
	shielder.SecretManager
	calls   atomic.Int32
	release chan struct{}
}

func (g *gatedSecrets) DeriveID(ctx context.Context, seed []byte, chainID uint64, token common.Address) (shielder.Scalar, error) {
	g.calls.Add(1)
	if token != shielder.NativeTokenAddress {
		select {
		case <-g.release:
		case <-ctx.Done():
			return shielder.Scalar{}, ctx.Err()
		}
	}
	return g.SecretManager.DeriveID(ctx, seed, chainID, token)
}

func TestIDManagerConcurrentLookups(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	secrets := &gatedSecrets{SecretManager: devoracle.SecretManager{}, release: make(chan struct{})}
	m := NewIDManager([]byte("seed"), 1, secrets, devoracle.NewHasher(devoracle.DefaultRate))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.IDHash(ctx, usdc)
			errs <- err
		}()
	}

	// A slow derivation for one token does not block another token.
	_, err := m.ID(ctx, shielder.NativeToken())
	require.NoError(t, err)
	close(secrets.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), secrets.calls.Load())
}

func TestIDManagerValidateIDHash(t *testing.T) {
	ctx := context.Background()
	m := newIDManager("seed")

	h, err := m.IDHash(ctx, shielder.NativeToken())
	require.NoError(t, err)
	require.NoError(t, m.ValidateIDHash(ctx, shielder.NativeToken(), h))

	err = m.ValidateIDHash(ctx, shielder.NativeToken(), shielder.ScalarFromUint64(1))
	require.ErrorIs(t, err, shielder.ErrIntegrity)
}

func TestSerdeRoundTrip(t *testing.T) {
	ctx := context.Background()
	ids := newIDManager("seed")
	serde := NewSerde(ids)

	id, err := ids.ID(ctx, usdc)
	require.NoError(t, err)
	huge := new(big.Int).Lsh(big.NewInt(1), 200)

	tests := []struct {
		name  string
		state *shielder.AccountState
	}{
		{"empty", &shielder.AccountState{ID: id, Token: usdc, Balance: new(big.Int)}},
		{"indexed", &shielder.AccountState{
			ID: id, Token: usdc, Nonce: 3, Balance: huge,
			CurrentNote: shielder.ScalarFromUint64(77), CurrentNoteIndex: big.NewInt(12),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := serde.ToRecord(ctx, tt.state)
			require.NoError(t, err)
			idHash, err := ids.IDHash(ctx, usdc)
			require.NoError(t, err)
			assert.Equal(t, idHash.String(), rec.IDHash)

			back, err := serde.FromRecord(ctx, rec)
			require.NoError(t, err)
			assert.True(t, back.Equal(tt.state), "got %+v", back)
		})
	}
}

func TestSerdeRejectsRecordOfAnotherSeed(t *testing.T) {
	ctx := context.Background()
	mine := NewSerde(newIDManager("mine"))
	theirs := NewSerde(newIDManager("theirs"))

	st, err := NewAccountFactory(newIDManager("theirs")).CreateEmptyAccountState(ctx, shielder.NativeToken())
	require.NoError(t, err)
	rec, err := theirs.ToRecord(ctx, st)
	require.NoError(t, err)

	_, err = mine.FromRecord(ctx, rec)
	require.ErrorIs(t, err, shielder.ErrIntegrity)
}

func TestSerdeChecksIDHashFirst(t *testing.T) {
	ctx := context.Background()
	theirs := NewSerde(newIDManager("theirs"))
	st, err := NewAccountFactory(newIDManager("theirs")).CreateEmptyAccountState(ctx, shielder.NativeToken())
	require.NoError(t, err)
	rec, err := theirs.ToRecord(ctx, st)
	require.NoError(t, err)
	rec.Nonce = "not a number"

	_, err = NewSerde(newIDManager("mine")).FromRecord(ctx, rec)
	require.ErrorIs(t, err, shielder.ErrIntegrity)

	_, err = theirs.FromRecord(ctx, rec)
	require.Error(t, err)
	assert.NotErrorIs(t, err, shielder.ErrIntegrity)
	assert.Contains(t, err.Error(), "invalid nonce")
}

type countingKV struct {
	storage.KV
	puts int
}

func (c *countingKV) Put(ctx context.Context, key string, value []byte) error {
	c.puts++
	return c.KV.Put(ctx, key, value)
}

func TestRegistryReadsDoNotWrite(t *testing.T) {
	ctx := context.Background()
	db, err := storage.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	kv := &countingKV{KV: db}
	reg := NewRegistry(storage.NewManager(kv, "", zerolog.Nop()), newIDManager("seed"), zerolog.Nop())

	_, err = reg.GetAccountState(ctx, shielder.NativeToken())
	require.NoError(t, err)
	_, ok, err := reg.GetTokenByAccountIndex(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	list, err := reg.AccountStatesList(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, kv.puts)
}

func TestRegistryGetDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	reg, sm := newRegistry(t, "seed")

	st, err := reg.GetAccountState(ctx, shielder.NativeToken())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), st.Nonce)
	assert.Equal(t, 0, st.Balance.Sign())
	assert.Nil(t, st.CurrentNoteIndex)

	next, err := sm.NextAccountIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)
}

func TestRegistryUpdateAllocatesAndAdvances(t *testing.T) {
	ctx := context.Background()
	reg, sm := newRegistry(t, "seed")

	native, err := reg.GetAccountState(ctx, shielder.NativeToken())
	require.NoError(t, err)
	native.Nonce = 1
	native.Balance = big.NewInt(10)
	native.CurrentNoteIndex = big.NewInt(0)
	require.NoError(t, reg.UpdateAccountState(ctx, shielder.NativeToken(), native))

	token, err := reg.GetAccountState(ctx, usdc)
	require.NoError(t, err)
	token.Nonce = 1
	token.CurrentNoteIndex = big.NewInt(1)
	require.NoError(t, reg.UpdateAccountState(ctx, usdc, token))

	native.Nonce = 2
	require.NoError(t, reg.UpdateAccountState(ctx, shielder.NativeToken(), native))

	next, err := sm.NextAccountIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)

	got, ok, err := reg.GetTokenByAccountIndex(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, usdc, got)
	_, ok, err = reg.GetTokenByAccountIndex(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := reg.AccountStatesList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(2), list[0].Nonce)
	assert.Equal(t, usdc, list[1].Token)
}

func TestRegistryUpdateRejections(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t, "seed")

	st, err := reg.GetAccountState(ctx, shielder.NativeToken())
	require.NoError(t, err)
	st.Nonce = 1
	require.NoError(t, reg.UpdateAccountState(ctx, shielder.NativeToken(), st))

	t.Run("stale nonce", func(t *testing.T) {
		err := reg.UpdateAccountState(ctx, shielder.NativeToken(), st)
		require.ErrorIs(t, err, shielder.ErrStaleState)
	})
	t.Run("foreign id", func(t *testing.T) {
		forged := st.Clone()
		forged.Nonce = 2
		forged.ID = shielder.ScalarFromUint64(1)
		err := reg.UpdateAccountState(ctx, shielder.NativeToken(), forged)
		require.ErrorIs(t, err, shielder.ErrIntegrity)
	})
	t.Run("token mismatch", func(t *testing.T) {
		err := reg.UpdateAccountState(ctx, usdc, st)
		require.ErrorIs(t, err, shielder.ErrIntegrity)
	})
}

type fakePaths struct {
	path []*big.Int
	err  error
}

func (f fakePaths) GetMerklePath(context.Context, *big.Int) ([]*big.Int, error) {
	return f.path, f.err
}

func TestAccountOnchain(t *testing.T) {
	ctx := context.Background()
	tree := devoracle.NewTreeConfig(1, 2)
	st := &shielder.AccountState{
		Token:            shielder.NativeToken(),
		Nonce:            1,
		Balance:          big.NewInt(1),
		CurrentNote:      shielder.ScalarFromUint64(9),
		CurrentNoteIndex: big.NewInt(3),
	}
	path := []*big.Int{big.NewInt(8), big.NewInt(9), big.NewInt(100)}

	require.NoError(t, NewAccountOnchain(fakePaths{path: path}, tree).ValidateAccountState(ctx, st))

	other := st.Clone()
	other.CurrentNote = shielder.ScalarFromUint64(8)
	err := NewAccountOnchain(fakePaths{path: path}, tree).ValidateAccountState(ctx, other)
	require.ErrorIs(t, err, shielder.ErrAccountNotOnChain)

	err = NewAccountOnchain(fakePaths{err: errors.New("rpc down")}, tree).ValidateAccountState(ctx, st)
	require.ErrorIs(t, err, shielder.ErrAccountNotOnChain)

	unindexed := st.Clone()
	unindexed.CurrentNoteIndex = nil
	err = NewAccountOnchain(fakePaths{path: path}, tree).ValidateAccountState(ctx, unindexed)
	require.ErrorIs(t, err, shielder.ErrNoNoteIndex)
}
