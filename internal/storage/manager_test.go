package storage

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *LevelDB) {
	t.Helper()
	db, err := NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewManager(db, "test", zerolog.Nop()), db
}

func record(token string) Record {
	return Record{
		IDHash:           "11",
		Nonce:            "1",
		Balance:          "100",
		CurrentNote:      "22",
		CurrentNoteIndex: "0",
		TokenAddress:     token,
	}
}

const (
	nativeAddr = "0x0000000000000000000000000000000000000000"
	tokenAddr  = "0xAbCdEf0000000000000000000000000000000001"
)

func TestManagerEmpty(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	rec, err := m.GetRawAccount(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, rec)

	next, err := m.NextAccountIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)

	found, err := m.FindAccountByTokenAddress(ctx, nativeAddr)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestManagerSlotsInOrder(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	err := m.SaveRawAccount(ctx, 1, record(nativeAddr))
	require.ErrorIs(t, err, ErrSlotOutOfOrder)

	require.NoError(t, m.SaveRawAccount(ctx, 0, record(nativeAddr)))
	next, err := m.NextAccountIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	// Overwriting an allocated slot keeps the counter.
	updated := record(nativeAddr)
	updated.Nonce = "2"
	require.NoError(t, m.SaveRawAccount(ctx, 0, updated))
	next, err = m.NextAccountIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)

	slot, err := m.SaveRawAccountAndIncrementNextAccountIndex(ctx, record(tokenAddr))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), slot)

	rec, err := m.GetRawAccount(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "2", rec.Nonce)

	all, err := m.AllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(0), all[0].Index)
	assert.Equal(t, uint64(1), all[1].Index)
}

func TestManagerFindByTokenAddressIgnoresCase(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	_, err := m.SaveRawAccountAndIncrementNextAccountIndex(ctx, record(nativeAddr))
	require.NoError(t, err)
	_, err = m.SaveRawAccountAndIncrementNextAccountIndex(ctx, record(tokenAddr))
	require.NoError(t, err)

	found, err := m.FindAccountByTokenAddress(ctx, "0xabcdef0000000000000000000000000000000001")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, uint64(1), found.Index)
}

func TestManagerRejectsOtherSchemaVersion(t *testing.T) {
	ctx := context.Background()
	m, db := newTestManager(t)

	require.NoError(t, db.Put(ctx, m.key, []byte(`{"accounts":{},"nextAccountIndex":0,"storageSchemaVersion":2}`)))
	err := m.SaveRawAccount(ctx, 0, record(nativeAddr))
	require.ErrorIs(t, err, ErrSchemaVersion)
}

func TestManagerRejectsMalformedRecord(t *testing.T) {
	ctx := context.Background()
	m, db := newTestManager(t)

	raw := `{"accounts":{"0":{"idHash":"x","nonce":"1","balance":"1","currentNote":"1","tokenAddress":"` +
		nativeAddr + `"}},"nextAccountIndex":1,"storageSchemaVersion":1}`
	require.NoError(t, db.Put(ctx, m.key, []byte(raw)))
	_, err := m.GetRawAccount(ctx, 0)
	require.ErrorContains(t, err, "invalid idHash")
}

func TestManagerNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db, err := NewMemoryDB()
	require.NoError(t, err)
	defer db.Close()

	a := NewManager(db, "a", zerolog.Nop())
	b := NewManager(db, "b", zerolog.Nop())
	_, err = a.SaveRawAccountAndIncrementNextAccountIndex(ctx, record(nativeAddr))
	require.NoError(t, err)

	next, err := b.NextAccountIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)
}

type countingKV struct {
	KV
	puts int
}

func (c *countingKV) Put(ctx context.Context, key string, value []byte) error {
	c.puts++
	return c.KV.Put(ctx, key, value)
}

func TestManagerReadsDoNotWrite(t *testing.T) {
	ctx := context.Background()
	_, db := newTestManager(t)
	kv := &countingKV{KV: db}
	m := NewManager(kv, "reads", zerolog.Nop())

	_, err := m.GetRawAccount(ctx, 0)
	require.NoError(t, err)
	_, err = m.FindAccountByTokenAddress(ctx, nativeAddr)
	require.NoError(t, err)
	_, err = m.NextAccountIndex(ctx)
	require.NoError(t, err)
	all, err := m.AllAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Zero(t, kv.puts)

	_, ok, err := db.Get(ctx, m.key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.SaveRawAccountAndIncrementNextAccountIndex(ctx, record(nativeAddr))
	require.NoError(t, err)
	assert.Equal(t, 1, kv.puts)
}
