// manager.go - Keyed access to persisted account records.
//
// Manager is not safe for concurrent writers; route all writers for one seed through
// one synchronizer and registry.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const containerKey = "__shielder_storage__"

var (
	// ErrSlotOutOfOrder is returned when a record would leave a gap in the slots.
	ErrSlotOutOfOrder = errors.New("slots must be filled in order")
	// ErrSchemaVersion is returned when writing a container of another schema version.
	ErrSchemaVersion = errors.New("storage schema version mismatch")
)

// IndexedRecord is a record together with its slot.
type IndexedRecord struct {
	Index  uint64
	Record Record
}

// Manager keeps the account records of one seed in a single container value.
type Manager struct {
	kv  KV
	key string
	log zerolog.Logger
}

// NewManager stores the container under a key derived from namespace. An empty
// namespace uses the default key.
func NewManager(kv KV, namespace string, logger zerolog.Logger) *Manager {
	key := containerKey
	if namespace != "" {
		key = containerKey + "/" + namespace
	}
	return &Manager{
		kv:  kv,
		key: key,
		log: logger.With().Str("component", "storage").Logger(),
	}
}

// GetRawAccount returns the record at index, or nil.
func (m *Manager) GetRawAccount(ctx context.Context, index uint64) (*Record, error) {
	c, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := c.Accounts[slotKey(index)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// SaveRawAccount writes rec at index. index may not exceed the next free slot;
// writing the next free slot allocates it.
func (m *Manager) SaveRawAccount(ctx context.Context, index uint64, rec Record) error {
	c, err := m.load(ctx)
	if err != nil {
		return err
	}
	switch {
	case index == c.NextAccountIndex:
		c.NextAccountIndex++
	case index > c.NextAccountIndex:
		return fmt.Errorf("%w: cannot save account at index %d when next account index is %d",
			ErrSlotOutOfOrder, index, c.NextAccountIndex)
	}
	c.Accounts[slotKey(index)] = rec
	return m.store(ctx, c)
}

// SaveRawAccountAndIncrementNextAccountIndex writes rec at the next free slot and
// advances the counter in the same write. It returns the slot used.
func (m *Manager) SaveRawAccountAndIncrementNextAccountIndex(ctx context.Context, rec Record) (uint64, error) {
	c, err := m.load(ctx)
	if err != nil {
		return 0, err
	}
	index := c.NextAccountIndex
	c.Accounts[slotKey(index)] = rec
	c.NextAccountIndex++
	if err := m.store(ctx, c); err != nil {
		return 0, err
	}
	m.log.Debug().Uint64("slot", index).Str("token", rec.TokenAddress).Msg("allocated account slot")
	return index, nil
}

// NextAccountIndex returns the first free slot.
func (m *Manager) NextAccountIndex(ctx context.Context) (uint64, error) {
	c, err := m.load(ctx)
	if err != nil {
		return 0, err
	}
	return c.NextAccountIndex, nil
}

// FindAccountByTokenAddress scans slots in order and returns the first record whose
// token address matches case-insensitively.
func (m *Manager) FindAccountByTokenAddress(ctx context.Context, tokenAddress string) (*IndexedRecord, error) {
	all, err := m.AllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if strings.EqualFold(all[i].Record.TokenAddress, tokenAddress) {
			return &all[i], nil
		}
	}
	return nil, nil
}

// AllAccounts returns every record sorted by slot.
func (m *Manager) AllAccounts(ctx context.Context) ([]IndexedRecord, error) {
	c, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]IndexedRecord, 0, len(c.Accounts))
	for k, rec := range c.Accounts {
		index, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid slot key %q: %w", k, err)
		}
		out = append(out, IndexedRecord{Index: index, Record: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// load reads the container. A missing container reads as empty and is written by
// the first save.
func (m *Manager) load(ctx context.Context) (*Container, error) {
	raw, ok, err := m.kv.Get(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage: %w", err)
	}
	if !ok {
		return newContainer(), nil
	}
	var c Container
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse storage value: %w", err)
	}
	if c.Accounts == nil {
		c.Accounts = make(map[string]Record)
	}
	for k, rec := range c.Accounts {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("failed to parse storage value: slot %s: %w", k, err)
		}
	}
	return &c, nil
}

func (m *Manager) store(ctx context.Context, c *Container) error {
	if c.StorageSchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: %d != %d", ErrSchemaVersion, c.StorageSchemaVersion, SchemaVersion)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode storage: %w", err)
	}
	if err := m.kv.Put(ctx, m.key, raw); err != nil {
		return fmt.Errorf("failed to write storage: %w", err)
	}
	return nil
}

func slotKey(index uint64) string {
	return strconv.FormatUint(index, 10)
}
