// idmanager.go - Per-token account identifiers derived from the seed.

package state

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"shielder/internal/shielder"
)

// IDManager derives and caches the secret id of each token account and its hash.
// The oracle is asked once per token for the id and once for the hash, also when
// lookups for the same token race.
type IDManager struct {
	seed    []byte
	chainID uint64
	secrets shielder.SecretManager
	hasher  shielder.Hasher

	group singleflight.Group

	mu       sync.Mutex
	ids      map[string]shielder.Scalar
	idHashes map[string]shielder.Scalar
}

// NewIDManager derives ids for seed on chainID.
func NewIDManager(seed []byte, chainID uint64, secrets shielder.SecretManager, hasher shielder.Hasher) *IDManager {
	return &IDManager{
		seed:     append([]byte(nil), seed...),
		chainID:  chainID,
		secrets:  secrets,
		hasher:   hasher,
		ids:      make(map[string]shielder.Scalar),
		idHashes: make(map[string]shielder.Scalar),
	}
}

// ID returns the account id for token.
func (m *IDManager) ID(ctx context.Context, token shielder.Token) (shielder.Scalar, error) {
	return m.cached(m.ids, "id/"+token.Key(), token, func() (shielder.Scalar, error) {
		id, err := m.secrets.DeriveID(ctx, m.seed, m.chainID, token.Address())
		if err != nil {
			return shielder.Scalar{}, fmt.Errorf("failed to derive id: %w", err)
		}
		return id, nil
	})
}

// IDHash returns H(id) for token.
func (m *IDManager) IDHash(ctx context.Context, token shielder.Token) (shielder.Scalar, error) {
	return m.cached(m.idHashes, "hash/"+token.Key(), token, func() (shielder.Scalar, error) {
		id, err := m.ID(ctx, token)
		if err != nil {
			return shielder.Scalar{}, err
		}
		h, err := m.hasher.Hash(ctx, []shielder.Scalar{id})
		if err != nil {
			return shielder.Scalar{}, fmt.Errorf("failed to hash id: %w", err)
		}
		return h, nil
	})
}

// ValidateIDHash fails with an IntegrityError when stored is not the hash of the id
// this seed derives for token.
func (m *IDManager) ValidateIDHash(ctx context.Context, token shielder.Token, stored shielder.Scalar) error {
	expected, err := m.IDHash(ctx, token)
	if err != nil {
		return err
	}
	if !expected.Equal(stored) {
		return &shielder.IntegrityError{Reason: "ID hash does not match the expected value"}
	}
	return nil
}

// cached serves token's entry of cache, running derive at most once at a time per key.
// The lock is not held while derive talks to the oracle.
func (m *IDManager) cached(cache map[string]shielder.Scalar, key string, token shielder.Token,
	derive func() (shielder.Scalar, error)) (shielder.Scalar, error) {
	if v, ok := m.lookup(cache, token); ok {
		return v, nil
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.lookup(cache, token); ok {
			return v, nil
		}
		v, err := derive()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		cache[token.Key()] = v
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return shielder.Scalar{}, err
	}
	return v.(shielder.Scalar), nil
}

func (m *IDManager) lookup(cache map[string]shielder.Scalar, token shielder.Token) (shielder.Scalar, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := cache[token.Key()]
	return v, ok
}
