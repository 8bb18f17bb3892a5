// schema.go - Persisted container layout.
//
// One container per seed:
//
//	{"accounts": {slot: record}, "nextAccountIndex": n, "storageSchemaVersion": 1}
//
// Integers are decimal strings so the container survives transports with limited
// numeric precision.

package storage

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SchemaVersion is the only container version this package reads and writes.
const SchemaVersion = 1

// Record is the persisted form of one account. The id is replaced by its hash.
type Record struct {
	IDHash           string `json:"idHash"`
	Nonce            string `json:"nonce"`
	Balance          string `json:"balance"`
	CurrentNote      string `json:"currentNote"`
	CurrentNoteIndex string `json:"currentNoteIndex,omitempty"`
	TokenAddress     string `json:"tokenAddress"`
}

// Validate checks that every numeric field is a non-negative decimal and the token
// address is well formed.
func (r *Record) Validate() error {
	fields := []struct {
		name, value string
		optional    bool
	}{
		{"idHash", r.IDHash, false},
		{"nonce", r.Nonce, false},
		{"balance", r.Balance, false},
		{"currentNote", r.CurrentNote, false},
		{"currentNoteIndex", r.CurrentNoteIndex, true},
	}
	for _, f := range fields {
		if f.optional && f.value == "" {
			continue
		}
		v, ok := new(big.Int).SetString(f.value, 10)
		if !ok || v.Sign() < 0 {
			return fmt.Errorf("invalid %s %q", f.name, f.value)
		}
	}
	if !common.IsHexAddress(r.TokenAddress) {
		return fmt.Errorf("invalid tokenAddress %q", r.TokenAddress)
	}
	return nil
}

// Container is the whole per-seed storage object.
type Container struct {
	Accounts             map[string]Record `json:"accounts"`
	NextAccountIndex     uint64            `json:"nextAccountIndex"`
	StorageSchemaVersion int               `json:"storageSchemaVersion"`
}

func newContainer() *Container {
	return &Container{
		Accounts:             make(map[string]Record),
		StorageSchemaVersion: SchemaVersion,
	}
}
