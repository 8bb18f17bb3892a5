// oracle.go - Assembly of the development crypto client.

package devoracle

import "shielder/internal/shielder"

// Config selects the tree shape and hasher rate. Zero values take the defaults.
type Config struct {
	Rate   int
	Height int
	Arity  int
}

// New returns a crypto client whose circuits share one hasher and tree shape.
func New(cfg Config) *shielder.CryptoClient {
	if cfg.Rate == 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.Arity == 0 {
		cfg.Arity = DefaultArity
	}
	h := NewHasher(cfg.Rate)
	return &shielder.CryptoClient{
		Hasher:     h,
		Secrets:    SecretManager{},
		Tree:       NewTreeConfig(cfg.Height, cfg.Arity),
		NewAccount: &NewAccountCircuit{hasher: h},
		Deposit:    &DepositCircuit{hasher: h, arity: cfg.Arity},
		Withdraw:   &WithdrawCircuit{hasher: h, arity: cfg.Arity},
	}
}
