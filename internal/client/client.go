// Package client is the entry point of the shielder engine: it wires the account
// registry, the chain synchronizer and the actions into one Client.
package client

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"shielder/internal/chainsync"
	"shielder/internal/shielder"
	"shielder/internal/state"
	"shielder/internal/storage"
	"shielder/internal/transactions/deposit"
	"shielder/internal/transactions/newaccount"
	"shielder/internal/transactions/withdraw"
)

// Config holds the collaborators of a Client. Relayer may be nil when only direct
// submissions are used.
type Config struct {
	Seed    []byte
	ChainID uint64

	Ledger   shielder.Ledger
	Receipts shielder.ReceiptWaiter
	Relayer  shielder.Relayer
	Crypto   *shielder.CryptoClient
	Storage  storage.KV
	// Namespace separates the accounts of different seeds sharing one store.
	Namespace string
	// Tokens are probed, in parallel, when recovering accounts missing from storage.
	Tokens []shielder.Token

	Version  shielder.ProtocolVersion
	Observer Observer
	Logger   zerolog.Logger
}

// Client owns the account states of one seed.
type Client struct {
	*Actions
	registry *state.Registry
	history  *chainsync.HistoryFetcher
}

var errNoRelayer = errors.New("no relayer configured")

// New wires a client from cfg.
func New(cfg Config) (*Client, error) {
	switch {
	case cfg.Ledger == nil:
		return nil, errors.New("client: ledger is required")
	case cfg.Receipts == nil:
		return nil, errors.New("client: receipt waiter is required")
	case cfg.Crypto == nil:
		return nil, errors.New("client: crypto client is required")
	case cfg.Storage == nil:
		return nil, errors.New("client: storage is required")
	case len(cfg.Seed) == 0:
		return nil, errors.New("client: seed is required")
	}
	if cfg.Version == (shielder.ProtocolVersion{}) {
		cfg.Version = shielder.CurrentVersion
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Relayer == nil {
		cfg.Relayer = missingRelayer{}
	}
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = []shielder.Token{shielder.NativeToken()}
	}
	logger := cfg.Logger

	ids := state.NewIDManager(cfg.Seed, cfg.ChainID, cfg.Crypto.Secrets, cfg.Crypto.Hasher)
	registry := state.NewRegistry(storage.NewManager(cfg.Storage, cfg.Namespace, logger), ids, logger)
	factory := state.NewAccountFactory(ids)

	na := newaccount.New(cfg.Ledger, cfg.Crypto, logger)
	dep := deposit.New(cfg.Ledger, cfg.Crypto, logger)
	wd := withdraw.New(cfg.Ledger, cfg.Relayer, cfg.Crypto, logger)

	finder := chainsync.NewFinder(cfg.Ledger, cfg.Crypto, chainsync.NewLocalStateTransition(na, dep, wd), logger)
	tokens := chainsync.NewTokenAccountFinder(cfg.Ledger, ids, cfg.Tokens, logger)

	return &Client{
		Actions: &Actions{
			registry:   registry,
			sync:       chainsync.NewSynchronizer(registry, finder, tokens, logger),
			ledger:     cfg.Ledger,
			relayer:    cfg.Relayer,
			receipts:   cfg.Receipts,
			onchain:    state.NewAccountOnchain(cfg.Ledger, cfg.Crypto.Tree),
			newAccount: na,
			deposit:    dep,
			withdraw:   wd,
			version:    cfg.Version,
			observer:   cfg.Observer,
			log:        logger.With().Str("component", "client").Logger(),
		},
		registry: registry,
		history:  chainsync.NewHistoryFetcher(factory, finder, tokens),
	}, nil
}

// SyncShielder brings every account up to date, reporting new transactions to the
// observer. Accounts created elsewhere with this seed are discovered from the ledger.
func (c *Client) SyncShielder(ctx context.Context) error {
	if err := c.sync.SyncAllAccounts(ctx, c.observer.NewTransaction); err != nil {
		return c.fail(err, StageSyncing, OpSync)
	}
	return nil
}

// SyncToken syncs the account of a single token.
func (c *Client) SyncToken(ctx context.Context, token shielder.Token) error {
	if err := c.sync.SyncSingleAccount(ctx, token, c.observer.NewTransaction); err != nil {
		return c.fail(err, StageSyncing, OpSync)
	}
	return nil
}

func (c *Client) AccountState(ctx context.Context, token shielder.Token) (*shielder.AccountState, error) {
	return c.registry.GetAccountState(ctx, token)
}

// AccountStatesList returns the persisted accounts in creation order.
func (c *Client) AccountStatesList(ctx context.Context) ([]*shielder.AccountState, error) {
	return c.registry.AccountStatesList(ctx)
}

// TransactionHistory replays every account of the seed from the ledger. It ignores
// local storage and may be slow on long histories.
func (c *Client) TransactionHistory(ctx context.Context) ([]shielder.ShielderTransaction, error) {
	return c.collect(ctx, c.history.TransactionHistory())
}

// TokenTransactionHistory replays the account of one token.
func (c *Client) TokenTransactionHistory(ctx context.Context, token shielder.Token) ([]shielder.ShielderTransaction, error) {
	return c.collect(ctx, c.history.TransactionHistorySingleToken(token))
}

func (c *Client) collect(ctx context.Context, s *chainsync.Stream) ([]shielder.ShielderTransaction, error) {
	txs, err := s.Collect(ctx)
	if err != nil {
		return txs, c.fail(err, StageSyncing, OpSync)
	}
	return txs, nil
}

type missingRelayer struct{}

func (missingRelayer) Withdraw(context.Context, shielder.WithdrawCall) (shielder.RelayResponse, error) {
	return shielder.RelayResponse{}, errNoRelayer
}

func (missingRelayer) QuoteFees(context.Context) (shielder.QuotedFees, error) {
	return shielder.QuotedFees{}, errNoRelayer
}

func (missingRelayer) Address(context.Context) (common.Address, error) {
	return common.Address{}, errNoRelayer
}
