// app.go - Wiring of the client from the configuration
package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"shielder/internal/chain"
	"shielder/internal/client"
	"shielder/internal/ledger"
	"shielder/internal/oracle/devoracle"
	"shielder/internal/relayer"
	"shielder/internal/shielder"
	"shielder/internal/storage"
)

type app struct {
	cfg     *Config
	client  *client.Client
	ledger  shielder.Ledger
	relayer shielder.Relayer
	send    shielder.SendTxFunc
	from    common.Address
	db      *storage.LevelDB
	// local is set when no RPC URL is configured.
	local *ledger.Ledger
	eth   *ethclient.Client
	log   zerolog.Logger
}

// loadOrCreateKey reads the hex private key at path, generating one when the file
// does not exist.
func loadOrCreateKey(path string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	key, err = crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return nil, fmt.Errorf("failed to save key: %w", err)
	}
	return key, nil
}

func addressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func openApp(ctx context.Context, cfg *Config, logger zerolog.Logger, observer client.Observer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	tokens, err := cfg.ParseTokens()
	if err != nil {
		return nil, err
	}
	key, err := loadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, from: addressOf(key), log: logger}
	cc := devoracle.New(devoracle.Config{Height: cfg.TreeHeight, Arity: cfg.TreeArity})

	var receipts shielder.ReceiptWaiter
	if cfg.RPCURL == "" {
		l, err := ledger.OpenOrCreate(ctx, cfg.LedgerPath, cc, ledger.Options{
			DepositFeeBps:  cfg.DepositFeeBps,
			WithdrawFeeBps: cfg.WithdrawFeeBps,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		a.local, a.ledger, a.send, receipts = l, l, l.Send, l
		if cfg.RelayerURL == "" {
			a.relayer = ledger.NewRelayer(l, common.HexToAddress(cfg.LocalRelayerAddress), big.NewInt(cfg.LocalRelayerFee))
		}
	} else {
		ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
		}
		a.eth = ec
		chainID := new(big.Int).SetUint64(cfg.ChainID)
		if cfg.ChainID == 0 {
			if chainID, err = ec.ChainID(ctx); err != nil {
				ec.Close()
				return nil, fmt.Errorf("failed to fetch chain id: %w", err)
			}
			cfg.ChainID = chainID.Uint64()
		}
		a.ledger = chain.NewContract(ec, common.HexToAddress(cfg.ContractAddress), logger)
		a.send = chain.NewKeySender(ec, key, chainID).Send
		receipts = chain.NewReceiptWaiter(ec, time.Duration(cfg.ReceiptPollMillis)*time.Millisecond)
	}
	if cfg.RelayerURL != "" {
		a.relayer = relayer.New(relayer.Config{
			URL:               cfg.RelayerURL,
			Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.RelayerRequestsPerSecond,
			Burst:             cfg.RelayerBurst,
		}, logger)
	}

	db, err := storage.OpenLevelDB(cfg.StoragePath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	a.client, err = client.New(client.Config{
		Seed:      crypto.FromECDSA(key),
		ChainID:   cfg.ChainID,
		Ledger:    a.ledger,
		Receipts:  receipts,
		Relayer:   a.relayer,
		Crypto:    cc,
		Storage:   db,
		Namespace: fmt.Sprintf("%d:%s", cfg.ChainID, a.ledger.Address().Hex()),
		Tokens:    tokens,
		Observer:  observer,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close persists the local ledger and releases every handle.
func (a *app) Close() error {
	var errs []error
	if a.local != nil {
		errs = append(errs, a.local.SaveToFile(a.cfg.LedgerPath))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.eth != nil {
		a.eth.Close()
	}
	return errors.Join(errs...)
}

func (a *app) healthChecker() *HealthChecker {
	hc := NewHealthChecker()
	hc.RegisterComponent("ledger", func(ctx context.Context) error {
		_, err := a.ledger.DepositFeeBps(ctx)
		return err
	})
	if a.relayer != nil {
		hc.RegisterComponent("relayer", func(ctx context.Context) error {
			_, err := a.relayer.Address(ctx)
			return err
		})
	}
	hc.RegisterComponent("storage", func(ctx context.Context) error {
		_, err := a.client.AccountStatesList(ctx)
		return err
	})
	return hc
}
