// config.go - Configuration of the shielder command
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"

	"shielder/internal/shielder"
)

// Config represents the application configuration
type Config struct {
	// Ledger. An empty RPC URL selects the local in-memory ledger persisted at LedgerPath.
	RPCURL          string `json:"rpc_url"`
	ContractAddress string `json:"contract_address"`
	ChainID         uint64 `json:"chain_id"`
	LedgerPath      string `json:"ledger_path"`
	DepositFeeBps   int64  `json:"deposit_fee_bps"`
	WithdrawFeeBps  int64  `json:"withdraw_fee_bps"`

	// Relay. An empty URL relays through the local ledger for LocalRelayerFee.
	RelayerURL               string  `json:"relayer_url"`
	RelayerRequestsPerSecond float64 `json:"relayer_requests_per_second"`
	RelayerBurst             int     `json:"relayer_burst"`
	LocalRelayerAddress      string  `json:"local_relayer_address"`
	LocalRelayerFee          int64   `json:"local_relayer_fee"`

	// Accounts
	KeyFile     string   `json:"key_file"`
	StoragePath string   `json:"storage_path"`
	Tokens      []string `json:"tokens"`

	// Note tree
	TreeHeight int `json:"tree_height"`
	TreeArity  int `json:"tree_arity"`

	// Timing
	ReceiptPollMillis int `json:"receipt_poll_millis"`
	TimeoutSeconds    int `json:"timeout_seconds"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ChainID:                  1,
		LedgerPath:               "ledger.json",
		RelayerRequestsPerSecond: 5,
		RelayerBurst:             1,
		LocalRelayerAddress:      "0x00000000000000000000000000000000000000f1",
		LocalRelayerFee:          0,
		KeyFile:                  "shielder.key",
		StoragePath:              "shielder-db",
		Tokens:                   []string{"native"},
		TreeHeight:               13,
		TreeArity:                7,
		ReceiptPollMillis:        1000,
		TimeoutSeconds:           120,
		LogLevel:                 "info",
		LogFormat:                "console",
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		config := DefaultConfig()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RPCURL != "" && !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("contract_address must be a hex address when rpc_url is set")
	}
	if c.RPCURL == "" && c.LedgerPath == "" {
		return fmt.Errorf("ledger_path is required without rpc_url")
	}
	if c.RelayerURL == "" && !common.IsHexAddress(c.LocalRelayerAddress) {
		return fmt.Errorf("local_relayer_address must be a hex address")
	}
	if c.DepositFeeBps < 0 || c.DepositFeeBps >= shielder.MaxBps || c.WithdrawFeeBps < 0 || c.WithdrawFeeBps >= shielder.MaxBps {
		return fmt.Errorf("fee bps must be in [0, %d)", shielder.MaxBps)
	}
	if c.LocalRelayerFee < 0 {
		return fmt.Errorf("local_relayer_fee must not be negative")
	}
	if c.KeyFile == "" {
		return fmt.Errorf("key_file is required")
	}
	if c.StoragePath == "" {
		return fmt.Errorf("storage_path is required")
	}
	if c.TreeHeight <= 0 || c.TreeArity <= 1 {
		return fmt.Errorf("tree_height must be positive and tree_arity greater than 1")
	}
	if c.ReceiptPollMillis <= 0 {
		return fmt.Errorf("receipt_poll_millis must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	if _, err := c.ParseTokens(); err != nil {
		return err
	}
	return nil
}

// ParseTokens returns the configured candidate tokens.
func (c *Config) ParseTokens() ([]shielder.Token, error) {
	tokens := make([]shielder.Token, 0, len(c.Tokens))
	for _, s := range c.Tokens {
		t, err := shielder.ParseToken(s)
		if err != nil {
			return nil, fmt.Errorf("tokens: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}
