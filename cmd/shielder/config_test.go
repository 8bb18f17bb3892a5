package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shielder/internal/shielder"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shielder.json")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg.RelayerURL = "http://relay.local"
	cfg.Tokens = []string{"native", "0x00000000000000000000000000000000000000e2"}
	require.NoError(t, SaveConfig(cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	tokens, err := loaded.ParseTokens()
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.True(t, tokens[0].IsNative())
	assert.Equal(t, shielder.TokenERC20, tokens[1].Kind())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"rpc without contract", func(c *Config) { c.RPCURL = "http://localhost:8545" }},
		{"fee out of range", func(c *Config) { c.WithdrawFeeBps = shielder.MaxBps }},
		{"negative relay fee", func(c *Config) { c.LocalRelayerFee = -1 }},
		{"bad tree", func(c *Config) { c.TreeArity = 1 }},
		{"bad token", func(c *Config) { c.Tokens = []string{"dollars"} }},
		{"no storage", func(c *Config) { c.StoragePath = "" }},
		{"no timeout", func(c *Config) { c.TimeoutSeconds = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
