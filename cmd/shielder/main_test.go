package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LedgerPath = filepath.Join(dir, "ledger.json")
	cfg.KeyFile = filepath.Join(dir, "shielder.key")
	cfg.StoragePath = filepath.Join(dir, "db")
	cfg.TreeHeight, cfg.TreeArity = 4, 3
	cfg.LocalRelayerFee = 5
	cfg.LogLevel = "error"
	path := filepath.Join(dir, "shielder.json")
	require.NoError(t, SaveConfig(cfg, path))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func balanceOf(t *testing.T, configPath string) accountView {
	t.Helper()
	out, err := run(t, configPath, "balance")
	require.NoError(t, err)
	var view struct {
		Nonce   uint64 `json:"nonce"`
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	return accountView{Nonce: view.Nonce, Balance: view.Balance}
}

func TestLocalLedgerSession(t *testing.T) {
	cfg := localConfig(t)

	out, err := run(t, cfg, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "address: 0x")

	out, err = run(t, cfg, "shield", "native", "1000")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "0x"))
	assert.Equal(t, "1000", balanceOf(t, cfg).Balance)

	_, err = run(t, cfg, "withdraw", "native", "400", "0x00000000000000000000000000000000000000b0")
	require.NoError(t, err)
	view := balanceOf(t, cfg)
	assert.Equal(t, uint64(2), view.Nonce)
	assert.Equal(t, "600", view.Balance)

	_, err = run(t, cfg, "withdraw-manual", "native", "100", "0x00000000000000000000000000000000000000b0")
	require.NoError(t, err)
	assert.Equal(t, "500", balanceOf(t, cfg).Balance)

	out, err = run(t, cfg, "history")
	require.NoError(t, err)
	var txs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &txs))
	require.Len(t, txs, 3)
	assert.Equal(t, "NewAccount", txs[0]["type"])
	assert.Equal(t, "Withdraw", txs[2]["type"])
	assert.Equal(t, float64(5), txs[1]["relayerFee"])
}

func TestFeesAndHealth(t *testing.T) {
	cfg := localConfig(t)
	out, err := run(t, cfg, "fees")
	require.NoError(t, err)
	var view struct {
		Relay struct {
			TotalFee float64 `json:"TotalFee"`
		} `json:"relay"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, float64(5), view.Relay.TotalFee)

	out, err = run(t, cfg, "health")
	require.NoError(t, err)
	assert.Contains(t, out, `"overall_status": "healthy"`)
}

func TestMetricsFlag(t *testing.T) {
	cfg := localConfig(t)
	out, err := run(t, cfg, "--metrics", "shield", "native", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "calldata_sent_operation_shield")
}

func TestRejectsBadArguments(t *testing.T) {
	cfg := localConfig(t)
	_, err := run(t, cfg, "shield", "native", "-5")
	assert.Error(t, err)
	_, err = run(t, cfg, "withdraw-manual", "native", "5", "nowhere")
	assert.Error(t, err)
}
