package relayer

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shielder/internal/shielder"
)

var feeAddress = common.HexToAddress("0x00000000000000000000000000000000000000f1")

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL + "/"}, zerolog.Nop())
}

func TestWithdrawPostsSnakeCaseBody(t *testing.T) {
	var got map[string]any
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, RelayPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"tx_hash":"0x00000000000000000000000000000000000000000000000000000000000000aa"}`))
	})

	resp, err := c.Withdraw(context.Background(), shielder.WithdrawCall{
		Version:          shielder.CurrentVersion,
		Token:            shielder.NativeToken(),
		Amount:           big.NewInt(1000),
		Recipient:        common.HexToAddress("0xb0"),
		RelayerAddress:   feeAddress,
		RelayerFee:       big.NewInt(7),
		OldNullifierHash: shielder.ScalarFromUint64(5),
		NewNote:          shielder.ScalarFromUint64(6),
		MerkleRoot:       shielder.ScalarFromUint64(8),
		Proof:            []byte{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xaa"), resp.TxHash)

	assert.Equal(t, "0x000001", got["expected_contract_version"])
	assert.Equal(t, "1000", got["amount"])
	assert.Equal(t, "7", got["relayer_fee"])
	assert.Equal(t, "5", got["nullifier_hash"])
	assert.Equal(t, "0x0102", got["proof"])
	assert.Equal(t, "0", got["protocol_fee"])
}

func TestWithdrawVersionMismatch(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`"Version mismatch: relayer 0x000002"`))
	})
	_, err := c.Withdraw(context.Background(), shielder.WithdrawCall{})
	var verr *shielder.VersionRejectedByRelayerError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, shielder.ErrProtocolVersion)
}

func TestWithdrawOtherFailure(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nonce too low", http.StatusInternalServerError)
	})
	_, err := c.Withdraw(context.Background(), shielder.WithdrawCall{})
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusInternalServerError, serr.Status)
	assert.NotErrorIs(t, err, shielder.ErrProtocolVersion)

	total, failed := c.Stats()
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(1), failed)
}

func TestQuoteFeesAndAddress(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case QuoteFeesPath:
			w.Write([]byte(`{"base_fee":"100","relay_fee":"20","total_fee":"120"}`))
		case FeeAddressPath:
			w.Write([]byte(`"` + feeAddress.Hex() + `"`))
		default:
			http.NotFound(w, r)
		}
	})
	fees, err := c.QuoteFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "100", fees.BaseFee.String())
	assert.Equal(t, "20", fees.RelayFee.String())
	assert.Equal(t, "120", fees.TotalFee.String())

	addr, err := c.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, feeAddress, addr)
}

func TestQuoteFeesIncomplete(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"base_fee":"100"}`))
	})
	_, err := c.QuoteFees(context.Background())
	assert.Error(t, err)
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"` + feeAddress.Hex() + `"`))
	}))
	defer srv.Close()
	c := New(Config{URL: srv.URL, RequestsPerSecond: 0.001, Burst: 1}, zerolog.Nop())

	_, err := c.Address(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Address(ctx)
	assert.Error(t, err)
}
