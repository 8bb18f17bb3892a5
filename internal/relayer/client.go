// client.go - HTTP client of the withdrawal relay.

package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"shielder/internal/shielder"
)

const (
	RelayPath      = "/relay"
	QuoteFeesPath  = "/quote_fees"
	FeeAddressPath = "/fee_address"

	versionMismatchPrefix = "Version mismatch:"
	maxBodySize           = 1 << 20
)

// Config locates and throttles the relay.
type Config struct {
	URL               string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client implements shielder.Relayer over HTTP. Requests are throttled by a token
// bucket shared by all methods.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger

	statsMu     sync.Mutex
	totalCalls  int64
	failedCalls int64
}

var _ shielder.Relayer = (*Client)(nil)

// New returns a client for cfg.URL.
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		log:        logger.With().Str("component", "relayer").Logger(),
	}
}

type withdrawRequest struct {
	ExpectedContractVersion string         `json:"expected_contract_version"`
	TokenAddress            common.Address `json:"token_address"`
	Amount                  string         `json:"amount"`
	WithdrawAddress         common.Address `json:"withdraw_address"`
	RelayerAddress          common.Address `json:"relayer_address"`
	RelayerFee              string         `json:"relayer_fee"`
	MerkleRoot              string         `json:"merkle_root"`
	NullifierHash           string         `json:"nullifier_hash"`
	NewNote                 string         `json:"new_note"`
	ProtocolFee             string         `json:"protocol_fee"`
	Memo                    hexutil.Bytes  `json:"memo"`
	Proof                   hexutil.Bytes  `json:"proof"`
}

type withdrawResponse struct {
	TxHash    common.Hash `json:"tx_hash"`
	BlockHash common.Hash `json:"block_hash"`
}

type quoteFeesResponse struct {
	BaseFee  *math.HexOrDecimal256 `json:"base_fee"`
	RelayFee *math.HexOrDecimal256 `json:"relay_fee"`
	TotalFee *math.HexOrDecimal256 `json:"total_fee"`
}

// StatusError is a non-2xx relay response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay responded %d: %s", e.Status, e.Body)
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (c *Client) Withdraw(ctx context.Context, call shielder.WithdrawCall) (shielder.RelayResponse, error) {
	req := withdrawRequest{
		ExpectedContractVersion: call.Version.Hex(),
		TokenAddress:            call.Token.Address(),
		Amount:                  decimal(call.Amount),
		WithdrawAddress:         call.Recipient,
		RelayerAddress:          call.RelayerAddress,
		RelayerFee:              decimal(call.RelayerFee),
		MerkleRoot:              call.MerkleRoot.String(),
		NullifierHash:           call.OldNullifierHash.String(),
		NewNote:                 call.NewNote.String(),
		ProtocolFee:             decimal(call.ProtocolFee),
		Memo:                    call.Memo,
		Proof:                   call.Proof,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return shielder.RelayResponse{}, err
	}
	var resp withdrawResponse
	if err := c.do(ctx, http.MethodPost, RelayPath, body, &resp); err != nil {
		return shielder.RelayResponse{}, err
	}
	c.log.Info().Str("tx", resp.TxHash.Hex()).Msg("withdrawal relayed")
	return shielder.RelayResponse{TxHash: resp.TxHash, BlockHash: resp.BlockHash}, nil
}

func (c *Client) QuoteFees(ctx context.Context) (shielder.QuotedFees, error) {
	var resp quoteFeesResponse
	if err := c.do(ctx, http.MethodGet, QuoteFeesPath, nil, &resp); err != nil {
		return shielder.QuotedFees{}, err
	}
	if resp.BaseFee == nil || resp.RelayFee == nil || resp.TotalFee == nil {
		return shielder.QuotedFees{}, fmt.Errorf("incomplete fee quote")
	}
	return shielder.QuotedFees{
		BaseFee:  (*big.Int)(resp.BaseFee),
		RelayFee: (*big.Int)(resp.RelayFee),
		TotalFee: (*big.Int)(resp.TotalFee),
	}, nil
}

// Address returns the account that receives relay fees.
func (c *Client) Address(ctx context.Context) (common.Address, error) {
	var raw []byte
	if err := c.do(ctx, http.MethodGet, FeeAddressPath, nil, &raw); err != nil {
		return common.Address{}, err
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid fee address %q", s)
	}
	return common.HexToAddress(s), nil
}

// Stats returns the number of requests made and how many failed.
func (c *Client) Stats() (total, failed int64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.totalCalls, c.failedCalls
}

func (c *Client) record(failed bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.totalCalls++
	if failed {
		c.failedCalls++
	}
}

// do performs one request. out is either a JSON target or *[]byte for the raw body.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (err error) {
	defer func() { c.record(err != nil) }()
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(data)
		if strings.HasPrefix(strings.TrimPrefix(text, `"`), versionMismatchPrefix) {
			return &shielder.VersionRejectedByRelayerError{Message: text}
		}
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("relay request failed")
		return &StatusError{Status: resp.StatusCode, Body: text}
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid relay response: %w", err)
	}
	return nil
}
