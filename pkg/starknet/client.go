// Package starknet is a JSON-RPC client for a Starknet node: view calls,
// transaction receipts and the token/tipping contract helpers built on them.
package starknet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rovshanmuradov/tipstark/pkg/utils"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// Observer is notified after every RPC round trip.
type Observer func(method string, elapsed time.Duration, err error)

type Client struct {
	endpoint   string
	http       *http.Client
	attempts   uint
	retryDelay time.Duration
	limiter    *rate.Limiter
	observer   Observer
	logger     *zap.Logger
	requestID  atomic.Uint64
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRetries sets the number of retries after the first attempt.
func WithRetries(n uint, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = n + 1
		c.retryDelay = delay
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		http:       &http.Client{Timeout: DefaultTimeout},
		attempts:   DefaultMaxRetries + 1,
		retryDelay: DefaultRetryDelay,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call performs one JSON-RPC request. Transport failures are retried with
// backoff; node errors are returned as *RPCError without retrying.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	logger := c.logger.With(zap.String("method", method))
	start := time.Now()

	var result json.RawMessage
	err = utils.Retry(ctx, c.attempts, c.retryDelay, logger, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return utils.Permanent(err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return utils.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return utils.Permanent(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if rpcResp.Error != nil {
			return utils.Permanent(rpcResp.Error)
		}
		result = rpcResp.Result
		return nil
	})

	if c.observer != nil {
		c.observer(method, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChainID returns the hex chain id of the node's network.
func (c *Client) ChainID(ctx context.Context) (string, error) {
	raw, err := c.call(ctx, "starknet_chainId", []interface{}{})
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("%w: chain id: %v", ErrMalformedResponse, err)
	}
	return id, nil
}

// CallContract executes a view entry point against the latest block.
func (c *Client) CallContract(ctx context.Context, call Call) ([]*big.Int, error) {
	calldata := call.Calldata
	if calldata == nil {
		calldata = []string{}
	}
	params := map[string]interface{}{
		"request": map[string]interface{}{
			"contract_address":     call.ContractAddress,
			"entry_point_selector": Felt(SelectorFromName(call.Entrypoint)),
			"calldata":             calldata,
		},
		"block_id": "latest",
	}

	raw, err := c.call(ctx, "starknet_call", params)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", call.Entrypoint, err)
	}

	var felts []string
	if err := json.Unmarshal(raw, &felts); err != nil {
		return nil, fmt.Errorf("%w: %s result: %v", ErrMalformedResponse, call.Entrypoint, err)
	}
	out := make([]*big.Int, 0, len(felts))
	for _, f := range felts {
		v, err := ParseFelt(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// GetTransactionReceipt fetches and normalizes a receipt. A hash the node
// does not know yet yields StatusOther rather than an error.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	raw, err := c.call(ctx, "starknet_getTransactionReceipt", map[string]interface{}{
		"transaction_hash": hash,
	})
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == codeTxHashNotFound {
			return &Receipt{TransactionHash: hash, Status: StatusOther}, nil
		}
		return nil, err
	}
	return parseReceipt(hash, raw)
}

func parseReceipt(hash string, raw json.RawMessage) (*Receipt, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: receipt for %s", ErrMalformedResponse, hash)
	}
	doc := gjson.ParseBytes(raw)

	r := &Receipt{
		TransactionHash: hash,
		FinalityStatus:  doc.Get("finality_status").String(),
		ExecutionStatus: doc.Get("execution_status").String(),
		RevertReason:    doc.Get("revert_reason").String(),
	}
	if h := doc.Get("transaction_hash").String(); h != "" {
		r.TransactionHash = h
	}

	// Older nodes report a single "status" field.
	legacy := doc.Get("status").String()
	finality := r.FinalityStatus
	if finality == "" {
		finality = legacy
	}

	switch {
	case r.ExecutionStatus == "REVERTED", legacy == "REJECTED", finality == "REJECTED":
		r.Status = StatusRejected
	case finality == string(StatusAcceptedOnL1):
		r.Status = StatusAcceptedOnL1
	case finality == string(StatusAcceptedOnL2):
		r.Status = StatusAcceptedOnL2
	default:
		r.Status = StatusOther
	}
	return r, nil
}

// WaitForTransaction polls the receipt until the transaction is accepted,
// rejected, or ctx is done. Fetch errors are logged and polling continues.
func (c *Client) WaitForTransaction(ctx context.Context, hash string, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	logger := c.logger.With(zap.String("txHash", hash))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.GetTransactionReceipt(ctx, hash)
		switch {
		case err != nil:
			logger.Warn("Receipt fetch failed while waiting", zap.Error(err))
		case receipt.Status.Accepted():
			logger.Debug("Transaction accepted", zap.String("status", string(receipt.Status)))
			return nil
		case receipt.Status == StatusRejected:
			return fmt.Errorf("%w: %s %s", ErrTransactionRejected, hash, receipt.RevertReason)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
