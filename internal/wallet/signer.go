package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/pkg/starknet"
)

// DefaultSignerID is the connector id of a SignerConnector without an ID.
const DefaultSignerID = "signer"

// SignerConnector obtains accounts from a remote signer service that holds
// the user's keys and signs on their behalf.
type SignerConnector struct {
	id         string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type SignerConfig struct {
	ID      string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewSignerConnector(cfg SignerConfig) *SignerConnector {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	id := cfg.ID
	if id == "" {
		id = DefaultSignerID
	}
	return &SignerConnector{
		id:         id,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *SignerConnector) ID() string { return c.id }

type enableRequest struct {
	Subject string `json:"subject"`
}

type enableResponse struct {
	Address string `json:"address"`
	ChainID string `json:"chain_id"`
}

type executeRequest struct {
	Calls []starknet.Call `json:"calls"`
}

type executeResponse struct {
	TransactionHash string `json:"transaction_hash"`
}

// Enable asks the signer for the subject's account. A 401 or 403 means the
// user declined the request.
func (c *SignerConnector) Enable(ctx context.Context, subject string) (Account, error) {
	var resp enableResponse
	status, err := c.post(ctx, "/v1/accounts/enable", enableRequest{Subject: subject}, &resp)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, domain.ErrRequestRejected
	}
	if err != nil {
		return nil, fmt.Errorf("%w: enable account: %v", domain.ErrConnection, err)
	}
	return &signerAccount{connector: c, address: resp.Address, chainID: resp.ChainID}, nil
}

func (c *SignerConnector) post(ctx context.Context, path string, in, out any) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("request failed: %s - %s", resp.Status, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp.StatusCode, nil
}

type signerAccount struct {
	connector *SignerConnector
	address   string
	chainID   string
}

func (a *signerAccount) Address() string { return a.address }
func (a *signerAccount) ChainID() string { return a.chainID }

func (a *signerAccount) Execute(ctx context.Context, calls []starknet.Call) (string, error) {
	var resp executeResponse
	path := "/v1/accounts/" + url.PathEscape(a.address) + "/execute"
	if _, err := a.connector.post(ctx, path, executeRequest{Calls: calls}, &resp); err != nil {
		return "", fmt.Errorf("execute: %w", err)
	}
	return resp.TransactionHash, nil
}
