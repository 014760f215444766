// Package relay implements one JSON-RPC client per configured builder
// relay: eth_sendBundle submission with a tolerant response parser,
// and an eth_blockNumber health check.
package relay

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
	"github.com/swapnilraj/atomic-bundler/internal/config"
)

// Client is a single relay's HTTP JSON-RPC client. It is immutable
// after construction; its internal http.Client connection pool is
// safe for concurrent use.
type Client struct {
	Name           string
	relayURL       string
	paymentAddress string
	httpClient     *http.Client
}

func New(builder config.BuilderConfig) *Client {
	return &Client{
		Name:           builder.Name,
		relayURL:       builder.RelayURL,
		paymentAddress: builder.PaymentAddress,
		httpClient: &http.Client{
			Timeout: time.Duration(builder.TimeoutSeconds) * time.Second,
		},
	}
}

func (c *Client) PaymentAddress() string { return c.paymentAddress }

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// sendBundleParams is the eth_sendBundle JSON-RPC params object.
// Optional fields are omitted via `omitempty` when unset.
type sendBundleParams struct {
	Txs               []string `json:"txs"`
	BlockNumber       string   `json:"blockNumber,omitempty"`
	MinTimestamp      *uint64  `json:"minTimestamp,omitempty"`
	MaxTimestamp      *uint64  `json:"maxTimestamp,omitempty"`
	RevertingTxHashes []string `json:"revertingTxHashes,omitempty"`
}

// SubmitBundle posts an eth_sendBundle request carrying txs. When
// targetBlock is nil the blockNumber key is omitted entirely, not sent
// as "0x0".
func (c *Client) SubmitBundle(ctx context.Context, txs []string, targetBlock *uint64) (string, error) {
	params := sendBundleParams{Txs: txs}
	if targetBlock != nil {
		params.BlockNumber = fmt.Sprintf("0x%x", *targetBlock)
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      nonSequentialID(),
		Method:  "eth_sendBundle",
		Params:  []interface{}{params},
	}

	body, err := c.post(ctx, req)
	if err != nil {
		return "", err
	}
	return parseSubmitResponse(c.Name, body)
}

// HealthCheck sends eth_blockNumber with a fixed 10s timeout and
// reports the elapsed wall time.
func (c *Client) HealthCheck(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      nonSequentialID(),
		Method:  "eth_blockNumber",
		Params:  []interface{}{},
	}

	start := time.Now()
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return 0, err
	}

	// The relay's own client timeout is timeout_seconds; the health check
	// uses a copy bounded by the fixed 10s instead.
	healthClient := *c.httpClient
	healthClient.Timeout = 10 * time.Second
	resp, err := healthClient.Do(httpReq)
	if err != nil {
		return 0, classifyTransportError(c.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, bundlerrors.New(bundlerrors.KindRelayHTTPError, fmt.Sprintf("relay %s: http status %d", c.Name, resp.StatusCode)).
			WithField("relay", c.Name).
			WithField("status", fmt.Sprint(resp.StatusCode))
	}
	return time.Since(start), nil
}

func (c *Client) post(ctx context.Context, req rpcRequest) ([]byte, error) {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(c.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindRelayInvalidResponse, fmt.Sprintf("relay %s: read response body", c.Name), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, bundlerrors.New(bundlerrors.KindRelayHTTPError,
			fmt.Sprintf("relay %s: http status %d, body: %s", c.Name, resp.StatusCode, string(body))).
			WithField("relay", c.Name).
			WithField("status", fmt.Sprint(resp.StatusCode))
	}
	return body, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req rpcRequest) (*http.Request, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInternal, "encode JSON-RPC request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewReader(payload))
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInternal, "build relay HTTP request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "atomic-bundler/1.0")
	return httpReq, nil
}

func classifyTransportError(relay string, err error) error {
	if isTimeout(err) {
		return bundlerrors.Wrap(bundlerrors.KindRelayConnectionTimeout, fmt.Sprintf("relay %s: connection timeout", relay), err).
			WithField("relay", relay)
	}
	return bundlerrors.Wrap(bundlerrors.KindRelayHTTPError, fmt.Sprintf("relay %s: request failed", relay), err).
		WithField("relay", relay)
}

func isTimeout(err error) bool {
	type timeoutErr interface {
		Timeout() bool
	}
	if te, ok := err.(timeoutErr); ok {
		return te.Timeout()
	}
	if err == context.DeadlineExceeded {
		return true
	}
	return false
}

// nonSequentialID generates a request id that is not simply
// incrementing, by folding a UUIDv4 down to 64 bits.
func nonSequentialID() uint64 {
	id := uuid.New()
	b := id[:8]
	return binary.BigEndian.Uint64(b)
}
