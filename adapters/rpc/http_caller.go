// Package rpc provides the HTTP client adapter for the backend's
// named-method RPC contract.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/layer-3/walletbridge/core"
)

const methodEnsureAccount = "account/ensure"

// RPCError is a failed call: either a non-2xx HTTP status or an error
// envelope returned by the backend.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPCaller executes RPC calls over HTTP. Session continuity is carried by
// a cookie jar; ClearCredentials swaps in a fresh one.
type HTTPCaller struct {
	baseURL string
	nextID  atomic.Uint64

	mu     sync.Mutex
	client *http.Client
}

// NewHTTPCaller creates a caller against the given RPC endpoint.
func NewHTTPCaller(baseURL string) *HTTPCaller {
	return &HTTPCaller{
		baseURL: baseURL,
		client:  newClient(),
	}
}

func newClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar, Timeout: 30 * time.Second}
}

// Call invokes method with positional params and unmarshals the result.
func (c *HTTPCaller) Call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s call failed: %w", method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RPCError{Code: resp.StatusCode, Message: string(payload)}
	}

	var envelope response
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("malformed %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return &RPCError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// ClearCredentials discards all session cookies.
func (c *HTTPCaller) ClearCredentials() {
	c.mu.Lock()
	c.client = newClient()
	c.mu.Unlock()
}

// EnsurePrimaryAccount implements ports.Provisioner over the same transport.
func (c *HTTPCaller) EnsurePrimaryAccount(ctx context.Context) (*core.TradingAccount, error) {
	var account core.TradingAccount
	if err := c.Call(ctx, methodEnsureAccount, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}
