package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
)

// ErrRPC is returned when the node answers with a JSON-RPC error object or an
// unusable response.
var ErrRPC = errors.New("json-rpc error")

// Client speaks JSON-RPC 2.0 to an EVM node.
type Client struct {
	url    string
	http   *http.Client
	nextID atomic.Uint64
}

// NewClient creates a client for the node at url. A nil httpClient uses
// NewHTTPClient with default options.
func NewClient(url string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(HTTPOptions{MaxRetries: 3})
	}
	return &Client{url: url, http: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call invokes method and decodes the result into out.
func (c *Client) Call(ctx context.Context, method string, params []any, out any) (err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		rpcCalls.WithLabelValues(method, status).Inc()
		rpcDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: HTTP %d: %s", ErrRPC, method, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrRPC, method, err)
	}
	if rr.Error != nil {
		return fmt.Errorf("%w: %s: %s (code %d)", ErrRPC, method, rr.Error.Message, rr.Error.Code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("%w: %s: decode result: %v", ErrRPC, method, err)
	}
	return nil
}

type callMsg struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// EthCall executes a read-only contract call against the latest block.
func (c *Client) EthCall(ctx context.Context, to feed.Address, data []byte) ([]byte, error) {
	var result string
	params := []any{
		callMsg{To: to.String(), Data: "0x" + hex.EncodeToString(data)},
		"latest",
	}
	if err := c.Call(ctx, "eth_call", params, &result); err != nil {
		return nil, err
	}
	out, err := hex.DecodeString(strings.TrimPrefix(result, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: eth_call: result is not hex: %v", ErrRPC, err)
	}
	return out, nil
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var result string
	if err := c.Call(ctx, "eth_chainId", nil, &result); err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(result, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_chainId: %q", ErrRPC, result)
	}
	return id, nil
}
