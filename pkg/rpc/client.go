package rpc

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/config"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	jsonRPCVersion = "2.0"
	requestID      = 1
)

// Request is the JSON-RPC 2.0 envelope. Field order matches what nodes and the reference tooling send.
type Request struct {
	ID      int           `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Response is the JSON-RPC 2.0 response. Error is nil on success.
type Response struct {
	ID      interface{}        `json:"id,omitempty"`
	JSONRPC string             `json:"jsonrpc,omitempty"`
	Result  stdjson.RawMessage `json:"result"`
	Error   *txerrors.RpcError `json:"error,omitempty"`
}

// EndpointFunc resolves the node URL for a single call.
type EndpointFunc func() (string, error)

// ClientConfig configures a Client. An empty Endpoint falls back to POLKADOT_RPC_API on every call.
type ClientConfig struct {
	// Endpoint is the node URL. When empty, POLKADOT_RPC_API is read on every call.
	Endpoint string
	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64
}

// Client sends single-shot JSON-RPC requests to a Substrate node over HTTP.
// There are no retries: a failed call is reported to the caller as is.
type Client struct {
	endpoint   EndpointFunc
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient validates cfg and returns a Client using http.DefaultClient.
func NewClient(cfg *ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	nodeCfg := &config.NodeConfig{Endpoint: cfg.Endpoint, RequestsPerSecond: cfg.RequestsPerSecond}
	if err := nodeCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	c := &Client{
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		c.endpoint = func() (string, error) { return endpoint, nil }
	} else {
		c.endpoint = config.RPCEndpointFromEnv
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// SetHttpClient replaces the HTTP client used for requests.
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

// SetEndpointFunc replaces how the endpoint is resolved for each call.
func (c *Client) SetEndpointFunc(fn EndpointFunc) {
	c.endpoint = fn
}

// Call posts {"id":1,"jsonrpc":"2.0","method":method,"params":params} and returns the raw result.
// A JSON-RPC error object becomes a *txerrors.RpcError.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (stdjson.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return nil, txerrors.NewIOError("resolve endpoint", err)
	}

	body, err := json.Marshal(&Request{
		ID:      requestID,
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request for %s: %w", method, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, txerrors.NewIOError("rate limit wait", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, txerrors.NewIOError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Sugar().Debugw("Sending JSON-RPC request", "method", method, "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, txerrors.NewIOError(fmt.Sprintf("POST %s", method), err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, txerrors.NewIOError("read response body", err)
	}

	var rpcResp Response
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, txerrors.NewIOError(fmt.Sprintf("POST %s", method),
				fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody, 256)))
		}
		return nil, txerrors.NewDecodeError("json-rpc response", err)
	}

	if rpcResp.Error != nil {
		c.logger.Sugar().Debugw("Node returned JSON-RPC error",
			"method", method,
			"code", rpcResp.Error.Code,
			"message", rpcResp.Error.Message,
		)
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// CallInto performs Call and unmarshals the result into out.
func (c *Client) CallInto(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return txerrors.NewDecodeError(fmt.Sprintf("result of %s", method), err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
