// Package rpc is the HTTP transport used by the ingestion sources. It turns
// every failure into one of the ingestion error kinds: transport problems
// are connection errors, non-2xx replies and JSON-RPC error objects are
// request errors, and undecodable bodies are parsing errors.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/ratelimiter"
)

const maxErrorBody = 512

type Config struct {
	Timeout time.Duration
	RPS     int
	Burst   int
	Headers map[string]string
}

type Client struct {
	httpClient *http.Client
	limiter    *ratelimiter.Pool
	headers    map[string]string
	rpcID      atomic.Int64
	logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constant.DefaultClientTimeout
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers:    cfg.Headers,
		logger:     logger.With("component", "rpc"),
	}
	if cfg.RPS > 0 {
		c.limiter = ratelimiter.NewPool(cfg.RPS, cfg.Burst)
	}
	return c
}

// Post sends body as JSON and decodes the JSON object reply.
func (c *Client) Post(ctx context.Context, url string, body any) (record.Record, error) {
	raw, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	return decodeRecord(url, raw)
}

// Get fetches url and decodes the JSON object reply.
func (c *Client) Get(ctx context.Context, url string) (record.Record, error) {
	raw, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(url, raw)
}

// CallRPC performs a JSON-RPC 2.0 call and returns the decoded result,
// which is nil when the node answered with a null result.
func (c *Client) CallRPC(ctx context.Context, url, method string, params ...any) (any, error) {
	if params == nil {
		params = []any{}
	}
	req := &RPCRequest{ID: c.rpcID.Add(1), JSONRPC: "2.0", Method: method, Params: params}
	raw, err := c.do(ctx, http.MethodPost, url, req)
	if err != nil {
		return nil, err
	}

	var resp RPCResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, types.Errorf(types.KindParsing, "%s from %s: decode response: %w", method, url, err)
	}
	if resp.Error != nil {
		return nil, types.Errorf(types.KindRequest, "%s from %s: %w", method, url, resp.Error)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(resp.Result))
	dec.UseNumber()
	var result any
	if err := dec.Decode(&result); err != nil {
		return nil, types.Errorf(types.KindParsing, "%s from %s: decode result: %w", method, url, err)
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, url string, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return nil, types.Errorf(types.KindConnection, "rate limit: %w", err)
		}
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, types.Errorf(types.KindInvalid, "encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, types.Errorf(types.KindInvalid, "build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, types.Errorf(types.KindConnection, "%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.Errorf(types.KindConnection, "read %s: %w", url, err)
	}
	c.logger.Debug("HTTP request completed", "method", method, "url", url, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.Errorf(types.KindRequest, "HTTP %d from %s: %s", resp.StatusCode, url, remoteError(data))
	}
	return data, nil
}

func decodeRecord(url string, raw []byte) (record.Record, error) {
	rec, err := record.Decode(raw)
	if err != nil {
		return nil, types.Errorf(types.KindParsing, "decode response from %s: %w", url, err)
	}
	return rec, nil
}

// remoteError extracts the "error" field of a JSON error body, falling back
// to the (truncated) raw body.
func remoteError(body []byte) string {
	if rec, err := record.Decode(body); err == nil {
		switch e := rec["error"].(type) {
		case string:
			return e
		case map[string]any:
			if msg, ok := e["message"].(string); ok {
				return msg
			}
			return record.Text(e)
		case nil:
		default:
			return record.Text(e)
		}
	}
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
