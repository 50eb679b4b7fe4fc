package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// GetResult is the outcome of a replica read.
type GetResult struct {
	Found     bool
	Value     []byte
	Timestamp int64
}

// NodeClient issues the five inter-node RPC verbs against a peer
// identified by its node ID (host:port of the peer's listener).
type NodeClient interface {
	Put(ctx context.Context, nodeID, key string, value []byte) (int64, error)
	Get(ctx context.Context, nodeID, key string) (*GetResult, error)
	Delete(ctx context.Context, nodeID, key string) error
	AllMeta(ctx context.Context, nodeID string) (map[string]int64, error)
	Ping(ctx context.Context, nodeID string) error
}

// HTTPNodeClient implements NodeClient over HTTP with JSON bodies. Every
// call is bounded by the configured RPC timeout.
type HTTPNodeClient struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewHTTPNodeClient creates a node client with a per-RPC timeout.
func NewHTTPNodeClient(timeout time.Duration) *HTTPNodeClient {
	return &HTTPNodeClient{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: timeout,
	}
}

func (c *HTTPNodeClient) kvURL(nodeID, key string) string {
	return fmt.Sprintf("http://%s/internal/kv/%s", nodeID, url.PathEscape(key))
}

// Put replicates a write to a peer and returns the timestamp the peer
// assigned.
func (c *HTTPNodeClient) Put(ctx context.Context, nodeID, key string, value []byte) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(PutRequest{Value: value})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal put request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.kvURL(nodeID, key), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp PutResponse
	if err := c.do(req, &resp); err != nil {
		return 0, err
	}
	if !resp.OK {
		return 0, fmt.Errorf("remote put rejected by %s: %s", nodeID, resp.Error)
	}
	return resp.Timestamp, nil
}

// Get reads a key from a peer.
func (c *HTTPNodeClient) Get(ctx context.Context, nodeID, key string) (*GetResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.kvURL(nodeID, key), nil)
	if err != nil {
		return nil, err
	}

	var resp GetResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("remote get rejected by %s: %s", nodeID, resp.Error)
	}
	return &GetResult{Found: resp.Found, Value: resp.Value, Timestamp: resp.Timestamp}, nil
}

// Delete removes a key on a peer.
func (c *HTTPNodeClient) Delete(ctx context.Context, nodeID, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.kvURL(nodeID, key), nil)
	if err != nil {
		return err
	}

	var resp DeleteResponse
	if err := c.do(req, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("remote delete rejected by %s: %s", nodeID, resp.Error)
	}
	return nil
}

// AllMeta fetches a peer's full key -> timestamp map.
func (c *HTTPNodeClient) AllMeta(ctx context.Context, nodeID string) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/internal/meta", nodeID), nil)
	if err != nil {
		return nil, err
	}

	var resp MetaResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("remote meta rejected by %s: %s", nodeID, resp.Error)
	}
	if resp.Meta == nil {
		return map[string]int64{}, nil
	}
	return resp.Meta, nil
}

// Ping probes a peer's liveness.
func (c *HTTPNodeClient) Ping(ctx context.Context, nodeID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/internal/ping", nodeID), nil)
	if err != nil {
		return err
	}

	var resp PingResponse
	if err := c.do(req, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("ping rejected by %s", nodeID)
	}
	return nil
}

// do executes a request and decodes the JSON body into out. Error
// payloads are decoded too so callers see the remote reason.
func (c *HTTPNodeClient) do(req *http.Request, out interface{}) error {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, httpResp.Body)
		httpResp.Body.Close()
	}()

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Host, err)
	}
	return nil
}
