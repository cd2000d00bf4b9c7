package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteClient calls an external extraction service over HTTP.
type RemoteClient struct {
	baseURL    string
	httpClient *http.Client
}

// RemoteOption customizes a RemoteClient.
type RemoteOption func(*RemoteClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(rc *RemoteClient) { rc.httpClient = c }
}

// NewRemoteClient builds a client for the service at baseURL.
func NewRemoteClient(baseURL string, opts ...RemoteOption) (*RemoteClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("extract: base url is required")
	}
	rc := &RemoteClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc, nil
}

type remoteRequest struct {
	DocType string `json:"doc_type"`
	Payload []byte `json:"payload"`
}

// Extract posts the document to the remote service. Transport failures
// and non-2xx responses wrap ErrUnavailable so callers can map them to
// a single failure mode.
func (rc *RemoteClient) Extract(ctx context.Context, docType string, payload []byte) (Result, error) {
	body, err := json.Marshal(remoteRequest{DocType: docType, Payload: payload})
	if err != nil {
		return Result{}, fmt.Errorf("extract: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("extract: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if res.Fields == nil {
		res.Fields = map[string]string{}
	}
	return res, nil
}
