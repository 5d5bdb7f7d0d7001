package sandbox

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

const maxResponseSize = 1 << 20

// HTTPDeployer posts deploy requests to a sandbox runtime as JSON.
type HTTPDeployer struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

var _ Deployer = (*HTTPDeployer)(nil)

// NewHTTPDeployer returns nil when endpoint is empty.
func NewHTTPDeployer(endpoint string, httpClient *http.Client, timeout time.Duration) *HTTPDeployer {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPDeployer{endpoint: endpoint, httpClient: httpClient, timeout: timeout}
}

func (d *HTTPDeployer) Deploy(ctx context.Context, req DeployRequest) (*Deployment, error) {
	if d == nil {
		return nil, ErrNotConfigured
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode deploy request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build deploy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post deploy request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read deploy response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sandbox runtime returned %d", resp.StatusCode)
	}

	var out Deployment
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode deploy response: %w", err)
		}
	}
	return &out, nil
}
