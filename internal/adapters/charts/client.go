package charts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/metrics"
)

// maxImageSize caps the rendered chart we are willing to accept.
const maxImageSize = 20 << 20

// Config configures the chart renderer client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the chart rendering service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ domain.ChartRenderer = (*Client)(nil)

// NewClient creates the chart client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// SetHTTPClient overrides the underlying HTTP client.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

type renderRequest struct {
	Symbols []string `json:"symbols"`
}

// Render draws a comparison chart for the symbols and returns the PNG bytes.
func (c *Client) Render(ctx context.Context, symbols []string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("charts: base url is not configured")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("charts: no symbols to render")
	}

	body, err := json.Marshal(renderRequest{Symbols: symbols})
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("charts", "render", "charts", start, err)
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("render chart: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read rendered chart: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("render chart: empty response body")
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("render chart: image exceeds %d bytes", maxImageSize)
	}
	return data, nil
}
