package imagegen

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

// maxImageSize caps the rendered card we are willing to accept.
const maxImageSize = 20 << 20

// Config configures the card renderer client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the card rendering service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ domain.ImageGenerator = (*Client)(nil)

// NewClient creates the renderer client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// SetHTTPClient overrides the underlying HTTP client.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

type generateRequest struct {
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
}

// Generate renders a card image for the item and returns the image bytes.
func (c *Client) Generate(ctx context.Context, item domain.ContentItem) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("imagegen: base url is not configured")
	}

	var category string
	if len(item.Categories) > 0 {
		category = item.Categories[0]
	}
	body, err := json.Marshal(generateRequest{Title: item.Title, Category: category})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("imagegen", "generate", "cards", start, err)
	if err != nil {
		return nil, fmt.Errorf("generate card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generate card: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read generated card: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("generate card: empty response body")
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("generate card: image exceeds %d bytes", maxImageSize)
	}
	return data, nil
}
