package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/metrics"
)

// Config configures the quotes client.
type Config struct {
	BaseURL string
	APIKey  string
	TTL     time.Duration
	Timeout time.Duration
}

// Client fetches stock quotes with a TTL cache in front of the provider.
// Quotes only decorate analytics posts, so a symbol that cannot be
// resolved is skipped, never failed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      domain.Cache
	ttl        time.Duration
}

var _ domain.QuoteProvider = (*Client)(nil)

// NewClient creates the quotes client.
func NewClient(cfg Config, cache domain.Cache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		cache:      cache,
		ttl:        ttl,
	}
}

// SetHTTPClient overrides the underlying HTTP client.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// Quotes returns quotes for the symbols it could resolve, preserving the
// input order. Cached symbols never touch the network; the misses are
// fetched in one batch call.
func (c *Client) Quotes(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if c.baseURL == "" || len(symbols) == 0 {
		return nil, nil
	}

	ordered := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		ordered = append(ordered, symbol)
	}

	resolved := make(map[string]domain.Quote, len(ordered))
	var misses []string
	for _, symbol := range ordered {
		if q, ok := c.cached(symbol); ok {
			resolved[symbol] = q
		} else {
			misses = append(misses, symbol)
		}
	}

	if len(misses) > 0 {
		fetched, err := c.fetch(ctx, misses)
		if err == nil {
			for symbol, q := range fetched {
				resolved[symbol] = q
				c.store(symbol, q)
			}
		}
	}

	out := make([]domain.Quote, 0, len(resolved))
	for _, symbol := range ordered {
		if q, ok := resolved[symbol]; ok {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (c *Client) cached(symbol string) (domain.Quote, bool) {
	if c.cache == nil {
		return domain.Quote{}, false
	}
	b, err := c.cache.Get("quote:" + symbol)
	if err != nil {
		return domain.Quote{}, false
	}
	var q domain.Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return domain.Quote{}, false
	}
	return q, true
}

func (c *Client) store(symbol string, q domain.Quote) {
	if c.cache == nil {
		return
	}
	b, err := json.Marshal(q)
	if err != nil {
		return
	}
	_ = c.cache.Set("quote:"+symbol, b, c.ttl)
}

type quotesResponse struct {
	Quotes []struct {
		Symbol    string  `json:"symbol"`
		Price     float64 `json:"price"`
		ChangePct float64 `json:"changePct"`
	} `json:"quotes"`
}

func (c *Client) fetch(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/quotes?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("quotes", "get_quotes", "quotes", start, err)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch quotes: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read quotes: %w", err)
	}
	var qr quotesResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("unmarshal quotes: %w", err)
	}

	now := time.Now().UTC()
	out := make(map[string]domain.Quote, len(qr.Quotes))
	for _, item := range qr.Quotes {
		symbol := strings.ToUpper(strings.TrimSpace(item.Symbol))
		if symbol == "" {
			continue
		}
		out[symbol] = domain.Quote{
			Symbol:    symbol,
			Price:     item.Price,
			ChangePct: item.ChangePct,
			AsOf:      now,
		}
	}
	return out, nil
}
