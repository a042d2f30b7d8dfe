package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/metrics"
)

const (
	defaultAPIBaseURL    = "https://api.twitter.com"
	defaultUploadBaseURL = "https://upload.twitter.com"
)

// Config configures the X API client.
type Config struct {
	BaseURL       string
	UploadBaseURL string
	Credentials   Credentials
	Timeout       time.Duration
}

// Client posts content to X using OAuth 1.0a user context.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.Platform = (*Client)(nil)

// NewClient creates the X API client.
func NewClient(cfg Config) *Client {
	client := &Client{cfg: cfg}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.httpClient = &http.Client{Timeout: timeout}
	if cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultAPIBaseURL
	}
	if cfg.UploadBaseURL == "" {
		client.cfg.UploadBaseURL = defaultUploadBaseURL
	}
	return client
}

// SetHTTPClient overrides the underlying HTTP client.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		c.httpClient = httpClient
	}
}

// UploadMedia sends image bytes to the v1.1 media endpoint and returns the
// media ID to attach to a post.
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	if !c.cfg.Credentials.complete() {
		return "", fmt.Errorf("xapi: credentials are not configured")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("xapi: empty media payload")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", `form-data; name="media"; filename="media"`)
	if mimeType != "" {
		partHeader.Set("Content-Type", mimeType)
	}
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return "", fmt.Errorf("xapi: build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("xapi: write multipart: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("xapi: close multipart: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.UploadBaseURL, "/") + "/1.1/media/upload.json"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("xapi: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if err := c.sign(httpReq, nil); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.ObserveNetworkRequest("x", "media_upload", "media", start, err)
	if err != nil {
		return "", fmt.Errorf("xapi: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("xapi: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", decodeAPIError(resp.StatusCode, respBody)
	}

	var parsed struct {
		MediaIDString string `json:"media_id_string"`
		MediaID       int64  `json:"media_id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("xapi: decode response: %w", err)
	}
	if parsed.MediaIDString != "" {
		return parsed.MediaIDString, nil
	}
	if parsed.MediaID != 0 {
		return strconv.FormatInt(parsed.MediaID, 10), nil
	}
	return "", fmt.Errorf("xapi: media id missing in response")
}

// PostContent creates a post through the v2 endpoint, attaching uploaded
// media when present.
func (c *Client) PostContent(ctx context.Context, text string, mediaIDs []string) (domain.PostRef, error) {
	if !c.cfg.Credentials.complete() {
		return domain.PostRef{}, fmt.Errorf("xapi: credentials are not configured")
	}
	if strings.TrimSpace(text) == "" {
		return domain.PostRef{}, fmt.Errorf("xapi: empty post text")
	}

	payload := map[string]any{"text": text}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.PostRef{}, fmt.Errorf("xapi: marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/2/tweets"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.PostRef{}, fmt.Errorf("xapi: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.sign(httpReq, nil); err != nil {
		return domain.PostRef{}, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	metrics.ObserveNetworkRequest("x", "create_post", "tweets", start, err)
	if err != nil {
		return domain.PostRef{}, fmt.Errorf("xapi: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PostRef{}, fmt.Errorf("xapi: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return domain.PostRef{}, decodeAPIError(resp.StatusCode, respBody)
	}

	var parsed struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.PostRef{}, fmt.Errorf("xapi: decode response: %w", err)
	}
	if parsed.Data.ID == "" {
		return domain.PostRef{}, fmt.Errorf("xapi: post id missing in response")
	}
	return domain.PostRef{ID: parsed.Data.ID, URL: postURL(parsed.Data.ID)}, nil
}

func (c *Client) sign(req *http.Request, form map[string][]string) error {
	nonce, err := newNonce()
	if err != nil {
		return fmt.Errorf("xapi: generate nonce: %w", err)
	}
	auth, err := c.cfg.Credentials.authorizationHeader(req.Method, req.URL.String(), form, nonce, time.Now())
	if err != nil {
		return fmt.Errorf("xapi: sign request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	return nil
}

// postURL builds the canonical status URL, which resolves without a handle.
func postURL(id string) string {
	return "https://x.com/i/web/status/" + id
}

// decodeAPIError understands both the v1.1 errors array and the v2 problem
// document.
func decodeAPIError(status int, data []byte) error {
	var v1 struct {
		Errors []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(data, &v1); err == nil && len(v1.Errors) > 0 && v1.Errors[0].Message != "" {
		return fmt.Errorf("xapi: status %d: %s", status, v1.Errors[0].Message)
	}
	var v2 struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &v2); err == nil && v2.Title != "" {
		if v2.Detail != "" {
			return fmt.Errorf("xapi: status %d: %s: %s", status, v2.Title, v2.Detail)
		}
		return fmt.Errorf("xapi: status %d: %s", status, v2.Title)
	}
	return fmt.Errorf("xapi: status %d: %s", status, strings.TrimSpace(string(data)))
}
