package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/metrics"
)

// probeLimit bounds how much of the file a dimension probe downloads. The
// headers of every supported format sit well inside the first 64 KiB.
const probeLimit = 64 * 1024

// maxDownloadSize caps full downloads before transcoding.
const maxDownloadSize = 20 << 20

// Fetcher probes and downloads remote images over HTTP.
type Fetcher struct {
	httpClient *http.Client
}

var _ domain.ImageFetcher = (*Fetcher)(nil)

// NewFetcher creates the fetcher.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{httpClient: &http.Client{Timeout: timeout}}
}

// SetHTTPClient overrides the underlying HTTP client.
func (f *Fetcher) SetHTTPClient(httpClient *http.Client) {
	if httpClient != nil {
		f.httpClient = httpClient
	}
}

// Probe reads a bounded prefix of the remote file and decodes only the
// image header, never the pixels.
func (f *Fetcher) Probe(ctx context.Context, url string) (domain.ImageInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.ImageInfo{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", probeLimit-1))

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	metrics.ObserveNetworkRequest("http", "image_probe", "images", start, err)
	if err != nil {
		return domain.ImageInfo{}, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return domain.ImageInfo{}, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	prefix, err := io.ReadAll(io.LimitReader(resp.Body, probeLimit))
	if err != nil && len(prefix) == 0 {
		return domain.ImageInfo{}, fmt.Errorf("read image prefix: %w", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(prefix))
	if err != nil {
		return domain.ImageInfo{}, fmt.Errorf("decode image header: %w", err)
	}
	return domain.ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Download fetches the whole image, returning bytes and the content type.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	metrics.ObserveNetworkRequest("http", "image_download", "images", start, err)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxDownloadSize {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxDownloadSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return data, contentType, nil
}
