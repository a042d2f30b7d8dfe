package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ContentRepo manages content items.
type ContentRepo interface {
	GetItem(id uuid.UUID) (ContentItem, error)
	UpsertItems(items []ContentItem) (int, error)
	CreateItem(item ContentItem) (ContentItem, error)
	ListEligible(profile SelectionProfile, limit int) ([]ContentItem, error)
	SetCardImage(id uuid.UUID, url string) error
	AbsorbIntoDigest(digestID uuid.UUID, memberIDs []uuid.UUID) ([]uuid.UUID, error)
}

// PublicationRepo manages publication records and the posting log.
type PublicationRepo interface {
	GetRecord(contentID uuid.UUID) (PublicationRecord, error)
	AcquireForPosting(contentID uuid.UUID, preStates []PublicationStatus) (int, bool, error)
	FinishPublished(outcome PublishedOutcome) error
	FinishFailed(contentID uuid.UUID, next PublicationStatus, lastError string) error
	SetImageSource(contentID uuid.UUID, source ImageSource) error
	CountPostedSince(since time.Time) (int, error)
}

// Platform posts content to the external social network.
type Platform interface {
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
	PostContent(ctx context.Context, text string, mediaIDs []string) (PostRef, error)
}

// PostRef identifies a created platform post.
type PostRef struct {
	ID  string
	URL string
}

// ImageInfo is the result of a header-only dimension probe.
type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// ImageFetcher probes and downloads remote images.
type ImageFetcher interface {
	Probe(ctx context.Context, url string) (ImageInfo, error)
	Download(ctx context.Context, url string) ([]byte, string, error)
}

// ImageGenerator renders a fallback card image for a content item.
type ImageGenerator interface {
	Generate(ctx context.Context, item ContentItem) ([]byte, error)
}

// ChartRenderer draws an analytics chart for ticker symbols.
type ChartRenderer interface {
	Render(ctx context.Context, symbols []string) ([]byte, error)
}

// BlobStore persists a buffer and returns a stable public URL.
type BlobStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// QuoteProvider returns current quotes for ticker symbols.
type QuoteProvider interface {
	Quotes(ctx context.Context, symbols []string) ([]Quote, error)
}

// TextComposer writes the digest post body from member headlines.
type TextComposer interface {
	ComposeDigest(ctx context.Context, headlines []string) (string, error)
}

// AlertPublisher emits operational alerts.
type AlertPublisher interface {
	Publish(ctx context.Context, alert Alert) error
}

// Cache is a simple TTL store.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
