package publish

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/metrics"
)

// Aspect ratio band for scraped originals. Anything wider or taller
// looks cropped on the timeline and falls through to generation.
const (
	minAspectRatio = 0.5
	maxAspectRatio = 2.0
)

// ImageResolver walks the image priority chain for one attempt:
// override, stored card, scraped original, generated. Any error in the
// chain persists imageSource=failed so later attempts skip image work
// entirely; the post itself always proceeds, at worst text-only.
type ImageResolver struct {
	fetcher          domain.ImageFetcher
	generator        domain.ImageGenerator
	charts           domain.ChartRenderer
	blobs            domain.BlobStore
	content          domain.ContentRepo
	records          domain.PublicationRepo
	autoApproveScore int
	log              zerolog.Logger
}

// NewImageResolver creates the resolver. Generator, charts and blobs
// may be nil when the deployment has no generation collaborators.
func NewImageResolver(
	fetcher domain.ImageFetcher,
	generator domain.ImageGenerator,
	charts domain.ChartRenderer,
	blobs domain.BlobStore,
	content domain.ContentRepo,
	records domain.PublicationRepo,
	autoApproveScore int,
	logger zerolog.Logger,
) *ImageResolver {
	return &ImageResolver{
		fetcher:          fetcher,
		generator:        generator,
		charts:           charts,
		blobs:            blobs,
		content:          content,
		records:          records,
		autoApproveScore: autoApproveScore,
		log:              logger.With().Str("service", "image-resolver").Logger(),
	}
}

// Resolve returns upload-ready bytes for the item, or nil for a
// text-only post. prior is the image source already on the record;
// failed short-circuits the whole chain. An explicit override URL beats
// the negative cache: an operator supplied it to fix exactly that.
func (r *ImageResolver) Resolve(ctx context.Context, item domain.ContentItem, prior domain.ImageSource, overrideURL string) ([]byte, string, domain.ImageSource) {
	if overrideURL != "" {
		return r.download(ctx, item, overrideURL, domain.ImageSourceOverride)
	}
	if prior == domain.ImageSourceFailed {
		metrics.ObserveImageSource(string(domain.ImageSourceFailed))
		return nil, "", domain.ImageSourceFailed
	}
	if item.CardImageURL != "" {
		return r.download(ctx, item, item.CardImageURL, domain.ImageSourceCard)
	}
	if item.OriginalImageURL != "" {
		data, mime, source, usable := r.tryScraped(ctx, item)
		if source == domain.ImageSourceFailed {
			return nil, "", source
		}
		if usable {
			return data, mime, source
		}
	}
	return r.tryGenerated(ctx, item)
}

// tryScraped probes the original image and downloads it when the aspect
// ratio is acceptable. usable=false with a non-failed source means the
// chain should continue.
func (r *ImageResolver) tryScraped(ctx context.Context, item domain.ContentItem) ([]byte, string, domain.ImageSource, bool) {
	info, err := r.fetcher.Probe(ctx, item.OriginalImageURL)
	if err != nil {
		r.fail(item, fmt.Errorf("probe original image: %w", err))
		return nil, "", domain.ImageSourceFailed, false
	}
	if info.Height <= 0 {
		return nil, "", domain.ImageSourceNone, false
	}
	ratio := float64(info.Width) / float64(info.Height)
	if ratio < minAspectRatio || ratio > maxAspectRatio {
		r.log.Debug().Str("content_id", item.ID.String()).Float64("ratio", ratio).Msg("original image rejected by aspect ratio")
		return nil, "", domain.ImageSourceNone, false
	}
	data, mime, source := r.download(ctx, item, item.OriginalImageURL, domain.ImageSourceScraped)
	return data, mime, source, source == domain.ImageSourceScraped
}

// tryGenerated renders a card for high-score items: a chart for
// analytics, a generated image otherwise. The buffer is stored to blob
// storage and remembered as the item's card for future attempts.
func (r *ImageResolver) tryGenerated(ctx context.Context, item domain.ContentItem) ([]byte, string, domain.ImageSource) {
	if item.Score < r.autoApproveScore {
		metrics.ObserveImageSource(string(domain.ImageSourceNone))
		return nil, "", domain.ImageSourceNone
	}

	var (
		raw []byte
		err error
	)
	switch {
	case item.Tier == domain.TierAnalytics && len(item.Tickers) > 0 && r.charts != nil:
		raw, err = r.charts.Render(ctx, item.Tickers)
	case r.generator != nil:
		raw, err = r.generator.Generate(ctx, item)
	default:
		metrics.ObserveImageSource(string(domain.ImageSourceNone))
		return nil, "", domain.ImageSourceNone
	}
	if err != nil {
		r.fail(item, fmt.Errorf("generate image: %w", err))
		return nil, "", domain.ImageSourceFailed
	}

	data, mime, err := NormalizeMedia(raw)
	if err != nil {
		r.fail(item, fmt.Errorf("normalize generated image: %w", err))
		return nil, "", domain.ImageSourceFailed
	}

	if r.blobs != nil {
		url, err := r.blobs.Store(ctx, fmt.Sprintf("cards/%s.jpg", item.ID), data, mime)
		if err != nil {
			r.fail(item, fmt.Errorf("store generated image: %w", err))
			return nil, "", domain.ImageSourceFailed
		}
		if err := r.content.SetCardImage(item.ID, url); err != nil {
			r.log.Error().Err(err).Str("content_id", item.ID.String()).Msg("could not remember card image")
		}
	}

	metrics.ObserveImageSource(string(domain.ImageSourceGenerated))
	return data, mime, domain.ImageSourceGenerated
}

func (r *ImageResolver) download(ctx context.Context, item domain.ContentItem, url string, source domain.ImageSource) ([]byte, string, domain.ImageSource) {
	raw, _, err := r.fetcher.Download(ctx, url)
	if err != nil {
		r.fail(item, fmt.Errorf("download %s image: %w", source, err))
		return nil, "", domain.ImageSourceFailed
	}
	data, mime, err := NormalizeMedia(raw)
	if err != nil {
		r.fail(item, fmt.Errorf("normalize %s image: %w", source, err))
		return nil, "", domain.ImageSourceFailed
	}
	metrics.ObserveImageSource(string(source))
	return data, mime, source
}

// fail persists the negative cache and logs the chain error.
func (r *ImageResolver) fail(item domain.ContentItem, err error) {
	r.log.Warn().Err(err).Str("content_id", item.ID.String()).Msg("image chain failed, posting text-only")
	metrics.ObserveImageSource(string(domain.ImageSourceFailed))
	if storeErr := r.records.SetImageSource(item.ID, domain.ImageSourceFailed); storeErr != nil {
		r.log.Error().Err(storeErr).Str("content_id", item.ID.String()).Msg("could not persist failed image source")
	}
}
