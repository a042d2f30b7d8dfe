package composer

import (
	"context"

	"ev-newswire/internal/domain"
)

// Fallback tries the primary composer and degrades to the fallback on error.
type Fallback struct {
	primary  domain.TextComposer
	fallback domain.TextComposer
}

// NewFallback chains two composers.
func NewFallback(primary, fallback domain.TextComposer) *Fallback {
	return &Fallback{primary: primary, fallback: fallback}
}

// ComposeDigest implements domain.TextComposer.
func (f *Fallback) ComposeDigest(ctx context.Context, headlines []string) (string, error) {
	text, err := f.primary.ComposeDigest(ctx, headlines)
	if err == nil {
		return text, nil
	}
	return f.fallback.ComposeDigest(ctx, headlines)
}
