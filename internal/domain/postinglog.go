package domain

import (
	"time"

	"github.com/google/uuid"
)

// PostType labels a posting log entry by the kind of post made.
type PostType string

const (
	PostTypeNews      PostType = "news"
	PostTypeDigest    PostType = "digest"
	PostTypeAnalytics PostType = "analytics"
)

// PostTypeFor maps a content tier to the posting log label.
func PostTypeFor(tier Tier) PostType {
	switch tier {
	case TierDigest:
		return PostTypeDigest
	case TierAnalytics:
		return PostTypeAnalytics
	default:
		return PostTypeNews
	}
}

// PostingLogEntry is an append-only record of one successful publish.
type PostingLogEntry struct {
	ID             uuid.UUID
	PostType       PostType
	ExternalPostID string
	ContentIDs     []uuid.UUID
	PostedAt       time.Time
}

// Quote is a point-in-time stock quote used to enrich analytics posts.
type Quote struct {
	Symbol    string
	Price     float64
	ChangePct float64
	AsOf      time.Time
}
