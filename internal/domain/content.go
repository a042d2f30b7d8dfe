package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier classifies content priority and drives eligibility bands.
type Tier string

const (
	TierStandard  Tier = "standard"
	TierBreaking  Tier = "breaking"
	TierAnalytics Tier = "analytics"
	TierDigest    Tier = "digest"
)

// ApprovalState is the editorial state of a content item.
type ApprovalState string

const (
	ApprovalDraft    ApprovalState = "draft"
	ApprovalApproved ApprovalState = "approved"
)

// ContentItem is one publishable unit: a news summary or a data post.
type ContentItem struct {
	ID               uuid.UUID
	SourceID         string
	Source           string
	SourceURL        string
	SourceAuthor     string
	SourceDate       *time.Time
	Title            string
	Summary          string
	Categories       []string
	Tickers          []string
	Score            int
	Tier             Tier
	ApprovalState    ApprovalState
	Published        bool
	AbsorbedInto     *uuid.UUID
	CardImageURL     string
	OriginalImageURL string
	CreatedAt        time.Time
}

// SelectionProfile describes one eligibility band for a publish run.
// MaxScore is exclusive; zero means unbounded above.
type SelectionProfile struct {
	Name     string
	Tiers    []Tier
	MinScore int
	MaxScore int
}

// NewsProfile selects items worth an individual post.
func NewsProfile(autoPublishScore int) SelectionProfile {
	return SelectionProfile{
		Name:     "news",
		Tiers:    []Tier{TierBreaking, TierStandard, TierAnalytics},
		MinScore: autoPublishScore,
	}
}

// DigestProfile selects the mid-score band bundled into one digest post.
// The half-open [min, autoPublish) band keeps the two profiles disjoint.
func DigestProfile(minScore, autoPublishScore int) SelectionProfile {
	return SelectionProfile{
		Name:     "digest",
		Tiers:    []Tier{TierStandard},
		MinScore: minScore,
		MaxScore: autoPublishScore,
	}
}
