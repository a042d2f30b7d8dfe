package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/usecase/publish"
)

type publisher interface {
	Publish(ctx context.Context, contentID uuid.UUID, opts publish.Options) publish.Outcome
}

type capChecker interface {
	CheckCap(ctx context.Context) (int, bool, error)
}

// Service bundles the mid-score band into one aggregate post. Members
// are absorbed into a freshly created digest item, which then goes
// through the ordinary publish executor.
type Service struct {
	content          domain.ContentRepo
	composer         domain.TextComposer
	executor         publisher
	caps             capChecker
	digestSize       int
	minMembers       int
	minScore         int
	autoApproveScore int
	log              zerolog.Logger
}

// NewService creates the digest builder.
func NewService(
	content domain.ContentRepo,
	composer domain.TextComposer,
	executor publisher,
	caps capChecker,
	digestSize int,
	minMembers int,
	minScore int,
	autoApproveScore int,
	logger zerolog.Logger,
) *Service {
	if digestSize <= 0 {
		digestSize = 4
	}
	if minMembers < 2 {
		minMembers = 2
	}
	return &Service{
		content:          content,
		composer:         composer,
		executor:         executor,
		caps:             caps,
		digestSize:       digestSize,
		minMembers:       minMembers,
		minScore:         minScore,
		autoApproveScore: autoApproveScore,
		log:              logger.With().Str("service", "digest-builder").Logger(),
	}
}

// Run builds and publishes one digest. With fewer eligible members than
// the minimum the run is a quiet no-op.
func (s *Service) Run(ctx context.Context) (publish.Summary, error) {
	summary := publish.Summary{RunID: uuid.NewString(), Profile: "digest"}

	_, capReached, err := s.caps.CheckCap(ctx)
	if err != nil {
		return summary, fmt.Errorf("count posts today: %w", err)
	}
	if capReached {
		summary.CapReached = true
		s.log.Info().Str("run_id", summary.RunID).Msg("daily cap reached, digest skipped")
		return summary, nil
	}

	profile := domain.DigestProfile(s.minScore, s.autoApproveScore)
	members, err := s.content.ListEligible(profile, s.digestSize)
	if err != nil {
		return summary, fmt.Errorf("select digest members: %w", err)
	}
	if len(members) < s.minMembers {
		s.log.Info().Str("run_id", summary.RunID).Int("members", len(members)).Msg("not enough members for a digest")
		return summary, nil
	}

	headlines := make([]string, 0, len(members))
	maxScore := 0
	memberIDs := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		headlines = append(headlines, member.Title)
		memberIDs = append(memberIDs, member.ID)
		if member.Score > maxScore {
			maxScore = member.Score
		}
	}

	text, err := s.composer.ComposeDigest(ctx, headlines)
	if err != nil {
		return summary, fmt.Errorf("compose digest text: %w", err)
	}

	now := time.Now().UTC()
	item, err := s.content.CreateItem(domain.ContentItem{
		SourceID:      fmt.Sprintf("digest:%s:%s", now.Format("2006-01-02"), summary.RunID[:8]),
		Source:        "DIGEST",
		Title:         fmt.Sprintf("EV news digest %s", now.Format("Jan 2")),
		Summary:       text,
		Score:         maxScore,
		Tier:          domain.TierDigest,
		ApprovalState: domain.ApprovalApproved,
	})
	if err != nil {
		return summary, fmt.Errorf("create digest item: %w", err)
	}

	claimed, err := s.content.AbsorbIntoDigest(item.ID, memberIDs)
	if err != nil {
		return summary, fmt.Errorf("absorb members: %w", err)
	}
	if len(claimed) < s.minMembers {
		// Concurrent runs grabbed the members first. The orphan digest
		// item never becomes eligible: no profile selects the digest tier.
		summary.Skipped++
		summary.Items = append(summary.Items, publish.Outcome{
			ContentID: item.ID,
			Result:    publish.OutcomeSkipped,
			Error:     fmt.Sprintf("only %d of %d members could be absorbed", len(claimed), len(memberIDs)),
		})
		s.log.Warn().Str("run_id", summary.RunID).Int("claimed", len(claimed)).Msg("digest lost its members, skipping publish")
		return summary, nil
	}

	outcome := s.executor.Publish(ctx, item.ID, publish.Options{})
	summary.Items = append(summary.Items, outcome)
	switch outcome.Result {
	case publish.OutcomePublished:
		summary.Published++
	case publish.OutcomeFailed:
		summary.Failed++
	default:
		summary.Skipped++
	}

	s.log.Info().
		Str("run_id", summary.RunID).
		Str("digest_id", item.ID.String()).
		Int("members", len(claimed)).
		Str("outcome", outcome.Result).
		Msg("digest run finished")
	return summary, nil
}
