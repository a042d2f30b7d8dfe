package publish

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/metrics"
)

// Outcome labels for one publish attempt.
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Outcome is the per-item result returned in a run summary.
type Outcome struct {
	ContentID       uuid.UUID `json:"contentId"`
	Result          string    `json:"outcome"`
	ExternalPostID  string    `json:"externalPostId,omitempty"`
	ExternalPostURL string    `json:"externalPostUrl,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Options alter one publish call. Zero value means a scheduled attempt.
type Options struct {
	// PreStates the acquisition may start from. Empty means draft/approved.
	PreStates []domain.PublicationStatus
	// OverrideImageURL becomes priority one of the image chain.
	OverrideImageURL string
	// ApprovedBy is recorded on the record for attribution.
	ApprovedBy string
}

type textFormatter interface {
	Format(ctx context.Context, item domain.ContentItem) string
}

type imageResolver interface {
	Resolve(ctx context.Context, item domain.ContentItem, prior domain.ImageSource, overrideURL string) ([]byte, string, domain.ImageSource)
}

// Executor drives one content item through the posting state machine.
// The conditional update on the publication record is the only lock.
type Executor struct {
	content        domain.ContentRepo
	records        domain.PublicationRepo
	platform       domain.Platform
	formatter      textFormatter
	resolver       imageResolver
	alerts         domain.AlertPublisher
	maxAttempts    int
	attemptTimeout time.Duration
	log            zerolog.Logger
}

// NewExecutor creates the executor.
func NewExecutor(
	content domain.ContentRepo,
	records domain.PublicationRepo,
	platform domain.Platform,
	formatter textFormatter,
	resolver imageResolver,
	alerts domain.AlertPublisher,
	maxAttempts int,
	attemptTimeout time.Duration,
	logger zerolog.Logger,
) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 60 * time.Second
	}
	return &Executor{
		content:        content,
		records:        records,
		platform:       platform,
		formatter:      formatter,
		resolver:       resolver,
		alerts:         alerts,
		maxAttempts:    maxAttempts,
		attemptTimeout: attemptTimeout,
		log:            logger.With().Str("service", "publish-executor").Logger(),
	}
}

// Publish runs one attempt for the item. It is idempotent: a published
// record short-circuits with the stored ids, a busy or terminal record
// reports a skip. Exactly one caller can hold the posting lock.
func (e *Executor) Publish(ctx context.Context, contentID uuid.UUID, opts Options) Outcome {
	record, err := e.records.GetRecord(contentID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRecordNotFound):
		record = domain.PublicationRecord{ContentID: contentID, Status: domain.StatusUnsubmitted}
	default:
		return e.skip(contentID, "load record: "+err.Error())
	}

	if record.Status == domain.StatusPublished {
		metrics.PostSkipsTotal.Inc()
		return Outcome{
			ContentID:       contentID,
			Result:          OutcomeSkipped,
			ExternalPostID:  record.ExternalPostID,
			ExternalPostURL: record.ExternalPostURL,
		}
	}

	item, err := e.content.GetItem(contentID)
	if err != nil {
		return e.skip(contentID, "load item: "+err.Error())
	}

	preStates := opts.PreStates
	if len(preStates) == 0 {
		preStates = []domain.PublicationStatus{domain.StatusDraft, domain.StatusApproved}
	}

	attempts, acquired, err := e.records.AcquireForPosting(contentID, preStates)
	if err != nil {
		return e.skip(contentID, "acquire lock: "+err.Error())
	}
	if !acquired {
		metrics.PostSkipsTotal.Inc()
		e.log.Info().Str("content_id", contentID.String()).Msg("lock busy or record terminal, skipping")
		return Outcome{ContentID: contentID, Result: OutcomeSkipped}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	ref, source, err := e.attempt(attemptCtx, item, record, opts)
	cancel()

	// Terminal writes go through the store's own short detached context,
	// so a timed-out attempt still releases the lock.
	if err != nil {
		return e.finishFailed(item, record, attempts, err)
	}
	return e.finishPublished(item, ref, source, opts.ApprovedBy, attempts)
}

// attempt does the network work of one publish: format, resolve image,
// upload media, post.
func (e *Executor) attempt(ctx context.Context, item domain.ContentItem, record domain.PublicationRecord, opts Options) (domain.PostRef, domain.ImageSource, error) {
	text := e.formatter.Format(ctx, item)

	var mediaIDs []string
	data, mime, source := e.resolver.Resolve(ctx, item, record.ImageSource, opts.OverrideImageURL)
	if len(data) > 0 {
		mediaID, err := e.platform.UploadMedia(ctx, data, mime)
		if err != nil {
			// A media rejection must not sink the post: degrade to
			// text-only and negative-cache the image work.
			e.log.Warn().Err(err).Str("content_id", item.ID.String()).Msg("media upload failed, posting text-only")
			source = domain.ImageSourceFailed
			metrics.ObserveImageSource(string(domain.ImageSourceFailed))
			if storeErr := e.records.SetImageSource(item.ID, domain.ImageSourceFailed); storeErr != nil {
				e.log.Error().Err(storeErr).Str("content_id", item.ID.String()).Msg("could not persist failed image source")
			}
		} else {
			mediaIDs = append(mediaIDs, mediaID)
		}
	}

	ref, err := e.platform.PostContent(ctx, text, mediaIDs)
	if err != nil {
		return domain.PostRef{}, source, err
	}
	return ref, source, nil
}

func (e *Executor) finishPublished(item domain.ContentItem, ref domain.PostRef, source domain.ImageSource, approvedBy string, attempts int) Outcome {
	postType := domain.PostTypeFor(item.Tier)
	err := e.records.FinishPublished(domain.PublishedOutcome{
		ContentID:       item.ID,
		PostType:        postType,
		ExternalPostID:  ref.ID,
		ExternalPostURL: ref.URL,
		ImageSource:     source,
		ApprovedBy:      approvedBy,
	})
	if err != nil {
		// The post exists but the record still says posting. Surface it
		// loudly: this window is the one at-most-once hazard left.
		e.log.Error().Err(err).
			Str("content_id", item.ID.String()).
			Str("external_post_id", ref.ID).
			Msg("post created but outcome write failed")
		return Outcome{
			ContentID:       item.ID,
			Result:          OutcomeFailed,
			ExternalPostID:  ref.ID,
			ExternalPostURL: ref.URL,
			Error:           "outcome write failed: " + err.Error(),
		}
	}

	metrics.ObservePublished(string(postType))
	e.log.Info().
		Str("content_id", item.ID.String()).
		Str("external_post_id", ref.ID).
		Int("attempts", attempts).
		Str("image_source", string(source)).
		Msg("published")
	return Outcome{
		ContentID:       item.ID,
		Result:          OutcomePublished,
		ExternalPostID:  ref.ID,
		ExternalPostURL: ref.URL,
	}
}

func (e *Executor) finishFailed(item domain.ContentItem, record domain.PublicationRecord, attempts int, attemptErr error) Outcome {
	revertTo := record.Status
	if revertTo == domain.StatusUnsubmitted {
		revertTo = preStateFor(item.ApprovalState)
	}
	next := domain.NextStatusOnFailure(attempts, e.maxAttempts, revertTo)

	if err := e.records.FinishFailed(item.ID, next, attemptErr.Error()); err != nil {
		e.log.Error().Err(err).Str("content_id", item.ID.String()).Msg("could not write failure outcome")
	}

	terminal := next == domain.StatusFailed
	metrics.ObserveFailure(terminal)
	e.log.Warn().Err(attemptErr).
		Str("content_id", item.ID.String()).
		Int("attempts", attempts).
		Str("next_status", string(next)).
		Msg("publish attempt failed")
	if terminal {
		e.alertFailure(item.ID, attempts, attemptErr)
	}

	return Outcome{ContentID: item.ID, Result: OutcomeFailed, Error: attemptErr.Error()}
}

// alertFailure notifies operators about a terminal failure. Bounded and
// fire-and-forget: alerting must never affect the pipeline.
func (e *Executor) alertFailure(contentID uuid.UUID, attempts int, attemptErr error) {
	if e.alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id := contentID
	err := e.alerts.Publish(ctx, domain.Alert{
		Event:     domain.AlertPublicationFailed,
		ContentID: &id,
		Metadata: map[string]any{
			"attempts": attempts,
			"error":    domain.TruncateError(attemptErr.Error()),
		},
	})
	if err != nil {
		e.log.Error().Err(err).Str("content_id", contentID.String()).Msg("could not publish failure alert")
	}
}

func (e *Executor) skip(contentID uuid.UUID, reason string) Outcome {
	metrics.PostSkipsTotal.Inc()
	e.log.Warn().Str("content_id", contentID.String()).Str("reason", reason).Msg("publish skipped")
	return Outcome{ContentID: contentID, Result: OutcomeSkipped, Error: reason}
}

func preStateFor(state domain.ApprovalState) domain.PublicationStatus {
	if state == domain.ApprovalDraft {
		return domain.StatusDraft
	}
	return domain.StatusApproved
}
