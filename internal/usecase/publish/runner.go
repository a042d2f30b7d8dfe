package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/infra/metrics"
)

// Summary is the structured result of one publish run.
type Summary struct {
	RunID      string    `json:"runId"`
	Profile    string    `json:"profile"`
	Published  int       `json:"published"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	CapReached bool      `json:"capReached"`
	Items      []Outcome `json:"items"`
}

// Runner selects eligible items for a profile and publishes them
// sequentially with a deliberate inter-item delay.
type Runner struct {
	content    domain.ContentRepo
	records    domain.PublicationRepo
	executor   *Executor
	alerts     domain.AlertPublisher
	cache      domain.Cache
	limiter    *rate.Limiter
	dailyLimit int
	maxPerRun  int
	log        zerolog.Logger
}

// NewRunner creates the runner. interPostDelay spaces consecutive posts
// inside one run; the first item is never delayed.
func NewRunner(
	content domain.ContentRepo,
	records domain.PublicationRepo,
	executor *Executor,
	alerts domain.AlertPublisher,
	cache domain.Cache,
	interPostDelay time.Duration,
	dailyLimit int,
	maxPerRun int,
	logger zerolog.Logger,
) *Runner {
	if interPostDelay <= 0 {
		interPostDelay = 30 * time.Second
	}
	if dailyLimit <= 0 {
		dailyLimit = 10
	}
	if maxPerRun <= 0 {
		maxPerRun = 5
	}
	return &Runner{
		content:    content,
		records:    records,
		executor:   executor,
		alerts:     alerts,
		cache:      cache,
		limiter:    rate.NewLimiter(rate.Every(interPostDelay), 1),
		dailyLimit: dailyLimit,
		maxPerRun:  maxPerRun,
		log:        logger.With().Str("service", "publish-runner").Logger(),
	}
}

// Run executes one publish run for the profile and returns its summary.
func (r *Runner) Run(ctx context.Context, profile domain.SelectionProfile) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: uuid.NewString(), Profile: profile.Name}
	defer func() {
		metrics.PublishRunSeconds.WithLabelValues(profile.Name).Observe(time.Since(start).Seconds())
	}()

	remaining, capReached, err := r.CheckCap(ctx)
	if err != nil {
		return summary, fmt.Errorf("count posts today: %w", err)
	}
	if capReached {
		summary.CapReached = true
		r.logSummary(summary)
		return summary, nil
	}

	limit := r.maxPerRun
	if remaining < limit {
		limit = remaining
	}
	items, err := r.content.ListEligible(profile, limit)
	if err != nil {
		return summary, fmt.Errorf("select eligible items: %w", err)
	}

	for _, item := range items {
		if err := r.limiter.Wait(ctx); err != nil {
			r.logSummary(summary)
			return summary, fmt.Errorf("run interrupted: %w", err)
		}
		outcome := r.executor.Publish(ctx, item.ID, Options{})
		summary.Items = append(summary.Items, outcome)
		switch outcome.Result {
		case OutcomePublished:
			summary.Published++
		case OutcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	r.logSummary(summary)
	return summary, nil
}

// CheckCap returns the remaining daily post budget. When the budget is
// spent it fires the (per-day deduplicated) cap alert and reports true.
func (r *Runner) CheckCap(ctx context.Context) (int, bool, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	posted, err := r.records.CountPostedSince(midnight)
	if err != nil {
		return 0, false, err
	}
	remaining := r.dailyLimit - posted
	if remaining <= 0 {
		metrics.DailyCapHitsTotal.Inc()
		r.alertCapReached()
		return 0, true, nil
	}
	return remaining, false, nil
}

// alertCapReached fires the cap alert at most once per UTC day. Detached
// context: alerting must not inherit a nearly-spent attempt deadline.
func (r *Runner) alertCapReached() {
	if r.alerts == nil || r.cache == nil {
		return
	}
	now := time.Now().UTC()
	date := now.Format("2006-01-02")
	untilMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour).Sub(now)

	err := r.cache.Once("alert:cap:"+date, untilMidnight, func() error {
		alertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return r.alerts.Publish(alertCtx, domain.Alert{
			Event: domain.AlertDailyCapReached,
			Metadata: map[string]any{
				"date":  date,
				"limit": r.dailyLimit,
			},
		})
	})
	if err != nil {
		r.log.Error().Err(err).Msg("could not publish daily cap alert")
	}
}

func (r *Runner) logSummary(s Summary) {
	r.log.Info().
		Str("run_id", s.RunID).
		Str("profile", s.Profile).
		Int("published", s.Published).
		Int("failed", s.Failed).
		Int("skipped", s.Skipped).
		Bool("cap_reached", s.CapReached).
		Msg("publish run finished")
}
