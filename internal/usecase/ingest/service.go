package ingest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ev-newswire/internal/domain"
)

// Request is one scraper batch submission.
type Request struct {
	BatchID string `json:"batchId"`
	Posts   []Post `json:"posts"`
}

// Post mirrors the scraper's per-article payload. Scores arrive as
// numbers, not necessarily integers, so they decode as float64.
type Post struct {
	SourceID          string   `json:"sourceId"`
	Source            string   `json:"source"`
	SourceURL         string   `json:"sourceUrl"`
	SourceAuthor      string   `json:"sourceAuthor"`
	SourceDate        string   `json:"sourceDate"`
	OriginalTitle     string   `json:"originalTitle"`
	OriginalContent   string   `json:"originalContent"`
	OriginalMediaURLs []string `json:"originalMediaUrls"`
	TranslatedTitle   string   `json:"translatedTitle"`
	TranslatedContent string   `json:"translatedContent"`
	TranslatedSummary string   `json:"translatedSummary"`
	Categories        []string `json:"categories"`
	RelevanceScore    float64  `json:"relevanceScore"`
	Tickers           []string `json:"tickers"`
	Kind              string   `json:"kind"`
}

// Result is the batch response the scraper prints per run.
type Result struct {
	Received   int `json:"received"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Service turns scraper batches into content items. Ingest never
// publishes anything; it only feeds the selector.
type Service struct {
	content          domain.ContentRepo
	autoApproveScore int
	log              zerolog.Logger
}

// NewService creates the ingest service.
func NewService(content domain.ContentRepo, autoApproveScore int, logger zerolog.Logger) *Service {
	if autoApproveScore <= 0 {
		autoApproveScore = 70
	}
	return &Service{
		content:          content,
		autoApproveScore: autoApproveScore,
		log:              logger.With().Str("service", "ingest").Logger(),
	}
}

// Ingest validates and stores one batch. Invalid posts are rejected
// individually; duplicates are detected by source id.
func (s *Service) Ingest(batch Request) (Result, error) {
	result := Result{Received: len(batch.Posts)}

	items := make([]domain.ContentItem, 0, len(batch.Posts))
	for _, post := range batch.Posts {
		item, err := s.toItem(post)
		if err != nil {
			result.Rejected++
			s.log.Warn().Err(err).Str("batch_id", batch.BatchID).Str("source_id", post.SourceID).Msg("post rejected")
			continue
		}
		items = append(items, item)
	}

	created, err := s.content.UpsertItems(items)
	if err != nil {
		return result, fmt.Errorf("store batch: %w", err)
	}
	result.Created = created
	result.Duplicates = len(items) - created

	s.log.Info().
		Str("batch_id", batch.BatchID).
		Int("received", result.Received).
		Int("created", result.Created).
		Int("duplicates", result.Duplicates).
		Int("rejected", result.Rejected).
		Msg("batch ingested")
	return result, nil
}

func (s *Service) toItem(post Post) (domain.ContentItem, error) {
	sourceID := strings.TrimSpace(post.SourceID)
	if sourceID == "" {
		return domain.ContentItem{}, fmt.Errorf("missing sourceId")
	}
	title := firstNonEmpty(post.TranslatedTitle, post.OriginalTitle)
	if title == "" {
		return domain.ContentItem{}, fmt.Errorf("no usable title")
	}
	summary := firstNonEmpty(post.TranslatedSummary, post.TranslatedContent)
	if summary == "" {
		return domain.ContentItem{}, fmt.Errorf("no usable summary")
	}

	score := int(math.Round(post.RelevanceScore))
	if score < 0 {
		score = 0
	}

	item := domain.ContentItem{
		SourceID:      sourceID,
		Source:        strings.TrimSpace(post.Source),
		SourceURL:     strings.TrimSpace(post.SourceURL),
		SourceAuthor:  strings.TrimSpace(post.SourceAuthor),
		SourceDate:    parseSourceDate(post.SourceDate),
		Title:         title,
		Summary:       summary,
		Categories:    trimAll(post.Categories),
		Tickers:       upperAll(post.Tickers),
		Score:         score,
		Tier:          s.tierFor(post.Kind, score),
		ApprovalState: s.approvalFor(score),
	}
	if len(post.OriginalMediaURLs) > 0 {
		item.OriginalImageURL = strings.TrimSpace(post.OriginalMediaURLs[0])
	}
	return item, nil
}

// tierFor classifies the post: data posts are analytics, everything
// else splits on the auto-approve score.
func (s *Service) tierFor(kind string, score int) domain.Tier {
	if strings.EqualFold(strings.TrimSpace(kind), "data") {
		return domain.TierAnalytics
	}
	if score >= s.autoApproveScore {
		return domain.TierBreaking
	}
	return domain.TierStandard
}

// approvalFor auto-approves high-score posts; the rest wait for an editor.
func (s *Service) approvalFor(score int) domain.ApprovalState {
	if score >= s.autoApproveScore {
		return domain.ApprovalApproved
	}
	return domain.ApprovalDraft
}

var sourceDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseSourceDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range sourceDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func upperAll(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.ToUpper(strings.TrimSpace(v)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
