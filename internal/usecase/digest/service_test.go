package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ev-newswire/internal/domain"
	"ev-newswire/internal/usecase/publish"
)

type stubContent struct {
	eligible    []domain.ContentItem
	created     *domain.ContentItem
	absorbed    []uuid.UUID
	absorbedFor uuid.UUID
	claim       func(memberIDs []uuid.UUID) []uuid.UUID
}

func (s *stubContent) GetItem(id uuid.UUID) (domain.ContentItem, error) {
	return domain.ContentItem{}, domain.ErrContentNotFound
}
func (s *stubContent) UpsertItems([]domain.ContentItem) (int, error) { return 0, nil }
func (s *stubContent) CreateItem(item domain.ContentItem) (domain.ContentItem, error) {
	item.ID = uuid.New()
	item.CreatedAt = time.Now().UTC()
	s.created = &item
	return item, nil
}
func (s *stubContent) ListEligible(profile domain.SelectionProfile, limit int) ([]domain.ContentItem, error) {
	if limit < len(s.eligible) {
		return s.eligible[:limit], nil
	}
	return s.eligible, nil
}
func (s *stubContent) SetCardImage(uuid.UUID, string) error { return nil }
func (s *stubContent) AbsorbIntoDigest(digestID uuid.UUID, memberIDs []uuid.UUID) ([]uuid.UUID, error) {
	s.absorbedFor = digestID
	if s.claim != nil {
		s.absorbed = s.claim(memberIDs)
	} else {
		s.absorbed = memberIDs
	}
	return s.absorbed, nil
}

type stubComposer struct {
	text      string
	err       error
	headlines []string
}

func (s *stubComposer) ComposeDigest(ctx context.Context, headlines []string) (string, error) {
	s.headlines = headlines
	return s.text, s.err
}

type stubExecutor struct {
	outcome publish.Outcome
	calls   []uuid.UUID
}

func (s *stubExecutor) Publish(ctx context.Context, contentID uuid.UUID, opts publish.Options) publish.Outcome {
	s.calls = append(s.calls, contentID)
	out := s.outcome
	out.ContentID = contentID
	if out.Result == "" {
		out.Result = publish.OutcomePublished
	}
	return out
}

type stubCaps struct {
	remaining  int
	capReached bool
	err        error
}

func (s *stubCaps) CheckCap(ctx context.Context) (int, bool, error) {
	return s.remaining, s.capReached, s.err
}

func member(title string, score int) domain.ContentItem {
	return domain.ContentItem{
		ID:            uuid.New(),
		SourceID:      "src-" + uuid.NewString()[:8],
		Title:         title,
		Summary:       title,
		Score:         score,
		Tier:          domain.TierStandard,
		ApprovalState: domain.ApprovalApproved,
		CreatedAt:     time.Now().UTC(),
	}
}

func newTestService(content *stubContent, composer *stubComposer, exec *stubExecutor, caps *stubCaps) *Service {
	return NewService(content, composer, exec, caps, 4, 2, 40, 70, zerolog.Nop())
}

func TestRunComposesAndPublishesDigest(t *testing.T) {
	members := []domain.ContentItem{
		member("BYD hits a delivery record", 65),
		member("NIO opens 50 new swap stations", 58),
		member("XPeng teases new sedan", 52),
	}
	content := &stubContent{eligible: members}
	composer := &stubComposer{text: "Today in EV news: records, swaps and a new sedan."}
	exec := &stubExecutor{}
	svc := newTestService(content, composer, exec, &stubCaps{remaining: 5})

	summary, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Published != 1 {
		t.Fatalf("expected 1 published, got %+v", summary)
	}
	if len(composer.headlines) != 3 || composer.headlines[0] != "BYD hits a delivery record" {
		t.Fatalf("composer got wrong headlines: %v", composer.headlines)
	}
	if content.created == nil {
		t.Fatal("digest item was not created")
	}
	if content.created.Tier != domain.TierDigest {
		t.Fatalf("unexpected tier: %s", content.created.Tier)
	}
	if content.created.ApprovalState != domain.ApprovalApproved {
		t.Fatalf("digest must arrive approved, got %s", content.created.ApprovalState)
	}
	if content.created.Score != 65 {
		t.Fatalf("digest score must be the max member score, got %d", content.created.Score)
	}
	if !strings.HasPrefix(content.created.SourceID, "digest:") {
		t.Fatalf("unexpected source id: %q", content.created.SourceID)
	}
	if content.created.Summary != composer.text {
		t.Fatalf("digest body must be the composed text, got %q", content.created.Summary)
	}
	if content.absorbedFor != content.created.ID {
		t.Fatal("members absorbed into the wrong digest")
	}
	if len(exec.calls) != 1 || exec.calls[0] != content.created.ID {
		t.Fatalf("executor called with wrong id: %v", exec.calls)
	}
}

func TestRunNotEnoughMembersIsANoOp(t *testing.T) {
	content := &stubContent{eligible: []domain.ContentItem{member("Lone story", 55)}}
	exec := &stubExecutor{}
	svc := newTestService(content, &stubComposer{text: "x"}, exec, &stubCaps{remaining: 5})

	summary, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if content.created != nil {
		t.Fatal("no digest item expected")
	}
	if len(exec.calls) != 0 {
		t.Fatal("executor must not be called")
	}
	if summary.Published+summary.Failed+summary.Skipped != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}

func TestRunSkipsPublishWhenMembersWereStolen(t *testing.T) {
	members := []domain.ContentItem{
		member("First", 60),
		member("Second", 55),
		member("Third", 50),
	}
	content := &stubContent{
		eligible: members,
		claim: func(memberIDs []uuid.UUID) []uuid.UUID {
			// A concurrent news run locked all but one member.
			return memberIDs[:1]
		},
	}
	exec := &stubExecutor{}
	svc := newTestService(content, &stubComposer{text: "x"}, exec, &stubCaps{remaining: 5})

	summary, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatal("digest without members must not be published")
	}
	if summary.Skipped != 1 {
		t.Fatalf("expected 1 skip, got %+v", summary)
	}
}

func TestRunRespectsDailyCap(t *testing.T) {
	content := &stubContent{eligible: []domain.ContentItem{member("A", 60), member("B", 55)}}
	exec := &stubExecutor{}
	svc := newTestService(content, &stubComposer{text: "x"}, exec, &stubCaps{capReached: true})

	summary, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.CapReached {
		t.Fatalf("expected capReached, got %+v", summary)
	}
	if content.created != nil || len(exec.calls) != 0 {
		t.Fatal("cap-reached run must not create or publish")
	}
}

func TestRunComposerFailureAbortsRun(t *testing.T) {
	content := &stubContent{eligible: []domain.ContentItem{member("A", 60), member("B", 55)}}
	exec := &stubExecutor{}
	svc := newTestService(content, &stubComposer{err: errors.New("llm down")}, exec, &stubCaps{remaining: 5})

	_, err := svc.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when composition fails")
	}
	if content.created != nil {
		t.Fatal("failed composition must not create a digest item")
	}
}
