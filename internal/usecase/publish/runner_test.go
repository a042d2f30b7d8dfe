package publish

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ev-newswire/internal/domain"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Once(key string, ttl time.Duration, fn func() error) error {
	c.mu.Lock()
	_, ok := c.data[key]
	if !ok {
		c.data[key] = []byte("1")
	}
	c.mu.Unlock()
	if ok {
		return nil
	}
	return fn()
}

func (c *memCache) Set(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return b, nil
}

func newTestRunner(store *fakeStore, platform *stubPlatform, alerts *stubAlerts, cache *memCache, dailyLimit, maxPerRun int) *Runner {
	exec := newTestExecutor(store, platform, &stubResolver{}, alerts, 2)
	return NewRunner(store, store, exec, alerts, cache, time.Millisecond, dailyLimit, maxPerRun, zerolog.Nop())
}

func seedPosted(store *fakeStore, n int) {
	for i := 0; i < n; i++ {
		item := store.addItem(approvedItem(90))
		store.setRecord(domain.PublicationRecord{ContentID: item.ID, Status: domain.StatusPosting, Attempts: 1})
		_ = store.FinishPublished(domain.PublishedOutcome{
			ContentID:      item.ID,
			PostType:       domain.PostTypeNews,
			ExternalPostID: "seeded",
		})
	}
}

func TestRunPublishesEligibleItemsInScoreOrder(t *testing.T) {
	store := newFakeStore()
	platform := &stubPlatform{}
	low := approvedItem(75)
	low.Summary = "Low score item summary."
	high := approvedItem(95)
	high.Summary = "High score item summary."
	store.addItem(low)
	store.addItem(high)
	runner := newTestRunner(store, platform, &stubAlerts{}, newMemCache(), 10, 5)

	summary, err := runner.Run(context.Background(), domain.NewsProfile(70))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Published != 2 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.CapReached {
		t.Fatal("cap must not be reached")
	}
	if len(summary.Items) != 2 {
		t.Fatalf("expected 2 item outcomes, got %d", len(summary.Items))
	}
	if platform.postCount() != 2 {
		t.Fatalf("expected 2 posts, got %d", platform.postCount())
	}
	if want := "High score item summary."; !strings.Contains(platform.posts[0], want) {
		t.Fatalf("expected highest score first, got %q", platform.posts[0])
	}
}

func TestRunRespectsMaxPerRun(t *testing.T) {
	store := newFakeStore()
	platform := &stubPlatform{}
	for i := 0; i < 4; i++ {
		store.addItem(approvedItem(80 + i))
	}
	runner := newTestRunner(store, platform, &stubAlerts{}, newMemCache(), 10, 2)

	summary, err := runner.Run(context.Background(), domain.NewsProfile(70))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Published != 2 {
		t.Fatalf("expected 2 published, got %+v", summary)
	}
}

func TestRunUsesRemainingDailyBudget(t *testing.T) {
	store := newFakeStore()
	platform := &stubPlatform{}
	seedPosted(store, 2)
	for i := 0; i < 3; i++ {
		store.addItem(approvedItem(80 + i))
	}
	runner := newTestRunner(store, platform, &stubAlerts{}, newMemCache(), 3, 5)

	summary, err := runner.Run(context.Background(), domain.NewsProfile(70))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Published != 1 {
		t.Fatalf("expected 1 published within remaining budget, got %+v", summary)
	}
	if summary.CapReached {
		t.Fatal("cap not reached yet")
	}
}

func TestRunCapReachedEmitsZeroAttemptsAndAlertsOnce(t *testing.T) {
	store := newFakeStore()
	platform := &stubPlatform{}
	seedPosted(store, 2)
	store.addItem(approvedItem(90))
	alerts := &stubAlerts{}
	cache := newMemCache()
	runner := newTestRunner(store, platform, alerts, cache, 2, 5)

	summary, err := runner.Run(context.Background(), domain.NewsProfile(70))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.CapReached {
		t.Fatalf("expected capReached, got %+v", summary)
	}
	if len(summary.Items) != 0 {
		t.Fatalf("cap-reached run must emit zero attempts, got %d", len(summary.Items))
	}
	if platform.postCount() != 2 {
		t.Fatalf("no new posts expected, got %d", platform.postCount()-2)
	}
	capAlerts := alerts.byEvent(domain.AlertDailyCapReached)
	if len(capAlerts) != 1 {
		t.Fatalf("expected 1 cap alert, got %d", len(capAlerts))
	}

	// A second run the same day must not alert again.
	if _, err := runner.Run(context.Background(), domain.NewsProfile(70)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(alerts.byEvent(domain.AlertDailyCapReached)) != 1 {
		t.Fatal("cap alert must be deduplicated per day")
	}
}

func TestRunThrottlesBetweenItems(t *testing.T) {
	store := newFakeStore()
	platform := &stubPlatform{}
	for i := 0; i < 3; i++ {
		store.addItem(approvedItem(80 + i))
	}
	exec := newTestExecutor(store, platform, &stubResolver{}, &stubAlerts{}, 2)
	runner := NewRunner(store, store, exec, &stubAlerts{}, newMemCache(), 40*time.Millisecond, 10, 5, zerolog.Nop())

	start := time.Now()
	summary, err := runner.Run(context.Background(), domain.NewsProfile(70))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Published != 3 {
		t.Fatalf("expected 3 published, got %+v", summary)
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("run finished too fast for the throttle: %v", elapsed)
	}
}

func TestRunSkipsDigestBandInNewsProfile(t *testing.T) {
	store := newFakeStore()
	platform := &stubPlatform{}
	mid := approvedItem(55)
	store.addItem(mid)
	runner := newTestRunner(store, platform, &stubAlerts{}, newMemCache(), 10, 5)

	summary, err := runner.Run(context.Background(), domain.NewsProfile(70))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Items) != 0 {
		t.Fatalf("mid-score item must not be selected by the news profile: %+v", summary)
	}
}
