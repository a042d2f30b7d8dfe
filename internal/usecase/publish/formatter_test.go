package publish

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ev-newswire/internal/domain"
)

type stubQuotes struct {
	quotes []domain.Quote
	err    error
	calls  int
}

func (q *stubQuotes) Quotes(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	q.calls++
	return q.quotes, q.err
}

func TestFormatShortTextUnchanged(t *testing.T) {
	f := testFormatter()
	item := approvedItem(80)

	got := f.Format(context.Background(), item)
	want := "[Sales] " + item.Summary + "\n\nhttps://evnewswire.app\n#EV #ChinaEV"
	if got != want {
		t.Fatalf("unexpected text:\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatWithoutCategorySkipsLead(t *testing.T) {
	f := testFormatter()
	item := approvedItem(80)
	item.Categories = nil

	got := f.Format(context.Background(), item)
	if strings.HasPrefix(got, "[") {
		t.Fatalf("unexpected lead: %q", got)
	}
}

func TestFormatTruncationKeepsFooter(t *testing.T) {
	f := testFormatter()
	item := approvedItem(80)
	item.Summary = strings.Repeat("BYD keeps growing. ", 40)

	got := f.Format(context.Background(), item)
	footer := "\n\nhttps://evnewswire.app\n#EV #ChinaEV"
	if !strings.HasSuffix(got, footer) {
		t.Fatalf("footer not preserved: %q", got)
	}
	if units := unitCount(got); units > TextLimit {
		t.Fatalf("text over limit: %d units", units)
	}
	if !strings.Contains(got, "...") {
		t.Fatalf("expected ellipsis marker: %q", got)
	}
}

func TestFormatURLsCostFixedUnits(t *testing.T) {
	f := testFormatter()
	item := approvedItem(80)
	// 180 literal runes of URL plus 80 words: far over 280 runes but
	// well under 280 units once the URL collapses to its fixed cost.
	item.Summary = "Details at https://example.com/" + strings.Repeat("x", 150) + " today." + strings.Repeat(" more", 10)

	got := f.Format(context.Background(), item)
	if strings.Contains(got, "...") {
		t.Fatalf("text should fit without truncation: %q", got)
	}
	if !strings.HasSuffix(got, "#EV #ChinaEV") {
		t.Fatalf("footer lost: %q", got)
	}
}

func TestUnitCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 5},
		{"https://example.com/very/long/path/that/goes/on/and/on", 23},
		{"see https://example.com now", 4 + 23 + 4},
		{"héllo", 5},
	}
	for _, tc := range cases {
		if got := unitCount(tc.in); got != tc.want {
			t.Fatalf("unitCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestTruncateWithFooterMissingFooter(t *testing.T) {
	got := truncateWithFooter(strings.Repeat("a", 400), "\n\nZZZ")
	if len([]rune(got)) != TextLimit {
		t.Fatalf("unexpected length: %d", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected flat truncation marker: %q", got)
	}
}

func TestTruncateWithOversizedFooter(t *testing.T) {
	footer := "\n\n" + strings.Repeat("#tag ", 80)
	got := truncateWithFooter("short head"+footer, footer)
	if len([]rune(got)) != TextLimit {
		t.Fatalf("unexpected length: %d", len([]rune(got)))
	}
}

func TestFormatAnalyticsAddsQuoteLine(t *testing.T) {
	quotes := &stubQuotes{quotes: []domain.Quote{
		{Symbol: "TSLA", Price: 242.18, ChangePct: -1.32},
		{Symbol: "NIO", Price: 4.87, ChangePct: 2.1},
	}}
	f := NewFormatter("https://evnewswire.app", "#EV", quotes)
	item := approvedItem(80)
	item.Tier = domain.TierAnalytics
	item.Tickers = []string{"TSLA", "NIO"}

	got := f.Format(context.Background(), item)
	if !strings.Contains(got, "$TSLA 242.18 (-1.32%)") {
		t.Fatalf("missing TSLA quote: %q", got)
	}
	if !strings.Contains(got, "$NIO 4.87 (+2.10%)") {
		t.Fatalf("missing NIO quote: %q", got)
	}
}

func TestFormatQuoteFailureOmitsLine(t *testing.T) {
	quotes := &stubQuotes{err: errors.New("provider down")}
	f := NewFormatter("https://evnewswire.app", "#EV", quotes)
	item := approvedItem(80)
	item.Tier = domain.TierAnalytics
	item.Tickers = []string{"TSLA"}

	got := f.Format(context.Background(), item)
	if strings.Contains(got, "$TSLA") {
		t.Fatalf("quote line must be omitted on failure: %q", got)
	}
}

func TestFormatNewsNeverFetchesQuotes(t *testing.T) {
	quotes := &stubQuotes{}
	f := NewFormatter("https://evnewswire.app", "#EV", quotes)
	item := approvedItem(80)
	item.Tickers = []string{"TSLA"}

	f.Format(context.Background(), item)
	if quotes.calls != 0 {
		t.Fatalf("news item must not fetch quotes, got %d calls", quotes.calls)
	}
}
