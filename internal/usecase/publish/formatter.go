package publish

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ev-newswire/internal/domain"
)

// TextLimit is the platform's hard post length in platform units.
const TextLimit = 280

// urlUnits is the fixed cost the platform charges for any URL, which it
// wraps in its shortener regardless of the literal length.
const urlUnits = 23

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Formatter assembles the final post text: lead, body, optional quote
// line for analytics items, and a fixed footer.
type Formatter struct {
	siteURL  string
	hashtags string
	quotes   domain.QuoteProvider
}

// NewFormatter creates the formatter. The quote provider may be nil.
func NewFormatter(siteURL, hashtags string, quotes domain.QuoteProvider) *Formatter {
	return &Formatter{siteURL: siteURL, hashtags: hashtags, quotes: quotes}
}

// Format renders the post text for an item, truncated to the platform
// limit with the footer kept intact.
func (f *Formatter) Format(ctx context.Context, item domain.ContentItem) string {
	var b strings.Builder
	if lead := leadFor(item); lead != "" {
		b.WriteString(lead)
		b.WriteString(" ")
	}
	b.WriteString(strings.TrimSpace(item.Summary))

	if line := f.quoteLine(ctx, item); line != "" {
		b.WriteString("\n\n")
		b.WriteString(line)
	}

	footer := f.footer()
	return truncateWithFooter(b.String()+footer, footer)
}

func (f *Formatter) footer() string {
	return "\n\n" + f.siteURL + "\n" + f.hashtags
}

// quoteLine builds the ticker line for analytics posts. A quote failure
// degrades to no line: quotes decorate, they never block.
func (f *Formatter) quoteLine(ctx context.Context, item domain.ContentItem) string {
	if item.Tier != domain.TierAnalytics || len(item.Tickers) == 0 || f.quotes == nil {
		return ""
	}
	quotes, err := f.quotes.Quotes(ctx, item.Tickers)
	if err != nil || len(quotes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(quotes))
	for _, q := range quotes {
		parts = append(parts, fmt.Sprintf("$%s %.2f (%+.2f%%)", q.Symbol, q.Price, q.ChangePct))
	}
	return strings.Join(parts, " | ")
}

func leadFor(item domain.ContentItem) string {
	if len(item.Categories) == 0 {
		return ""
	}
	category := strings.TrimSpace(item.Categories[0])
	if category == "" {
		return ""
	}
	return "[" + capitalize(category) + "]"
}

func capitalize(s string) string {
	runes := []rune(s)
	return strings.ToUpper(string(runes[:1])) + string(runes[1:])
}

// unitCount measures text in platform units: every URL costs urlUnits,
// every other rune costs one.
func unitCount(s string) int {
	units := 0
	rest := s
	for {
		loc := urlPattern.FindStringIndex(rest)
		if loc == nil {
			units += len([]rune(rest))
			return units
		}
		units += len([]rune(rest[:loc[0]])) + urlUnits
		rest = rest[loc[1]:]
	}
}

// truncateWithFooter cuts text to the platform limit while keeping the
// footer intact. When the footer alone exceeds the limit, or it cannot
// be located at all, the whole text is flat-truncated.
func truncateWithFooter(text, footer string) string {
	if unitCount(text) <= TextLimit {
		return text
	}
	idx := strings.LastIndex(text, footer)
	if idx < 0 || footer == "" {
		return truncateRunes(text, TextLimit-3) + "..."
	}
	headBudget := TextLimit - unitCount(footer) - 3
	if headBudget <= 0 {
		return truncateRunes(text, TextLimit)
	}
	head := truncateRunes(text[:idx], headBudget)
	return head + "..." + footer
}

// truncateRunes cuts a string to at most n runes without splitting one.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
