package composer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SimpleComposer builds the digest body without an LLM.
type SimpleComposer struct{}

// NewSimple creates the deterministic composer.
func NewSimple() *SimpleComposer {
	return &SimpleComposer{}
}

// ComposeDigest joins the headlines into a bulleted roundup.
func (s *SimpleComposer) ComposeDigest(_ context.Context, headlines []string) (string, error) {
	filtered := filterValues(headlines)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no headlines to compose")
	}
	var b strings.Builder
	b.WriteString("Today in EV news:")
	for _, h := range filtered {
		b.WriteString("\n• ")
		b.WriteString(truncate(h, 70))
	}
	return b.String(), nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
