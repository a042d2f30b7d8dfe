package composer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSimpleComposeDigest(t *testing.T) {
	c := NewSimple()
	text, err := c.ComposeDigest(context.Background(), []string{
		"BYD deliveries up 30% YoY in August",
		"  ",
		"NIO opens 50th battery swap station in Europe",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(text, "Today in EV news:") {
		t.Fatalf("unexpected prefix: %q", text)
	}
	if strings.Count(text, "•") != 2 {
		t.Fatalf("expected 2 bullets, got %q", text)
	}
}

func TestSimpleComposeDigestTruncatesLongHeadlines(t *testing.T) {
	c := NewSimple()
	text, err := c.ComposeDigest(context.Background(), []string{strings.Repeat("x", 200)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(text, "…") {
		t.Fatalf("expected truncation marker in %q", text)
	}
}

func TestSimpleComposeDigestEmpty(t *testing.T) {
	c := NewSimple()
	if _, err := c.ComposeDigest(context.Background(), []string{" ", ""}); err == nil {
		t.Fatal("expected error for empty headlines")
	}
}

type failingComposer struct{}

func (failingComposer) ComposeDigest(context.Context, []string) (string, error) {
	return "", errors.New("llm unavailable")
}

func TestFallbackDegradesOnError(t *testing.T) {
	c := NewFallback(failingComposer{}, NewSimple())
	text, err := c.ComposeDigest(context.Background(), []string{"Tesla cuts Model Y price in China"})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if !strings.Contains(text, "Tesla cuts Model Y price in China") {
		t.Fatalf("fallback lost the headline: %q", text)
	}
}
