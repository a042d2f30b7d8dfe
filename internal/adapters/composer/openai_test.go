package composer

import (
	"context"
	"strings"
	"testing"

	openai "ev-newswire/internal/infra/openai"
)

type stubChatClient struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Role: "assistant", Content: s.content}}},
	}, nil
}

func TestOpenAIComposeDigest(t *testing.T) {
	stub := &stubChatClient{content: `{"text": "EV roundup: BYD up, NIO expands, CATL ships more cells."}`}
	c := NewOpenAI(stub, "", 0)

	text, err := c.ComposeDigest(context.Background(), []string{"BYD up", "NIO expands", "CATL ships more cells"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(text, "EV roundup") {
		t.Fatalf("unexpected digest text: %q", text)
	}
	if stub.lastReq.ResponseFormat == nil || stub.lastReq.ResponseFormat.Type != openai.ResponseFormatTypeJSONObject {
		t.Fatalf("expected json response format, got %+v", stub.lastReq.ResponseFormat)
	}
	if !strings.Contains(stub.lastReq.Messages[1].Content, "- BYD up") {
		t.Fatalf("headlines missing from prompt: %q", stub.lastReq.Messages[1].Content)
	}
}

func TestOpenAIComposeDigestRejectsMalformedJSON(t *testing.T) {
	stub := &stubChatClient{content: "not json"}
	c := NewOpenAI(stub, "", 0)
	if _, err := c.ComposeDigest(context.Background(), []string{"headline"}); err == nil {
		t.Fatal("expected error for malformed response")
	}
}

func TestOpenAIComposeDigestRejectsEmptyText(t *testing.T) {
	stub := &stubChatClient{content: `{"text": "  "}`}
	c := NewOpenAI(stub, "", 0)
	if _, err := c.ComposeDigest(context.Background(), []string{"headline"}); err == nil {
		t.Fatal("expected error for empty digest text")
	}
}
