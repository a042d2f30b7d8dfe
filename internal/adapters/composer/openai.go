package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "ev-newswire/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI writes digest bodies through Chat Completions.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewOpenAI creates the LLM composer.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

type digestPayload struct {
	Text string `json:"text"`
}

// ComposeDigest asks the model for a short roundup post of the headlines.
func (o *OpenAI) ComposeDigest(ctx context.Context, headlines []string) (string, error) {
	filtered := filterValues(headlines)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no headlines to compose")
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var list strings.Builder
	for _, h := range filtered {
		list.WriteString("- ")
		list.WriteString(clipRunes(h, 200))
		list.WriteString("\n")
	}
	userPrompt := fmt.Sprintf(`Write a short X post rounding up today's EV industry headlines.
Return JSON of the form {"text": "..."} with no commentary.
Keep it under 200 characters, neutral tone, no hashtags, no links.
Headlines:
%s`, list.String())

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.3,
		MaxTokens:   200,
		Messages: []openai.ChatMessage{
			{
				Role:    openai.RoleSystem,
				Content: "You are a news editor. Keep the facts from the headlines and invent nothing new.",
			},
			{
				Role:    openai.RoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty response")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var parsed digestPayload
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", fmt.Errorf("unmarshal llm response: %w", err)
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", fmt.Errorf("llm returned empty digest text")
	}
	return text, nil
}

func filterValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
