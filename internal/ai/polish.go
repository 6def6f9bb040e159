// Package ai post-processes transcripts through OpenAI. Optional: the
// pipeline settles and bills exactly the same whether polish runs or not.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// PolishResult is the cleaned transcript returned by the model.
type PolishResult struct {
	CleanedText string `json:"cleaned_text"`
	Summary     string `json:"summary"`
}

// Polisher cleans raw transcripts: punctuation, casing, obvious recognition
// errors. Disabled when no API key is configured.
type Polisher struct {
	client *openai.Client
}

// NewPolisher returns a polisher, or nil when apiKey is empty.
func NewPolisher(apiKey string) *Polisher {
	if apiKey == "" {
		return nil
	}
	return &Polisher{client: openai.NewClient(apiKey)}
}

const polishSystemPrompt = `You clean up raw speech-to-text transcripts. Fix punctuation, casing, and obvious recognition errors. Never add content the speaker did not say, never translate, never summarize away detail. Return JSON: {"cleaned_text": "...", "summary": "one sentence"}`

// Polish cleans a transcript. On any failure the original transcript is
// returned unchanged; polish must never lose a paid-for result.
func (p *Polisher) Polish(ctx context.Context, transcript string) (string, error) {
	if p == nil || strings.TrimSpace(transcript) == "" {
		return transcript, nil
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT4oMini,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: polishSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		log.Printf("[Polish] OpenAI API error: %v", err)
		return transcript, fmt.Errorf("transcript polish failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return transcript, fmt.Errorf("transcript polish returned no choices")
	}

	var result PolishResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		log.Printf("[Polish] Failed to parse response: %v", err)
		return transcript, fmt.Errorf("failed to parse polish response: %w", err)
	}
	if result.CleanedText == "" {
		return transcript, nil
	}
	return result.CleanedText, nil
}
