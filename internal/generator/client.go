package generator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

// LLMClient drafts question batches from a system and a user prompt.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error)
}

// LLMResponse holds the raw response content and token usage.
type LLMResponse struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// NewClient returns the mock client when mock is set, otherwise an Anthropic
// API client for model.
func NewClient(apiKey, model string, mock bool) LLMClient {
	if mock {
		log.Println("[generator] using mock question data")
		return NewMockClient()
	}
	log.Printf("[generator] using Anthropic API: %s", model)
	return NewAPIClient(apiKey, model)
}

// ── APIClient ───────────────────────────────────────────

const (
	maxTokens   = 4096
	apiAttempts = 2
)

type APIClient struct {
	client *anthropic.Client
	model  string
}

func NewAPIClient(apiKey, model string) *APIClient {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &APIClient{client: &client, model: model}
}

func (c *APIClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: param.NewOpt(0.7),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return &LLMResponse{
		Content:      text,
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (c *APIClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < apiAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			log.Printf("[generator] retrying Anthropic API call in %v (attempt %d)", wait, attempt+1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		log.Printf("[generator] Anthropic API attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("anthropic API failed after retries: %w", lastErr)
}

// ── MockClient ──────────────────────────────────────────

// mockLexicon is a small Zazaki–German word list for local development.
var mockLexicon = []struct{ word, meaning string }{
	{"av", "Wasser"},
	{"nan", "Brot"},
	{"kitab", "Buch"},
	{"keye", "Haus"},
	{"roj", "Sonne"},
	{"aşme", "Mond"},
	{"dar", "Baum"},
	{"kutık", "Hund"},
	{"pısınge", "Katze"},
	{"vore", "Schnee"},
}

type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	return &LLMResponse{
		Content:      buildMockJSON(),
		PromptTokens: 400,
		OutputTokens: 900,
	}, nil
}

func buildMockJSON() string {
	var items []string
	for i, entry := range mockLexicon {
		options := []string{entry.meaning}
		for j := 1; len(options) < optionCount; j++ {
			options = append(options, mockLexicon[(i+j*3)%len(mockLexicon)].meaning)
		}
		// Rotate so the correct answer is not always first.
		shift := i % optionCount
		options = append(options[shift:], options[:shift]...)

		items = append(items, fmt.Sprintf(
			`{"word":%q,"prompt":"Was bedeutet „%s“ auf Deutsch?","options":["%s"],"correct_answer":%q}`,
			entry.word, entry.word, strings.Join(options, `","`), entry.meaning))
	}
	return `{"questions":[` + strings.Join(items, ",") + `]}`
}
