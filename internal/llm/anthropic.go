package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mohamedkhairy/news-pipeline/internal/config"
)

func init() {
	Register("anthropic", func(cfg config.LLMConfig) (SentimentLLM, error) {
		return newAnthropicProvider(cfg)
	})
}

const defaultClaudeModel = "claude-3-5-haiku-latest"

type anthropicProvider struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

func newAnthropicProvider(cfg config.LLMConfig) (*anthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic provider requires LLM_API_KEY")
	}
	model := cfg.Model
	if model == "" {
		model = defaultClaudeModel
	}
	return &anthropicProvider{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		timeout: cfg.Timeout,
	}, nil
}

func (p *anthropicProvider) GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal schema: %w", err)
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: "Respond with a single JSON object matching this schema, nothing else: " + string(schemaJSON)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: anthropic call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("llm: empty anthropic response")
	}

	return ParseJSONObject(text.String())
}

var _ SentimentLLM = (*anthropicProvider)(nil)
