package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mohamedkhairy/news-pipeline/internal/config"
)

func init() {
	Register("openai", func(cfg config.LLMConfig) (SentimentLLM, error) {
		return newOpenAIProvider(cfg)
	})
}

// openAIProvider speaks the OpenAI-compatible chat completions protocol,
// which is what the local vLLM deployment serves.
type openAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func newOpenAIProvider(cfg config.LLMConfig) (*openAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: openai provider requires LLM_BASE_URL")
	}
	return &openAIProvider{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *openAIProvider) GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal schema: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a JSON-only assistant. Respond with a single JSON object matching this schema: " + string(schemaJSON)},
			{Role: "user", Content: prompt},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("llm: chat completion status %d: %s", resp.StatusCode, snippet)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("llm: empty choices")
	}

	return ParseJSONObject(cr.Choices[0].Message.Content)
}

// ParseJSONObject extracts a JSON object from model output, tolerating
// markdown code fences and surrounding prose.
func ParseJSONObject(text string) (map[string]interface{}, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("llm: no JSON object in output")
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("llm: malformed JSON output: %w", err)
	}
	return out, nil
}

var _ SentimentLLM = (*openAIProvider)(nil)
