package llm

import "context"

// MockLLM is a canned SentimentLLM for tests.
type MockLLM struct {
	Response map[string]interface{}
	Err      error
	Calls    int
	Prompts  []string
}

func (m *MockLLM) GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error) {
	m.Calls++
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}
