// Package llm provides the sentiment provider abstraction. Providers are
// registered in a plain table keyed by name and constructed lazily on first
// use, so provider packages never import each other.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mohamedkhairy/news-pipeline/internal/config"
)

// SentimentLLM generates structured JSON completions. Implementations must
// honor ctx deadlines; callers bound each invocation with the configured
// timeout.
type SentimentLLM interface {
	GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error)
}

// Factory builds a provider from configuration.
type Factory func(cfg config.LLMConfig) (SentimentLLM, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a provider factory under a name. Called from provider init
// functions; duplicate registration panics, that is a programming error.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("llm: duplicate provider registration %q", name))
	}
	registry[name] = f
}

// New constructs the configured provider.
func New(cfg config.LLMConfig) (SentimentLLM, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q (have %v)", cfg.Provider, providerNames())
	}
	return factory(cfg)
}

func providerNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
