package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/news-pipeline/internal/bus"
	"github.com/mohamedkhairy/news-pipeline/internal/llm"
	"github.com/mohamedkhairy/news-pipeline/internal/models"
	"github.com/mohamedkhairy/news-pipeline/internal/storage"
)

func publishArticle(t *testing.T, b *bus.MockBus, code, headline, url string) {
	t.Helper()
	a := models.Article{
		StockCode:   code,
		StockName:   "테스트종목",
		Headline:    headline,
		Press:       "테스트신문",
		ArticleURL:  url,
		PublishedAt: time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC),
		Source:      "NAVER",
	}
	require.NoError(t, b.Publish(context.Background(), a.StreamValues()))
}

func TestAnalyzerScoresNewEntries(t *testing.T) {
	b := bus.NewMockBus(0)
	provider := &llm.MockLLM{Response: map[string]interface{}{
		"score":  float64(85),
		"reason": "호재성 발표로 긍정적",
	}}
	store := storage.NewMockSentimentStore()
	a := New(b, provider, store, nil)

	publishArticle(t, b, "005930", "삼성전자 신제품 발표", "https://n.example.com/1")
	publishArticle(t, b, "000660", "SK하이닉스 실적 부진", "https://n.example.com/2")

	n, err := a.RunOnce(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, provider.Calls)
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, 0, b.PendingCount(bus.GroupAnalyzer, bus.ConsumerAnalyzer))

	r, ok := store.Get("https://n.example.com/1")
	require.True(t, ok)
	assert.Equal(t, 85, r.Score)
	assert.Equal(t, "호재성 발표로 긍정적", r.Reason)
	assert.Equal(t, "005930", r.StockCode)
	assert.Equal(t, "ANALYZER", r.Source)
	assert.False(t, r.Emergency)
}

func TestAnalyzerPromptCarriesHeadline(t *testing.T) {
	b := bus.NewMockBus(0)
	provider := &llm.MockLLM{Response: map[string]interface{}{"score": float64(50), "reason": "중립"}}
	a := New(b, provider, storage.NewMockSentimentStore(), nil)

	publishArticle(t, b, "005930", "삼성전자 신제품 발표", "https://n.example.com/1")

	_, err := a.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, provider.Prompts, 1)
	assert.True(t, strings.Contains(provider.Prompts[0], "005930"))
	assert.True(t, strings.Contains(provider.Prompts[0], "삼성전자 신제품 발표"))
}

func TestAnalyzerHonorsBudget(t *testing.T) {
	b := bus.NewMockBus(0)
	provider := &llm.MockLLM{Response: map[string]interface{}{"score": float64(60), "reason": "약간 긍정"}}
	store := storage.NewMockSentimentStore()
	a := New(b, provider, store, nil)

	for i := 0; i < 5; i++ {
		publishArticle(t, b, "005930", fmt.Sprintf("뉴스 %d", i), fmt.Sprintf("https://n.example.com/%d", i))
	}

	n, err := a.RunOnce(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, store.Count())

	// Unconsumed entries stay on the stream for the next cycle.
	n, err = a.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 5, store.Count())
}

func TestAnalyzerSkipsAlreadyStoredURL(t *testing.T) {
	b := bus.NewMockBus(0)
	provider := &llm.MockLLM{Response: map[string]interface{}{"score": float64(70), "reason": "긍정"}}
	store := storage.NewMockSentimentStore()
	require.NoError(t, store.Save(context.Background(), models.SentimentResult{
		StockCode:  "005930",
		Headline:   "이미 분석된 뉴스",
		Score:      70,
		ArticleURL: "https://n.example.com/dup",
		Source:     "ANALYZER",
	}))
	a := New(b, provider, store, nil)

	publishArticle(t, b, "005930", "이미 분석된 뉴스", "https://n.example.com/dup")

	n, err := a.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "entry is still consumed and acked")
	assert.Equal(t, 0, provider.Calls, "no LLM spend on an already-stored URL")
	assert.Equal(t, 0, b.PendingCount(bus.GroupAnalyzer, bus.ConsumerAnalyzer))
}

func TestAnalyzerNeutralFallbackOnLLMOutage(t *testing.T) {
	b := bus.NewMockBus(0)
	provider := &llm.MockLLM{Err: errors.New("connection refused")}
	store := storage.NewMockSentimentStore()
	a := New(b, provider, store, nil)

	publishArticle(t, b, "005930", "삼성전자 급등", "https://n.example.com/outage")

	n, err := a.RunOnce(context.Background(), 10)
	require.NoError(t, err, "provider outage must not fail the run")
	assert.Equal(t, 1, n)

	r, ok := store.Get("https://n.example.com/outage")
	require.True(t, ok, "neutral result is still persisted")
	assert.Equal(t, NeutralScore, r.Score)
	assert.Contains(t, r.Reason, "분석 불가")
	assert.Equal(t, 0, b.PendingCount(bus.GroupAnalyzer, bus.ConsumerAnalyzer))
}

func TestAnalyzerNeutralFallbackOnMalformedOutput(t *testing.T) {
	b := bus.NewMockBus(0)
	provider := &llm.MockLLM{Response: map[string]interface{}{"verdict": "good"}}
	store := storage.NewMockSentimentStore()
	a := New(b, provider, store, nil)

	publishArticle(t, b, "005930", "삼성전자 보합", "https://n.example.com/bad")

	_, err := a.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	r, ok := store.Get("https://n.example.com/bad")
	require.True(t, ok)
	assert.Equal(t, NeutralScore, r.Score)
}

func TestAnalyzerClampsScore(t *testing.T) {
	b := bus.NewMockBus(0)
	provider := &llm.MockLLM{Response: map[string]interface{}{"score": float64(150), "reason": "과열"}}
	store := storage.NewMockSentimentStore()
	a := New(b, provider, store, nil)

	publishArticle(t, b, "005930", "급등 뉴스", "https://n.example.com/clamp")

	_, err := a.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	r, _ := store.Get("https://n.example.com/clamp")
	assert.Equal(t, 100, r.Score)
}

func TestAnalyzerFlagsEmergencyHeadlines(t *testing.T) {
	b := bus.NewMockBus(0)
	provider := &llm.MockLLM{Response: map[string]interface{}{"score": float64(10), "reason": "전쟁 우려"}}
	store := storage.NewMockSentimentStore()
	a := New(b, provider, store, []string{"속보", "전쟁"})

	publishArticle(t, b, "005930", "속보: 긴장 고조", "https://n.example.com/e1")
	publishArticle(t, b, "005930", "평범한 실적 뉴스", "https://n.example.com/e2")

	_, err := a.RunOnce(context.Background(), 10)
	require.NoError(t, err)

	r1, _ := store.Get("https://n.example.com/e1")
	r2, _ := store.Get("https://n.example.com/e2")
	assert.True(t, r1.Emergency)
	assert.False(t, r2.Emergency)
}

func TestAnalyzerDrainsPendingAfterCrash(t *testing.T) {
	b := bus.NewMockBus(0)
	ctx := context.Background()
	require.NoError(t, b.EnsureGroup(ctx, bus.GroupAnalyzer))

	publishArticle(t, b, "005930", "크래시 전 뉴스", "https://n.example.com/p1")
	publishArticle(t, b, "005930", "크래시 후 뉴스", "https://n.example.com/p2")

	// Simulate a crash: the first entry was delivered but never acked.
	entries, err := b.ReadNew(ctx, bus.GroupAnalyzer, bus.ConsumerAnalyzer, 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 1, b.PendingCount(bus.GroupAnalyzer, bus.ConsumerAnalyzer))

	provider := &llm.MockLLM{Response: map[string]interface{}{"score": float64(55), "reason": "중립 부근"}}
	store := storage.NewMockSentimentStore()
	a := New(b, provider, store, nil)

	n, err := a.RunOnce(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "pending entry replayed plus the new one")
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, 0, b.PendingCount(bus.GroupAnalyzer, bus.ConsumerAnalyzer))
}

func TestAnalyzerAcksUnparseableEntry(t *testing.T) {
	b := bus.NewMockBus(0)
	require.NoError(t, b.Publish(context.Background(), map[string]interface{}{"garbage": "x"}))

	provider := &llm.MockLLM{Response: map[string]interface{}{"score": float64(50), "reason": "중립"}}
	store := storage.NewMockSentimentStore()
	a := New(b, provider, store, nil)

	n, err := a.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, provider.Calls)
	assert.Equal(t, 0, store.Count())
	assert.Equal(t, 0, b.PendingCount(bus.GroupAnalyzer, bus.ConsumerAnalyzer), "poison entries are acked, not retried forever")
}

func TestAnalyzerSaveFailureStillAcks(t *testing.T) {
	b := bus.NewMockBus(0)
	provider := &llm.MockLLM{Response: map[string]interface{}{"score": float64(40), "reason": "약세"}}
	store := storage.NewMockSentimentStore()
	store.SaveErr = errors.New("db down")
	a := New(b, provider, store, nil)

	publishArticle(t, b, "005930", "저장 실패 뉴스", "https://n.example.com/s1")

	n, err := a.RunOnce(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, b.PendingCount(bus.GroupAnalyzer, bus.ConsumerAnalyzer))
}
