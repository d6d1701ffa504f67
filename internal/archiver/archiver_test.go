package archiver

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
	"github.com/mohamedkhairy/news-pipeline/internal/models"
	"github.com/mohamedkhairy/news-pipeline/internal/vector"
)

func publishArticle(t *testing.T, b *bus.MockBus, code, headline, url string) {
	t.Helper()
	a := models.Article{
		StockCode:   code,
		StockName:   "테스트종목",
		Headline:    headline,
		ArticleURL:  url,
		PublishedAt: time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC),
		Source:      "NAVER",
	}
	require.NoError(t, b.Publish(context.Background(), a.StreamValues()))
}

func readySink(sink vector.Sink) SinkFactory {
	return func(ctx context.Context) (vector.Sink, error) { return sink, nil }
}

func TestArchiverWritesDocuments(t *testing.T) {
	b := bus.NewMockBus(0)
	sink := &vector.MockSink{}
	a := New(b, readySink(sink), NewChunkSplitter(500, 50), 20)

	publishArticle(t, b, "005930", "삼성전자 신제품 발표", "https://n.example.com/1")

	n, err := a.RunOnce(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, sink.Count())

	doc := sink.Docs[0]
	assert.Equal(t, "[005930] 삼성전자 신제품 발표", doc.Content)
	assert.Equal(t, "005930", doc.Metadata["stock_code"])
	assert.Equal(t, "https://n.example.com/1", doc.Metadata["source_url"])
	assert.Equal(t, "NAVER", doc.Metadata["source"])
	assert.Equal(t, 0, doc.Metadata["chunk_index"])
	assert.Equal(t, 0, b.PendingCount(bus.GroupArchiver, bus.ConsumerArchiver))
}

func TestArchiverSinkUnavailableConsumesNothing(t *testing.T) {
	b := bus.NewMockBus(0)
	factoryCalls := 0
	factory := func(ctx context.Context) (vector.Sink, error) {
		factoryCalls++
		return nil, errors.New("embedding server down")
	}
	a := New(b, factory, NewChunkSplitter(500, 50), 20)

	publishArticle(t, b, "005930", "보류되어야 할 뉴스", "https://n.example.com/1")

	n, err := a.RunOnce(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, factoryCalls)

	// Once the sink comes up, the entry is still on the stream.
	sink := &vector.MockSink{}
	a2 := New(b, readySink(sink), NewChunkSplitter(500, 50), 20)
	n, err = a2.RunOnce(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, sink.Count())
}

func TestArchiverSinkInitializedOnce(t *testing.T) {
	b := bus.NewMockBus(0)
	factoryCalls := 0
	sink := &vector.MockSink{}
	factory := func(ctx context.Context) (vector.Sink, error) {
		factoryCalls++
		return sink, nil
	}
	a := New(b, factory, NewChunkSplitter(500, 50), 20)

	for i := 0; i < 3; i++ {
		_, err := a.RunOnce(context.Background(), 1000)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, factoryCalls)
}

func TestArchiverIndependentOfAnalyzerGroup(t *testing.T) {
	b := bus.NewMockBus(0)
	ctx := context.Background()

	publishArticle(t, b, "005930", "양쪽 그룹이 읽는 뉴스", "https://n.example.com/1")

	// Another group consumes the entry first.
	require.NoError(t, b.EnsureGroup(ctx, bus.GroupAnalyzer))
	entries, err := b.ReadNew(ctx, bus.GroupAnalyzer, bus.ConsumerAnalyzer, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, b.Ack(ctx, bus.GroupAnalyzer, entries[0].ID))

	sink := &vector.MockSink{}
	a := New(b, readySink(sink), NewChunkSplitter(500, 50), 20)
	n, err := a.RunOnce(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "archiver cursor is independent of the analyzer's")
}

func TestArchiverUpsertFailureStillAcks(t *testing.T) {
	b := bus.NewMockBus(0)
	sink := &vector.MockSink{Err: errors.New("qdrant down")}
	a := New(b, readySink(sink), NewChunkSplitter(500, 50), 20)

	publishArticle(t, b, "005930", "업서트 실패 뉴스", "https://n.example.com/1")

	n, err := a.RunOnce(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, b.PendingCount(bus.GroupArchiver, bus.ConsumerArchiver))
}

func TestArchiverHonorsBudget(t *testing.T) {
	b := bus.NewMockBus(0)
	sink := &vector.MockSink{}
	a := New(b, readySink(sink), NewChunkSplitter(500, 50), 20)

	for i := 0; i < 5; i++ {
		publishArticle(t, b, "005930", fmt.Sprintf("뉴스 %d", i), fmt.Sprintf("https://n.example.com/%d", i))
	}

	n, err := a.RunOnce(context.Background(), 2)
	require.NoError(t, err)
	// Budget is checked per batch, so a full batch may overshoot; here the
	// batch covers everything at once.
	assert.GreaterOrEqual(t, n, 2)
	assert.Equal(t, n, sink.Count())
}

func TestChunkSplitter(t *testing.T) {
	s := NewChunkSplitter(10, 3)

	assert.Nil(t, s.Split(""))
	assert.Equal(t, []string{"짧은 텍스트"}, s.Split("짧은 텍스트"))

	long := strings.Repeat("가", 25)
	chunks := s.Split(long)
	require.Len(t, chunks, 4)
	assert.Equal(t, 10, len([]rune(chunks[0])))
	assert.Equal(t, 10, len([]rune(chunks[1])))
	assert.Equal(t, 4, len([]rune(chunks[3])))
	// Consecutive chunks share the overlap.
	assert.Equal(t, string([]rune(chunks[0])[7:]), string([]rune(chunks[1])[:3]))
}

func TestChunkSplitterClampsOverlap(t *testing.T) {
	s := NewChunkSplitter(5, 9)
	assert.Equal(t, 0, s.Overlap)

	s = NewChunkSplitter(0, 0)
	assert.Equal(t, 500, s.Size)
}
