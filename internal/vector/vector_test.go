package vector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/news-pipeline/internal/config"
)

func embedServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		// Deliberately out of order to exercise index-based reordering.
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, dim)
			v[0] = float32(i)
			data[len(req.Input)-1-i] = item{Index: i, Embedding: v}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
	}))
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	srv := embedServer(t, 3)
	defer srv.Close()

	e := NewOpenAIEmbedder(config.VectorConfig{
		EmbedURL:    srv.URL + "/v1",
		EmbedModel:  "test-model",
		HTTPTimeout: 5 * time.Second,
	})

	vectors, err := e.Embed(context.Background(), []string{"첫번째", "두번째", "세번째"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		require.Len(t, v, 3)
		assert.Equal(t, float32(i), v[0])
	}
}

func TestOpenAIEmbedderEmptyInput(t *testing.T) {
	e := NewOpenAIEmbedder(config.VectorConfig{EmbedURL: "http://unused", HTTPTimeout: time.Second})
	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestOpenAIEmbedderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(config.VectorConfig{EmbedURL: srv.URL + "/v1", HTTPTimeout: time.Second})
	_, err := e.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestQdrantSinkUpsertsDeterministicPoints(t *testing.T) {
	var upserts []map[string]interface{}
	qdrant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/test_collection":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/test_collection/points":
			var body struct {
				Points []map[string]interface{} `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			upserts = append(upserts, body.Points...)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer qdrant.Close()

	cfg := config.VectorConfig{
		QdrantURL:   qdrant.URL,
		Collection:  "test_collection",
		HTTPTimeout: 5 * time.Second,
	}
	embedder := &MockEmbedder{Dim: 8}
	sink, err := NewQdrantSink(context.Background(), cfg, embedder)
	require.NoError(t, err)

	doc := Document{
		Content: "[005930] 삼성전자 신제품 발표",
		Metadata: map[string]interface{}{
			"stock_code":  "005930",
			"source_url":  "https://n.example.com/1",
			"chunk_index": 0,
		},
	}
	require.NoError(t, sink.Add(context.Background(), []Document{doc}))
	require.NoError(t, sink.Add(context.Background(), []Document{doc}))

	require.Len(t, upserts, 2)
	assert.Equal(t, upserts[0]["id"], upserts[1]["id"], "same chunk maps to the same point")

	payload := upserts[0]["payload"].(map[string]interface{})
	assert.Equal(t, "005930", payload["stock_code"])
	assert.Equal(t, doc.Content, payload["content"])
}

func TestQdrantSinkToleratesExistingCollection(t *testing.T) {
	qdrant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer qdrant.Close()

	cfg := config.VectorConfig{QdrantURL: qdrant.URL, Collection: "c", HTTPTimeout: time.Second}
	_, err := NewQdrantSink(context.Background(), cfg, &MockEmbedder{Dim: 4})
	require.NoError(t, err)
}

func TestQdrantSinkEmbedderDown(t *testing.T) {
	cfg := config.VectorConfig{QdrantURL: "http://unused", Collection: "c", HTTPTimeout: time.Second}
	_, err := NewQdrantSink(context.Background(), cfg, &MockEmbedder{Err: errors.New("connection refused")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestPointIDFallsBackToContent(t *testing.T) {
	a := PointID(Document{Content: "같은 내용"})
	b := PointID(Document{Content: "같은 내용"})
	c := PointID(Document{Content: "다른 내용"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
