// Package vector embeds news documents and upserts them into Qdrant for
// retrieval. Point IDs are derived deterministically from the source URL
// and chunk index, so re-archiving the same article overwrites rather than
// duplicates. A retried batch that was partially written before a failure
// converges on the same points for the same reason.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/news-pipeline/internal/config"
)

var (
	pointsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vector_points_upserted_total",
		Help: "Points written to the vector store",
	})

	embedFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vector_embed_failures_total",
		Help: "Failed embedding server calls",
	})
)

// Document is one chunk of archivable text plus its payload metadata.
// Metadata must carry "source_url" and "chunk_index" for stable point IDs.
type Document struct {
	Content  string
	Metadata map[string]interface{}
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Sink persists documents into a vector store.
type Sink interface {
	Add(ctx context.Context, docs []Document) error
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint, as served
// by local inference servers.
type OpenAIEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAIEmbedder creates an embedder against cfg.EmbedURL.
func NewOpenAIEmbedder(cfg config.VectorConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL: cfg.EmbedURL,
		model:   cfg.EmbedModel,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		embedFailures.Inc()
		return nil, fmt.Errorf("embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		embedFailures.Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedder: status %d: %s", resp.StatusCode, snippet)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		embedFailures.Inc()
		return nil, fmt.Errorf("embedder: decode response: %w", err)
	}
	if len(out.Data) != len(texts) {
		embedFailures.Inc()
		return nil, fmt.Errorf("embedder: got %d embeddings for %d inputs", len(out.Data), len(texts))
	}

	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// QdrantSink upserts documents into a Qdrant collection over its HTTP API.
type QdrantSink struct {
	baseURL    string
	collection string
	embedder   Embedder
	client     *http.Client
}

// NewQdrantSink probes the embedder for the vector dimension and ensures
// the collection exists. The probe doubles as the availability check: when
// the embedding server is down this fails and the caller can retry later.
func NewQdrantSink(ctx context.Context, cfg config.VectorConfig, embedder Embedder) (*QdrantSink, error) {
	probe, err := embedder.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return nil, fmt.Errorf("vector: embedder unavailable: %w", err)
	}
	if len(probe) == 0 || len(probe[0]) == 0 {
		return nil, fmt.Errorf("vector: embedder returned an empty probe vector")
	}

	s := &QdrantSink{
		baseURL:    cfg.QdrantURL,
		collection: cfg.Collection,
		embedder:   embedder,
		client:     &http.Client{Timeout: cfg.HTTPTimeout},
	}
	if err := s.ensureCollection(ctx, len(probe[0])); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantSink) ensureCollection(ctx context.Context, dim int) error {
	payload := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	status, body, err := s.do(ctx, http.MethodPut, "/collections/"+s.collection, payload)
	if err != nil {
		return fmt.Errorf("vector: create collection: %w", err)
	}
	// 409 means the collection already exists.
	if status != http.StatusOK && status != http.StatusConflict {
		return fmt.Errorf("vector: create collection: status %d: %s", status, body)
	}
	return nil
}

type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// Add embeds the documents and upserts them. The point ID is a UUIDv5 of
// "<source_url>#<chunk_index>", falling back to the content when the
// metadata is missing.
func (s *QdrantSink) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("vector: embed batch: %w", err)
	}

	points := make([]qdrantPoint, len(docs))
	for i, d := range docs {
		points[i] = qdrantPoint{
			ID:      PointID(d),
			Vector:  vectors[i],
			Payload: payloadFor(d),
		}
	}

	status, body, err := s.do(ctx, http.MethodPut,
		"/collections/"+s.collection+"/points?wait=true",
		map[string]interface{}{"points": points})
	if err != nil {
		return fmt.Errorf("vector: upsert points: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("vector: upsert points: status %d: %s", status, body)
	}

	pointsUpserted.Add(float64(len(points)))
	return nil
}

func (s *QdrantSink) do(ctx context.Context, method, path string, payload interface{}) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, string(snippet), nil
}

// PointID derives the stable Qdrant point ID for a document.
func PointID(d Document) string {
	url, _ := d.Metadata["source_url"].(string)
	idx, hasIdx := d.Metadata["chunk_index"].(int)
	name := d.Content
	if url != "" && hasIdx {
		name = fmt.Sprintf("%s#%d", url, idx)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func payloadFor(d Document) map[string]interface{} {
	payload := make(map[string]interface{}, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		payload[k] = v
	}
	payload["content"] = d.Content
	return payload
}
