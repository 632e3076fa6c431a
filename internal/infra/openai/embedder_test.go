package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() EmbedderOption {
	return func(o *embedderOptions) {
		o.retry = retryPolicy{maxRetries: 2, baseBackoff: time.Millisecond, maxBackoff: 2 * time.Millisecond}
	}
}

type embeddingRequest struct {
	Input      json.RawMessage `json:"input"`
	Model      string          `json:"model"`
	Dimensions int             `json:"dimensions"`
}

func writeEmbeddings(w http.ResponseWriter, vectors ...[]float64) {
	data := make([]map[string]any, 0, len(vectors))
	// 逆順で返しても Index 順に並べ替えられること
	for i := len(vectors) - 1; i >= 0; i-- {
		data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vectors[i]})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   data,
		"model":  "text-embedding-3-small",
		"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
	})
}

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
}

func TestNewEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, 3, req.Dimensions)
		assert.JSONEq(t, `"hello"`, string(req.Input))

		writeEmbeddings(w, []float64{0.1, 0.2, 0.3})
	}))
	defer server.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingDimension(3), WithEmbeddingBaseURL(server.URL+"/v1/"), fastRetry())
	require.NoError(t, err)

	vector, err := embedder.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, vector, 1e-6)
}

func TestEmbedder_BatchEmbedKeepsInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, []float64{1, 0}, []float64{0, 1})
	}))
	defer server.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingDimension(2), WithEmbeddingBaseURL(server.URL+"/v1/"), fastRetry())
	require.NoError(t, err)

	vectors, err := embedder.BatchEmbed(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1}, vectors[1])
}

func TestEmbedder_BatchEmbedValidation(t *testing.T) {
	embedder, err := NewEmbedder("test-key")
	require.NoError(t, err)

	_, err = embedder.BatchEmbed(context.Background(), nil)
	assert.Error(t, err)

	_, err = embedder.BatchEmbed(context.Background(), make([]string, MaxBatchSize+1))
	assert.Error(t, err)
}

func TestEmbedder_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		writeEmbeddings(w, []float64{0.5, 0.5})
	}))
	defer server.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingDimension(2), WithEmbeddingBaseURL(server.URL+"/v1/"), fastRetry())
	require.NoError(t, err)

	vector, err := embedder.Embed(context.Background(), "hello")

	require.NoError(t, err)
	assert.Len(t, vector, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedder_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingBaseURL(server.URL+"/v1/"), fastRetry())
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, errors.Is(err, ErrMaxRetriesExceeded))
}

func TestEmbedder_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	embedder, err := NewEmbedder("test-key", WithEmbeddingBaseURL(server.URL+"/v1/"), fastRetry())
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := defaultRetryPolicy()

	assert.Equal(t, 2*time.Second, p.backoff(1))
	assert.Equal(t, 4*time.Second, p.backoff(2))
	assert.Equal(t, 32*time.Second, p.backoff(10))
}

func TestTokenCounter(t *testing.T) {
	if testing.Short() {
		t.Skip("エンコーディングの取得にネットワークが必要")
	}
	counter, err := NewTokenCounter()
	if err != nil {
		t.Skipf("tiktoken エンコーディングを取得できません: %v", err)
	}

	assert.Zero(t, counter.CountTokens(""))
	assert.Greater(t, counter.CountTokens("The quick brown fox jumps over the lazy dog."), 5)
}
