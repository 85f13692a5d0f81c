package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theapemachine/recall/pkg/errors"
)

type fixedEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func TestFallbackChain(t *testing.T) {
	ctx := context.Background()

	t.Run("first healthy backend wins", func(t *testing.T) {
		primary := &fixedEmbedder{vector: []float32{1, 0}}
		secondary := &fixedEmbedder{vector: []float32{0, 1}}

		chain := NewFallbackChain(primary, secondary)
		vector, err := chain.Embed(ctx, "hello")

		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, vector)
		assert.Equal(t, 0, secondary.calls)
	})

	t.Run("falls through on failure", func(t *testing.T) {
		primary := &fixedEmbedder{err: fmt.Errorf("rate limited")}
		secondary := &fixedEmbedder{vector: []float32{0, 1}}

		chain := NewFallbackChain(primary, secondary)
		vector, err := chain.Embed(ctx, "hello")

		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1}, vector)
	})

	t.Run("fails closed when every backend fails", func(t *testing.T) {
		chain := NewFallbackChain(
			&fixedEmbedder{err: fmt.Errorf("down")},
			&fixedEmbedder{err: fmt.Errorf("also down")},
		)

		_, err := chain.Embed(ctx, "hello")

		assert.True(t, errors.Is(err, errors.ErrEmbeddingUnavailable))
	})

	t.Run("batch follows the same order", func(t *testing.T) {
		chain := NewFallbackChain(
			&fixedEmbedder{err: fmt.Errorf("down")},
			&fixedEmbedder{vector: []float32{0.5}},
		)

		vectors, err := chain.EmbedBatch(ctx, []string{"a", "b"})

		require.NoError(t, err)
		assert.Len(t, vectors, 2)
	})
}

func TestOllamaEmbedder(t *testing.T) {
	ctx := context.Background()

	newClient := func(t *testing.T, handler http.HandlerFunc) *api.Client {
		t.Helper()
		ts := httptest.NewServer(handler)
		t.Cleanup(ts.Close)
		base, err := url.Parse(ts.URL)
		require.NoError(t, err)
		return api.NewClient(base, http.DefaultClient)
	}

	t.Run("single text", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/embed", r.URL.Path)
			fmt.Fprint(w, `{"model":"nomic-embed-text","embeddings":[[0.1,0.2,0.3]]}`)
		})

		embedder := NewOllamaEmbedder(WithOllamaEmbedderClient(client))
		vector, err := embedder.Embed(ctx, "hello")

		require.NoError(t, err)
		assert.Len(t, vector, 3)
	})

	t.Run("empty response is an error", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"model":"nomic-embed-text","embeddings":[]}`)
		})

		embedder := NewOllamaEmbedder(WithOllamaEmbedderClient(client))
		_, err := embedder.Embed(ctx, "hello")

		assert.Error(t, err)
	})

	t.Run("batch length mismatch is an error", func(t *testing.T) {
		client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"model":"nomic-embed-text","embeddings":[[0.1]]}`)
		})

		embedder := NewOllamaEmbedder(WithOllamaEmbedderClient(client))
		_, err := embedder.EmbedBatch(ctx, []string{"a", "b"})

		assert.Error(t, err)
	})
}
