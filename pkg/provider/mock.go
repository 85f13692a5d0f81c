package provider

import (
	"context"
	"hash/fnv"
	"math"
)

/*
MockEmbedder is a deterministic, offline embedder for tests and demos. It
derives a unit-normalized vector from a hash of the text, so identical
inputs always agree and the cosine math downstream is real. It has no
semantic meaning and must never back a production store.
*/
type MockEmbedder struct {
	Dimension int
}

type MockEmbedderOption func(*MockEmbedder)

func NewMockEmbedder(options ...MockEmbedderOption) *MockEmbedder {
	embedder := &MockEmbedder{Dimension: 64}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vector := make([]float32, e.Dimension)
	var norm float64

	for i := range vector {
		seed = seed*6364136223846793005 + 1442695040888963407
		vector[i] = float32(int64(seed>>33)) / float32(math.MaxInt32)
		norm += float64(vector[i]) * float64(vector[i])
	}

	norm = math.Sqrt(norm)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}

	return vector, nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vector)
	}
	return out, nil
}

func WithMockDimension(dimension int) MockEmbedderOption {
	return func(e *MockEmbedder) {
		e.Dimension = dimension
	}
}
