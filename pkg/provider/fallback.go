package provider

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

/*
FallbackChain tries embedding backends in order until one produces a
vector. When every backend fails the chain fails closed with
ErrEmbeddingUnavailable; it never substitutes a degenerate vector.
*/
type FallbackChain struct {
	backends []memory.EmbeddingProvider
}

/*
NewFallbackChain builds a chain from the given backends, tried in order.
*/
func NewFallbackChain(backends ...memory.EmbeddingProvider) *FallbackChain {
	return &FallbackChain{backends: backends}
}

func (chain *FallbackChain) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error

	for i, backend := range chain.backends {
		vector, err := backend.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}

		log.Warn("embedding backend failed, trying next",
			"backend", i, "error", err)
		lastErr = err
	}

	return nil, errors.ErrEmbeddingUnavailable.WithCause(lastErr)
}

func (chain *FallbackChain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for i, backend := range chain.backends {
		vectors, err := backend.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}

		log.Warn("embedding backend failed, trying next",
			"backend", i, "error", err)
		lastErr = err
	}

	return nil, errors.ErrEmbeddingUnavailable.WithCause(lastErr)
}
