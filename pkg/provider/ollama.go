package provider

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/ollama/ollama/api"
)

/*
OllamaEmbedder produces embeddings from a locally running Ollama daemon,
which makes it the default for the zero-cloud local backend.
*/
type OllamaEmbedder struct {
	api   *api.Client
	Model string
}

type OllamaEmbedderOption func(*OllamaEmbedder)

func NewOllamaEmbedder(options ...OllamaEmbedderOption) *OllamaEmbedder {
	embedder := &OllamaEmbedder{Model: "nomic-embed-text"}

	for _, option := range options {
		option(embedder)
	}

	if embedder.api == nil {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			log.Error("failed to create ollama client", "error", err)
		}
		embedder.api = client
	}

	return embedder
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.api.Embed(ctx, &api.EmbedRequest{
		Model: e.Model,
		Input: text,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding response")
	}

	return resp.Embeddings[0], nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.api.Embed(ctx, &api.EmbedRequest{
		Model: e.Model,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf(
			"ollama: expected %d embeddings, got %d", len(texts), len(resp.Embeddings),
		)
	}

	return resp.Embeddings, nil
}

func WithOllamaEmbedderModel(model string) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.Model = model
	}
}

func WithOllamaEmbedderClient(client *api.Client) OllamaEmbedderOption {
	return func(e *OllamaEmbedder) {
		e.api = client
	}
}
