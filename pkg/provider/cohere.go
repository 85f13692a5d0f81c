package provider

import (
	"context"
	"os"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/theapemachine/recall/pkg/utils"
)

type CohereEmbedder struct {
	api   cohereclient.Client
	Model string
}

type CohereEmbedderOption func(*CohereEmbedder)

func NewCohereEmbedder(options ...CohereEmbedderOption) *CohereEmbedder {
	embedder := &CohereEmbedder{
		api:   *cohereclient.NewClient(cohereclient.WithToken(os.Getenv("COHERE_API_KEY"))),
		Model: "embed-english-v3.0",
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := e.Model
	resp, err := e.api.Embed(ctx, &cohere.EmbedRequest{
		Model: &model,
		Texts: []string{text},
	})
	if err != nil {
		return nil, err
	}
	return utils.ConvertToFloat32(resp.GetEmbeddingsFloats().Embeddings[0]), nil
}

func (e *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.Model
	resp, err := e.api.Embed(ctx, &cohere.EmbedRequest{
		Model: &model,
		Texts: texts,
	})
	if err != nil {
		return nil, err
	}

	embeddings := resp.GetEmbeddingsFloats().Embeddings
	out := make([][]float32, len(embeddings))
	for i, embedding := range embeddings {
		out[i] = utils.ConvertToFloat32(embedding)
	}
	return out, nil
}

func WithCohereEmbedderModel(model string) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		e.Model = model
	}
}

func WithCohereEmbedderClient(client *cohereclient.Client) CohereEmbedderOption {
	return func(e *CohereEmbedder) {
		e.api = *client
	}
}

/*
CohereReranker scores candidate documents against a query with Cohere's
rerank endpoint. Scores come back aligned to the input order, with any
document the API did not score left at zero.
*/
type CohereReranker struct {
	api   cohereclient.Client
	Model string
}

type CohereRerankerOption func(*CohereReranker)

func NewCohereReranker(options ...CohereRerankerOption) *CohereReranker {
	reranker := &CohereReranker{
		api:   *cohereclient.NewClient(cohereclient.WithToken(os.Getenv("COHERE_API_KEY"))),
		Model: "rerank-english-v3.0",
	}

	for _, option := range options {
		option(reranker)
	}

	return reranker
}

func (r *CohereReranker) Score(
	ctx context.Context, query string, documents []string,
) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	items := make([]*cohere.RerankRequestDocumentsItem, 0, len(documents))
	for _, doc := range documents {
		items = append(items, &cohere.RerankRequestDocumentsItem{String: doc})
	}

	model := r.Model
	resp, err := r.api.Rerank(ctx, &cohere.RerankRequest{
		Model:     &model,
		Query:     query,
		Documents: items,
	})
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(documents))
	for _, result := range resp.Results {
		if result.Index >= 0 && result.Index < len(scores) {
			scores[result.Index] = result.RelevanceScore
		}
	}

	return scores, nil
}

func WithCohereRerankerModel(model string) CohereRerankerOption {
	return func(r *CohereReranker) {
		r.Model = model
	}
}

func WithCohereRerankerClient(client *cohereclient.Client) CohereRerankerOption {
	return func(r *CohereReranker) {
		r.api = *client
	}
}
