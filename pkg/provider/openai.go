/*
Package provider adapts external model APIs to the engine's capability
interfaces: embedding, reranking, and grounded text generation. Each
backend is constructed with functional options so callers can inject a
configured client or fall back to environment-based defaults.
*/
package provider

import (
	"context"
	"fmt"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/utils"
)

type OpenAIEmbedder struct {
	api   openai.Client
	Model string
}

type OpenAIEmbedderOption func(*OpenAIEmbedder)

func NewOpenAIEmbedder(options ...OpenAIEmbedderOption) *OpenAIEmbedder {
	embedder := &OpenAIEmbedder{
		api:   openai.NewClient(option.WithAPIKey(os.Getenv("OPENAI_API_KEY"))),
		Model: "text-embedding-3-small",
	}

	for _, option := range options {
		option(embedder)
	}

	return embedder
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.Model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, err
	}
	return utils.ConvertToFloat32(resp.Data[0].Embedding), nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.Model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = utils.ConvertToFloat32(d.Embedding)
	}
	return out, nil
}

func WithOpenAIEmbedderModel(model string) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.Model = model
	}
}

func WithOpenAIEmbedderClient(client *openai.Client) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.api = *client
	}
}

/*
OpenAIGenerator produces grounded answers through the chat completions API.
*/
type OpenAIGenerator struct {
	api openai.Client
}

type OpenAIGeneratorOption func(*OpenAIGenerator)

func NewOpenAIGenerator(options ...OpenAIGeneratorOption) *OpenAIGenerator {
	generator := &OpenAIGenerator{
		api: openai.NewClient(option.WithAPIKey(os.Getenv("OPENAI_API_KEY"))),
	}

	for _, option := range options {
		option(generator)
	}

	return generator
}

func (g *OpenAIGenerator) Complete(
	ctx context.Context, systemPrompt, userPrompt string, params memory.GenerationParams,
) (*memory.Completion, error) {
	resp, err := g.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(params.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(params.Temperature),
		MaxTokens:   openai.Int(params.MaxTokens),
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty completion")
	}

	return &memory.Completion{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}

func WithOpenAIGeneratorClient(client *openai.Client) OpenAIGeneratorOption {
	return func(g *OpenAIGenerator) {
		g.api = *client
	}
}
