package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"

	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/provider"
	"github.com/theapemachine/recall/pkg/rag"
	"github.com/theapemachine/recall/pkg/stores/neo4j"
	"github.com/theapemachine/recall/pkg/stores/qdrant"
	"github.com/theapemachine/recall/pkg/stores/s3"
)

/*
newStore builds the memory store from the active config. The "local" backend
keeps both halves in process memory, which is enough for demos and for a
single mcp session; "remote" talks to Qdrant and Neo4j.
*/
func newStore(ctx context.Context) (*memory.Store, error) {
	embedder, err := newEmbedder()
	if err != nil {
		return nil, err
	}

	switch backend := viper.GetString("stores.backend"); backend {
	case "remote":
		vectors := qdrant.New(
			viper.GetString("stores.qdrant.endpoint"),
			viper.GetString("stores.qdrant.collection"),
		)

		if err := vectors.EnsureCollection(ctx, viper.GetInt("embedding.dimension")); err != nil {
			return nil, fmt.Errorf("failed to prepare qdrant collection: %w", err)
		}

		graph := neo4j.New(
			viper.GetString("stores.neo4j.endpoint"),
			viper.GetString("stores.neo4j.username"),
			viper.GetString("stores.neo4j.password"),
		)

		return memory.NewStore(embedder, vectors, graph), nil
	case "local", "":
		return memory.NewStore(
			embedder,
			memory.NewLocalVectorIndex(),
			memory.NewLocalGraphStore(),
		), nil
	default:
		return nil, fmt.Errorf("unknown stores.backend: %s", backend)
	}
}

/*
newEmbedder builds the embedding provider chain from the providers.embedding
list. A single entry is used directly; several are wrapped in a fallback
chain tried in order.
*/
func newEmbedder() (memory.EmbeddingProvider, error) {
	names := viper.GetStringSlice("providers.embedding")
	if len(names) == 0 {
		return nil, fmt.Errorf("providers.embedding is empty")
	}

	backends := make([]memory.EmbeddingProvider, 0, len(names))

	for _, name := range names {
		switch name {
		case "openai":
			backends = append(backends, provider.NewOpenAIEmbedder(
				provider.WithOpenAIEmbedderModel(viper.GetString("providers.openai.embedding_model")),
			))
		case "ollama":
			backends = append(backends, provider.NewOllamaEmbedder(
				provider.WithOllamaEmbedderModel(viper.GetString("providers.ollama.embedding_model")),
			))
		case "cohere":
			backends = append(backends, provider.NewCohereEmbedder(
				provider.WithCohereEmbedderModel(viper.GetString("providers.cohere.embedding_model")),
			))
		case "mock":
			backends = append(backends, provider.NewMockEmbedder(
				provider.WithMockDimension(viper.GetInt("embedding.dimension")),
			))
		default:
			return nil, fmt.Errorf("unknown embedding provider: %s", name)
		}
	}

	if len(backends) == 1 {
		return backends[0], nil
	}

	return provider.NewFallbackChain(backends...), nil
}

/*
newEngine builds the retrieval + generation engine on top of a store.
*/
func newEngine(store *memory.Store) (*rag.Engine, error) {
	pipelineOpts := []rag.PipelineOption{}

	if ttl := viper.GetDuration("retrieval.cache_ttl"); ttl > 0 {
		pipelineOpts = append(pipelineOpts, rag.WithCache(ttl))
	}

	if viper.GetBool("providers.rerank.enabled") {
		pipelineOpts = append(pipelineOpts, rag.WithReranker(provider.NewCohereReranker(
			provider.WithCohereRerankerModel(viper.GetString("providers.cohere.rerank_model")),
		)))
	}

	pipeline := rag.NewPipeline(store, pipelineOpts...)

	var generator memory.Generator
	model := ""

	switch backend := viper.GetString("providers.generation.backend"); backend {
	case "openai":
		generator = provider.NewOpenAIGenerator()
		model = viper.GetString("providers.openai.generation_model")
	case "anthropic":
		generator = provider.NewAnthropicGenerator()
		model = viper.GetString("providers.anthropic.generation_model")
	case "none", "":
		// Retrieval-only: ask will refuse, search still works.
	default:
		return nil, fmt.Errorf("unknown generation backend: %s", backend)
	}

	engineOpts := []rag.EngineOption{}

	if generator != nil {
		engineOpts = append(engineOpts,
			rag.WithGenerator(generator),
			rag.WithGenerationParams(memory.GenerationParams{
				Model:       model,
				Temperature: viper.GetFloat64("providers.generation.temperature"),
				MaxTokens:   viper.GetInt64("providers.generation.max_tokens"),
			}),
		)
	}

	return rag.NewEngine(pipeline, engineOpts...), nil
}

/*
newSnapshots builds the snapshot store from the s3 section of the config.
*/
func newSnapshots() (*s3.Snapshots, error) {
	conn, err := s3.NewConn(
		s3.WithEndpoint(viper.GetString("stores.s3.endpoint")),
		s3.WithCredentials(
			viper.GetString("stores.s3.access_key"),
			viper.GetString("stores.s3.secret_key"),
		),
		s3.WithSSL(viper.GetBool("stores.s3.use_ssl")),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewSnapshots(conn, viper.GetString("stores.s3.bucket")), nil
}

/*
printJSON renders a command result to stdout.
*/
func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(b))
	return nil
}

/*
parseMetadata decodes the --meta flag, tolerating an empty value.
*/
func parseMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}

	return metadata, nil
}
