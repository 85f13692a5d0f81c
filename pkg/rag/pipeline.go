/*
Package rag composes retrieval and grounded generation over the memory
store: embed the query, search the vector index, filter by similarity,
optionally rerank, blend the scores, and hand the survivors to a generation
backend that must answer from them alone.
*/
package rag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/ristretto"
	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

/*
Result is one scored retrieval hit. RerankScore is nil when the rerank
stage did not run; FinalScore is then the raw similarity.
*/
type Result struct {
	Memory          *memory.Memory `json:"memory"`
	SimilarityScore float64        `json:"similarity_score"`
	RerankScore     *float64       `json:"rerank_score,omitempty"`
	FinalScore      float64        `json:"final_score"`
}

/*
Pipeline runs the retrieval stage sequence. The reranker and the cache are
both optional; absent, the pipeline degrades to plain vector search.
*/
type Pipeline struct {
	store    *memory.Store
	reranker memory.Reranker
	cache    *ristretto.Cache
	cacheTTL time.Duration
}

type PipelineOption func(*Pipeline)

/*
NewPipeline creates a pipeline over a store.
*/
func NewPipeline(store *memory.Store, options ...PipelineOption) *Pipeline {
	pipeline := &Pipeline{store: store}

	for _, option := range options {
		option(pipeline)
	}

	return pipeline
}

/*
WithReranker enables the rerank stage.
*/
func WithReranker(reranker memory.Reranker) PipelineOption {
	return func(pipeline *Pipeline) {
		pipeline.reranker = reranker
	}
}

/*
WithCache enables a TTL cache for repeated queries. Entries expire after
ttl, which bounds how stale a cached ranking can get after writes.
*/
func WithCache(ttl time.Duration) PipelineOption {
	return func(pipeline *Pipeline) {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 10_000,
			MaxCost:     1 << 24,
			BufferItems: 64,
		})
		if err != nil {
			log.Error("failed to create retrieval cache, continuing without", "error", err)
			return
		}
		pipeline.cache = cache
		pipeline.cacheTTL = ttl
	}
}

/*
RetrieveOptions bounds one retrieval call.
*/
type RetrieveOptions struct {
	// Limit caps the number of results (default 5).
	Limit int

	// Threshold drops hits whose similarity is below it.
	Threshold float64

	// RerankDepth is how many of the top hits are sent to the reranker;
	// the remainder keep their similarity order (default Limit).
	RerankDepth int
}

func (opts *RetrieveOptions) defaults() {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.RerankDepth <= 0 {
		opts.RerankDepth = opts.Limit
	}
}

// oversample widens the vector search so the threshold filter and orphan
// drops still leave enough candidates.
const oversample = 4

/*
Retrieve runs the full stage sequence and returns results sorted by
descending final score.
*/
func (pipeline *Pipeline) Retrieve(
	ctx context.Context, query string, opts RetrieveOptions,
) ([]Result, error) {
	opts.defaults()

	cacheKey := fmt.Sprintf("%s|%d|%.4f|%d", query, opts.Limit, opts.Threshold, opts.RerankDepth)

	if pipeline.cache != nil {
		if cached, found := pipeline.cache.Get(cacheKey); found {
			if results, ok := cached.([]Result); ok {
				return results, nil
			}
		}
	}

	vector, err := pipeline.store.Embedder().Embed(ctx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.ErrUpstreamTimeout.WithCause(err)
		}
		return nil, errors.ErrEmbeddingUnavailable.WithCause(err)
	}

	hits, err := pipeline.store.Vectors().Query(ctx, vector, opts.Limit*oversample)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.ErrUpstreamTimeout.WithCause(err)
		}
		return nil, err
	}

	results := make([]Result, 0, len(hits))

	for _, hit := range hits {
		similarity := hit.Similarity()
		if similarity < opts.Threshold {
			continue
		}

		mem, err := pipeline.store.Get(ctx, hit.ID)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				// Orphaned vector; reconciliation will remove it.
				log.Warn("vector hit has no graph node", "id", hit.ID)
				continue
			}
			return nil, err
		}

		results = append(results, Result{
			Memory:          mem,
			SimilarityScore: similarity,
			FinalScore:      similarity,
		})
	}

	results = pipeline.rerank(ctx, query, results, opts.RerankDepth)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	if pipeline.cache != nil {
		pipeline.cache.SetWithTTL(cacheKey, results, int64(len(results)+1), pipeline.cacheTTL)
	}

	return results, nil
}

/*
rerank scores the top depth results with the configured backend and blends
the scores. A rerank failure degrades to pure vector order rather than
failing the query.
*/
func (pipeline *Pipeline) rerank(
	ctx context.Context, query string, results []Result, depth int,
) []Result {
	if pipeline.reranker == nil || len(results) == 0 {
		return results
	}

	if depth > len(results) {
		depth = len(results)
	}

	documents := make([]string, depth)
	for i := 0; i < depth; i++ {
		documents[i] = results[i].Memory.Content
	}

	scores, err := pipeline.reranker.Score(ctx, query, documents)
	if err != nil || len(scores) != depth {
		log.Warn("rerank failed, keeping vector order", "error", err)
		return results
	}

	for i := 0; i < depth; i++ {
		score := scores[i]
		results[i].RerankScore = &score
		results[i].FinalScore = (results[i].SimilarityScore + score) / 2
	}

	return results
}
