package memory

import "context"

/*
EmbeddingProvider turns text into fixed-dimension vectors. Implementations
must return a typed error when no backend responds; a degenerate or random
vector is never an acceptable substitute.
*/
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

/*
VectorIndex stores one vector per memory id and answers nearest-neighbor
queries. Distance is the backend's normalized metric so that similarity can
be derived as 1 - distance.
*/
type VectorIndex interface {
	// Upsert writes or replaces the vector and payload for an id.
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error

	// Query returns up to n nearest ids ordered by ascending distance.
	Query(ctx context.Context, vector []float32, n int) ([]ScoredID, error)

	// Get returns the stored vector, or ErrNotFound.
	Get(ctx context.Context, id string) ([]float32, error)

	// Delete removes the vector for an id. Deleting a missing id is not an
	// error.
	Delete(ctx context.Context, id string) error

	// ListIDs returns every id in the index, for reconciliation scans.
	ListIDs(ctx context.Context) ([]string, error)
}

/*
GraphStore persists memory nodes and typed edges. The store layer validates
relationship types against the closed set before any call; implementations
may rely on that when building traversal queries.
*/
type GraphStore interface {
	// CreateNode persists a memory node. Embeddings are not stored here.
	CreateNode(ctx context.Context, m *Memory) error

	// GetNode returns a node by id, or ErrNotFound.
	GetNode(ctx context.Context, id string) (*Memory, error)

	// SetNodeFields patches mutable node fields (metadata, updated_at,
	// is_latest) in place.
	SetNodeFields(ctx context.Context, id string, fields map[string]any) error

	// DeleteNodeCascade removes a node and every incident edge, reporting
	// whether the node existed.
	DeleteNodeCascade(ctx context.Context, id string) (bool, error)

	// CreateEdge persists a relationship between two existing nodes.
	CreateEdge(ctx context.Context, rel *Relationship) error

	// OutEdges returns the outgoing edges of a node, restricted to the
	// given types (nil means all) and to confidence >= minConfidence.
	OutEdges(ctx context.Context, id string, types []RelationshipType, minConfidence float64) ([]Relationship, error)

	// EdgesBetween returns edges between two nodes in either direction.
	EdgesBetween(ctx context.Context, a, b string) ([]Relationship, error)

	// ListNodes pages through nodes ordered by created_at descending.
	ListNodes(ctx context.Context, limit, offset int) ([]*Memory, error)

	// ListIDs returns every node id, for reconciliation scans.
	ListIDs(ctx context.Context) ([]string, error)

	// Stats summarizes node and per-type edge counts.
	Stats(ctx context.Context) (*GraphStats, error)
}

/*
Reranker scores candidate texts against a query with a cross-encoder-style
relevance model. Absence is a supported configuration: the retrieval
pipeline treats a nil Reranker as a no-op stage.
*/
type Reranker interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

/*
GenerationParams bounds a single generation call.
*/
type GenerationParams struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

/*
Completion is the raw output of a generation backend.
*/
type Completion struct {
	Text       string
	TokensUsed int
}

/*
Generator produces grounded answers from a prompt pair within a bounded
token budget.
*/
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (*Completion, error)
}
