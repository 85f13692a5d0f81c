package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cohesivestack/valgo"
	"github.com/google/uuid"
	"github.com/theapemachine/recall/pkg/errors"
)

/*
Store owns the memory entity model and keeps the vector index and the graph
store consistent with each other. The graph side is authoritative for
existence; the vector side is a derived index. Writes go graph-first so the
benign failure mode is an orphaned vector, which Reconcile cleans up.
*/
type Store struct {
	embedder EmbeddingProvider
	vectors  VectorIndex
	graph    GraphStore
}

/*
NewStore creates a store with the provided backends.
*/
func NewStore(embedder EmbeddingProvider, vectors VectorIndex, graph GraphStore) *Store {
	return &Store{
		embedder: embedder,
		vectors:  vectors,
		graph:    graph,
	}
}

/*
Embedder exposes the configured embedding provider so the retrieval
pipeline can reuse the exact backend and dimension used at write time.
*/
func (store *Store) Embedder() EmbeddingProvider { return store.embedder }

/*
Vectors exposes the configured vector index.
*/
func (store *Store) Vectors() VectorIndex { return store.vectors }

/*
Create computes an embedding for the content and writes the new memory to
both backends. The embedding must succeed before either storage write is
attempted; no memory is ever indexed without a vector.
*/
func (store *Store) Create(
	ctx context.Context, content string, metadata map[string]any, sourceType, sourceID string,
) (*Memory, error) {
	if !valgo.Is(valgo.String(content, "content").Not().Blank()).Valid() {
		return nil, fmt.Errorf("content cannot be empty")
	}

	vector, err := store.embedder.Embed(ctx, content)
	if err != nil {
		return nil, upstream(err, errors.ErrEmbeddingUnavailable)
	}

	if sourceType == "" {
		sourceType = "text"
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	now := time.Now().UTC()
	mem := &Memory{
		ID:         uuid.NewString(),
		Content:    content,
		Embedding:  vector,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
		IsLatest:   true,
		SourceType: sourceType,
		SourceID:   sourceID,
	}

	return mem, store.writeBoth(ctx, mem)
}

/*
writeBoth performs the dual write, graph first. A vector failure triggers a
compensating graph delete so a lone failure never leaves a half-written
memory behind; if the compensation itself fails the drift is logged for the
reconciliation pass.
*/
func (store *Store) writeBoth(ctx context.Context, mem *Memory) error {
	if err := store.graph.CreateNode(ctx, mem); err != nil {
		return errors.ErrStorageWrite.WithCause(err)
	}

	if err := store.vectors.Upsert(ctx, mem.ID, mem.Embedding, vectorPayload(mem)); err != nil {
		if _, rollbackErr := store.graph.DeleteNodeCascade(ctx, mem.ID); rollbackErr != nil {
			log.Error("vector write failed and graph rollback failed, stores have drifted",
				"id", mem.ID, "error", err, "rollback_error", rollbackErr)
			return errors.ErrConsistencyFault.WithCause(err)
		}
		return errors.ErrStorageWrite.WithCause(err)
	}

	return nil
}

func vectorPayload(mem *Memory) map[string]any {
	return map[string]any{
		"content":     mem.Content,
		"source_type": mem.SourceType,
		"source_id":   mem.SourceID,
		"created_at":  mem.CreatedAt.Format(time.RFC3339Nano),
	}
}

/*
Get returns a memory by id, hydrating the node from the graph store and the
embedding from the vector index. A node whose vector has gone missing is
lazily re-indexed rather than failing the read.
*/
func (store *Store) Get(ctx context.Context, id string) (*Memory, error) {
	mem, err := store.graph.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	vector, err := store.vectors.Get(ctx, id)
	if err == nil {
		mem.Embedding = vector
		return mem, nil
	}

	if !errors.Is(err, errors.ErrNotFound) {
		log.Error("failed to read vector during hydration", "id", id, "error", err)
		return mem, nil
	}

	// Drift: the graph is authoritative, so re-embed and re-index.
	log.Warn("memory missing from vector index, re-indexing", "id", id)

	vector, err = store.embedder.Embed(ctx, mem.Content)
	if err != nil {
		log.Error("failed to re-embed during self-heal", "id", id, "error", err)
		return mem, nil
	}

	if err := store.vectors.Upsert(ctx, id, vector, vectorPayload(mem)); err != nil {
		log.Error("failed to re-index during self-heal", "id", id, "error", err)
		return mem, nil
	}

	mem.Embedding = vector
	return mem, nil
}

/*
Update applies the versioning rule. A nil or unchanged content patches
metadata in place without touching version or lineage. A changed content
marks the existing memory as outdated, creates a successor with a fresh
embedding and version+1, and links the two with an UPDATE relationship of
confidence 1.0.
*/
func (store *Store) Update(
	ctx context.Context, id string, content *string, metadata map[string]any,
) (*Memory, error) {
	existing, err := store.graph.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	if content == nil || *content == existing.Content {
		return store.patchMetadata(ctx, existing, metadata)
	}

	return store.supersede(ctx, existing, *content, metadata)
}

func (store *Store) patchMetadata(
	ctx context.Context, existing *Memory, metadata map[string]any,
) (*Memory, error) {
	if len(metadata) == 0 {
		return existing, nil
	}

	if existing.Metadata == nil {
		existing.Metadata = map[string]any{}
	}
	for k, v := range metadata {
		existing.Metadata[k] = v
	}
	existing.UpdatedAt = time.Now().UTC()

	err := store.graph.SetNodeFields(ctx, existing.ID, map[string]any{
		"metadata":   existing.Metadata,
		"updated_at": existing.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, errors.ErrStorageWrite.WithCause(err)
	}

	return existing, nil
}

/*
supersede runs the three-step version bump. Each step compensates on
failure so the lineage is never left with two heads; a failure after the
head has moved is logged for RepairLineage rather than hidden.
*/
func (store *Store) supersede(
	ctx context.Context, existing *Memory, content string, metadata map[string]any,
) (*Memory, error) {
	// Step 1: the old head steps down.
	err := store.graph.SetNodeFields(ctx, existing.ID, map[string]any{"is_latest": false})
	if err != nil {
		return nil, errors.ErrStorageWrite.WithCause(err)
	}

	merged := map[string]any{}
	for k, v := range existing.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}

	// Step 2: create the successor with a fresh embedding.
	vector, err := store.embedder.Embed(ctx, content)
	if err != nil {
		store.restoreHead(ctx, existing.ID)
		return nil, upstream(err, errors.ErrEmbeddingUnavailable)
	}

	now := time.Now().UTC()
	successor := &Memory{
		ID:         uuid.NewString(),
		Content:    content,
		Embedding:  vector,
		Metadata:   merged,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    existing.Version + 1,
		IsLatest:   true,
		SourceType: existing.SourceType,
		SourceID:   existing.SourceID,
	}

	if err := store.writeBoth(ctx, successor); err != nil {
		store.restoreHead(ctx, existing.ID)
		return nil, err
	}

	// Step 3: link the chain.
	rel := &Relationship{
		ID:         newRelationshipID(),
		SourceID:   existing.ID,
		TargetID:   successor.ID,
		Type:       RelationshipUpdate,
		Confidence: 1.0,
		Metadata:   map[string]any{},
		CreatedAt:  now,
	}

	if err := store.graph.CreateEdge(ctx, rel); err != nil {
		// Retry the link once before surfacing: the successor exists and is
		// the head, only the chain is missing.
		if retryErr := store.graph.CreateEdge(ctx, rel); retryErr != nil {
			log.Error("failed to link version chain, lineage needs repair",
				"source", existing.ID, "target", successor.ID, "error", retryErr)
			return nil, errors.ErrStorageWrite.WithCause(retryErr)
		}
	}

	return successor, nil
}

func (store *Store) restoreHead(ctx context.Context, id string) {
	err := store.graph.SetNodeFields(ctx, id, map[string]any{"is_latest": true})
	if err != nil {
		log.Error("failed to restore lineage head after partial update",
			"id", id, "error", err)
	}
}

/*
Delete removes a memory and all incident relationships from both stores.
It reports false, without error, when the id does not exist.
*/
func (store *Store) Delete(ctx context.Context, id string) (bool, error) {
	found, err := store.graph.DeleteNodeCascade(ctx, id)
	if err != nil {
		return false, errors.ErrStorageWrite.WithCause(err)
	}
	if !found {
		return false, nil
	}

	if err := store.vectors.Delete(ctx, id); err != nil {
		log.Error("node deleted but vector delete failed, reconcile will clean up",
			"id", id, "error", err)
	}

	return true, nil
}

/*
Relate creates a typed relationship between two existing memories. The type
is checked against the closed set and the confidence against [0, 1] before
anything is written. A second UPDATE edge out of an already-superseded node
is rejected to keep each lineage a chain.
*/
func (store *Store) Relate(
	ctx context.Context, sourceID, targetID, relType string, confidence float64, metadata map[string]any,
) (*Relationship, error) {
	parsed, err := ParseRelationshipType(relType)
	if err != nil {
		return nil, err
	}

	if !valgo.Is(valgo.Number(confidence, "confidence").Between(0.0, 1.0)).Valid() {
		return nil, errors.ErrInvalidConfidence.WithMessagef(
			"confidence %v is outside [0.0, 1.0]", confidence,
		)
	}

	source, err := store.graph.GetNode(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if _, err := store.graph.GetNode(ctx, targetID); err != nil {
		return nil, err
	}

	if parsed == RelationshipUpdate && !source.IsLatest {
		existing, err := store.graph.OutEdges(ctx, sourceID, []RelationshipType{RelationshipUpdate}, 0)
		if err != nil {
			return nil, errors.ErrStorageWrite.WithCause(err)
		}
		if len(existing) > 0 {
			return nil, errors.ErrLineageConflict.WithMessagef(
				"%s already has a successor", sourceID,
			)
		}
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	rel := &Relationship{
		ID:         newRelationshipID(),
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       parsed,
		Confidence: confidence,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}

	if err := store.graph.CreateEdge(ctx, rel); err != nil {
		return nil, errors.ErrStorageWrite.WithCause(err)
	}

	return rel, nil
}

/*
Related returns the out-neighbors of a memory, optionally filtered by
relationship type. Order is unspecified; callers needing an order must sort
on the returned attributes.
*/
func (store *Store) Related(
	ctx context.Context, id string, relType *RelationshipType,
) ([]*Memory, error) {
	if _, err := store.graph.GetNode(ctx, id); err != nil {
		return nil, err
	}

	var types []RelationshipType
	if relType != nil {
		types = []RelationshipType{*relType}
	}

	edges, err := store.graph.OutEdges(ctx, id, types, 0)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	related := make([]*Memory, 0, len(edges))

	for _, edge := range edges {
		if seen[edge.TargetID] {
			continue
		}
		seen[edge.TargetID] = true

		mem, err := store.graph.GetNode(ctx, edge.TargetID)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		related = append(related, mem)
	}

	return related, nil
}

/*
List pages through memories ordered by created_at descending.
*/
func (store *Store) List(ctx context.Context, limit, offset int) ([]*Memory, error) {
	return store.graph.ListNodes(ctx, limit, offset)
}

/*
Stats summarizes the relationship graph.
*/
func (store *Store) Stats(ctx context.Context) (*GraphStats, error) {
	return store.graph.Stats(ctx)
}

func newRelationshipID() string {
	return "rel_" + uuid.NewString()
}

/*
upstream maps a backend failure to the taxonomy: a blown deadline becomes
ErrUpstreamTimeout, anything else wraps the given sentinel.
*/
func upstream(err error, fallback *errors.Error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.ErrUpstreamTimeout.WithCause(err)
	}
	return fallback.WithCause(err)
}
