package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
)

/*
LocalVectorIndex is an in-process VectorIndex backed by a map, with a full
linear-scan cosine search. It backs the zero-dependency local mode and the
package tests; anything beyond a few thousand memories belongs in Qdrant.
*/
type LocalVectorIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	payload map[string]map[string]any
}

/*
NewLocalVectorIndex creates an empty in-process vector index.
*/
func NewLocalVectorIndex() *LocalVectorIndex {
	return &LocalVectorIndex{
		vectors: map[string][]float32{},
		payload: map[string]map[string]any{},
	}
}

func (idx *LocalVectorIndex) Upsert(
	ctx context.Context, id string, vector []float32, payload map[string]any,
) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	stored := make([]float32, len(vector))
	copy(stored, vector)
	idx.vectors[id] = stored
	idx.payload[id] = payload

	return nil
}

func (idx *LocalVectorIndex) Query(
	ctx context.Context, vector []float32, n int,
) ([]ScoredID, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]ScoredID, 0, len(idx.vectors))

	for id, stored := range idx.vectors {
		similarity := CosineSimilarity(vector, stored)
		hits = append(hits, ScoredID{ID: id, Distance: float32(1 - similarity)})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}

	return hits, nil
}

func (idx *LocalVectorIndex) Get(ctx context.Context, id string) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stored, ok := idx.vectors[id]
	if !ok {
		return nil, errors.ErrNotFound.WithMessagef("no vector for %s", id)
	}

	out := make([]float32, len(stored))
	copy(out, stored)
	return out, nil
}

func (idx *LocalVectorIndex) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.vectors, id)
	delete(idx.payload, id)
	return nil
}

func (idx *LocalVectorIndex) ListIDs(ctx context.Context) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]string, 0, len(idx.vectors))
	for id := range idx.vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

/*
LocalGraphStore is an in-process GraphStore holding nodes and edges in maps
under a single lock. Like LocalVectorIndex it backs local mode and tests.
*/
type LocalGraphStore struct {
	mu    sync.RWMutex
	nodes map[string]*Memory
	edges []Relationship
}

/*
NewLocalGraphStore creates an empty in-process graph store.
*/
func NewLocalGraphStore() *LocalGraphStore {
	return &LocalGraphStore{nodes: map[string]*Memory{}}
}

func (g *LocalGraphStore) CreateNode(ctx context.Context, m *Memory) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	stored := *m
	stored.Embedding = nil
	stored.Metadata = cloneMeta(m.Metadata)
	g.nodes[m.ID] = &stored

	return nil
}

func (g *LocalGraphStore) GetNode(ctx context.Context, id string) (*Memory, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil, errors.ErrNotFound.WithMessagef("memory not found: %s", id)
	}

	out := *node
	out.Metadata = cloneMeta(node.Metadata)
	return &out, nil
}

func (g *LocalGraphStore) SetNodeFields(
	ctx context.Context, id string, fields map[string]any,
) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return errors.ErrNotFound.WithMessagef("memory not found: %s", id)
	}

	for key, value := range fields {
		switch key {
		case "is_latest":
			if v, ok := value.(bool); ok {
				node.IsLatest = v
			}
		case "metadata":
			if v, ok := value.(map[string]any); ok {
				node.Metadata = cloneMeta(v)
			}
		case "updated_at":
			// Arrives as an RFC3339Nano string, same as the remote backend.
			if v, ok := value.(string); ok {
				if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
					node.UpdatedAt = parsed
				}
			}
		}
	}

	return nil
}

func (g *LocalGraphStore) DeleteNodeCascade(ctx context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return false, nil
	}
	delete(g.nodes, id)

	kept := g.edges[:0]
	for _, edge := range g.edges {
		if edge.SourceID == id || edge.TargetID == id {
			continue
		}
		kept = append(kept, edge)
	}
	g.edges = kept

	return true, nil
}

func (g *LocalGraphStore) CreateEdge(ctx context.Context, rel *Relationship) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[rel.SourceID]; !ok {
		return errors.ErrNotFound.WithMessagef("memory not found: %s", rel.SourceID)
	}
	if _, ok := g.nodes[rel.TargetID]; !ok {
		return errors.ErrNotFound.WithMessagef("memory not found: %s", rel.TargetID)
	}

	stored := *rel
	stored.Metadata = cloneMeta(rel.Metadata)
	g.edges = append(g.edges, stored)

	return nil
}

func (g *LocalGraphStore) OutEdges(
	ctx context.Context, id string, types []RelationshipType, minConfidence float64,
) ([]Relationship, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	wanted := map[RelationshipType]bool{}
	for _, t := range types {
		wanted[t] = true
	}

	var out []Relationship
	for _, edge := range g.edges {
		if edge.SourceID != id {
			continue
		}
		if len(types) > 0 && !wanted[edge.Type] {
			continue
		}
		if edge.Confidence < minConfidence {
			continue
		}
		out = append(out, edge)
	}

	return out, nil
}

func (g *LocalGraphStore) EdgesBetween(ctx context.Context, a, b string) ([]Relationship, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Relationship
	for _, edge := range g.edges {
		forward := edge.SourceID == a && (b == "" || edge.TargetID == b)
		backward := edge.TargetID == a && (b == "" || edge.SourceID == b)
		if forward || backward {
			out = append(out, edge)
		}
	}

	return out, nil
}

func (g *LocalGraphStore) ListNodes(ctx context.Context, limit, offset int) ([]*Memory, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	all := make([]*Memory, 0, len(g.nodes))
	for _, node := range g.nodes {
		out := *node
		out.Metadata = cloneMeta(node.Metadata)
		all = append(all, &out)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*Memory{}, nil
	}
	all = all[offset:]

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	return all, nil
}

func (g *LocalGraphStore) ListIDs(ctx context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (g *LocalGraphStore) Stats(ctx context.Context) (*GraphStats, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := &GraphStats{
		TotalMemories: len(g.nodes),
		Relationships: map[RelationshipType]int{},
	}

	for _, node := range g.nodes {
		if node.IsLatest {
			stats.LatestMemories++
		}
	}
	for _, edge := range g.edges {
		stats.Relationships[edge.Type]++
	}

	return stats, nil
}

func cloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
