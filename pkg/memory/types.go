/*
Package memory implements the core of the engine: a versioned store of
knowledge units kept consistent across a similarity-searchable vector index
and a typed relationship graph, plus lineage and path traversal over that
graph.
*/
package memory

import (
	"math"
	"strings"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
)

/*
RelationshipType is the closed set of edge types the graph ever stores.
Anything else is rejected before it can reach a traversal query.
*/
type RelationshipType string

const (
	// RelationshipUpdate marks the target as superseding the source. Version
	// chains are built exclusively from these edges.
	RelationshipUpdate RelationshipType = "UPDATE"

	// RelationshipExtend marks the target as adding context without
	// invalidating the source.
	RelationshipExtend RelationshipType = "EXTEND"

	// RelationshipDerive marks the target as an inferred insight from the
	// source, typically created by similarity analysis.
	RelationshipDerive RelationshipType = "DERIVE"
)

/*
AllRelationshipTypes returns the closed set in a fixed order.
*/
func AllRelationshipTypes() []RelationshipType {
	return []RelationshipType{RelationshipUpdate, RelationshipExtend, RelationshipDerive}
}

/*
ParseRelationshipType upper-cases the input and checks it against the closed
set. The allow-list runs before any query construction so a caller-supplied
type can never be interpolated into a traversal pattern.
*/
func ParseRelationshipType(s string) (RelationshipType, error) {
	candidate := RelationshipType(strings.ToUpper(strings.TrimSpace(s)))

	switch candidate {
	case RelationshipUpdate, RelationshipExtend, RelationshipDerive:
		return candidate, nil
	}

	return "", errors.ErrInvalidRelationshipType.WithMessagef(
		"invalid relationship type: %s", s,
	)
}

/*
Memory is the unit of knowledge. Content and embedding are immutable for a
given id; a content change creates a new Memory linked to the old one by an
UPDATE relationship. Only the metadata envelope mutates in place.
*/
type Memory struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Version    int            `json:"version"`
	IsLatest   bool           `json:"is_latest"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id,omitempty"`
}

/*
Relationship is a directed, typed, confidence-weighted edge between two
memories.
*/
type Relationship struct {
	ID         string           `json:"id"`
	SourceID   string           `json:"source_id"`
	TargetID   string           `json:"target_id"`
	Type       RelationshipType `json:"relationship_type"`
	Confidence float64          `json:"confidence"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

/*
ScoredID is a vector-search hit. Distance uses the index's normalized
metric, so similarity is derived as 1 - Distance.
*/
type ScoredID struct {
	ID       string
	Distance float32
}

/*
Similarity converts the normalized distance to a similarity score.
*/
func (s ScoredID) Similarity() float64 {
	return 1 - float64(s.Distance)
}

/*
Path is the result of a shortest-path traversal: the nodes visited in order
and the edges connecting them.
*/
type Path struct {
	Nodes []*Memory      `json:"nodes"`
	Edges []Relationship `json:"edges"`
}

/*
HopResult pairs a memory reached by multi-hop traversal with its distance
from the seed set.
*/
type HopResult struct {
	Memory   *Memory `json:"memory"`
	HopCount int     `json:"hop_count"`
}

/*
GraphStats summarizes the relationship graph.
*/
type GraphStats struct {
	TotalMemories  int                      `json:"total_memories"`
	LatestMemories int                      `json:"latest_memories"`
	Relationships  map[RelationshipType]int `json:"relationships"`
}

/*
CosineSimilarity computes the cosine of the angle between two vectors,
returning 0 for mismatched or zero-length input.
*/
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
