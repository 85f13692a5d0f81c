package memory

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/recall/pkg/errors"
)

// maxLineageDepth caps version-chain walks so a corrupt graph with an
// UPDATE cycle cannot spin a traversal forever.
const maxLineageDepth = 256

/*
Lineage returns the version chain starting at the given memory and following
UPDATE edges forward to the head, oldest first. Ancestors of the starting
memory are not included, so the lineage of a head is just the head itself,
and a memory with no outgoing UPDATE edge is its own single-entry lineage.
*/
func (store *Store) Lineage(ctx context.Context, id string) ([]*Memory, error) {
	if _, err := store.graph.GetNode(ctx, id); err != nil {
		return nil, err
	}

	chain := []string{id}
	current := id

	for depth := 0; depth < maxLineageDepth; depth++ {
		next, err := store.updateSuccessor(ctx, current)
		if err != nil {
			return nil, err
		}
		if next == "" || containsID(chain, next) {
			break
		}
		chain = append(chain, next)
		current = next
	}

	lineage := make([]*Memory, 0, len(chain))
	for _, nodeID := range chain {
		mem, err := store.graph.GetNode(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		lineage = append(lineage, mem)
	}

	return lineage, nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

/*
updateSuccessor returns the target of the UPDATE edge out of id, or "" when
the node is a lineage head. Multiple successors should never exist; if they
do the newest edge wins and the anomaly is logged for RepairLineage.
*/
func (store *Store) updateSuccessor(ctx context.Context, id string) (string, error) {
	edges, err := store.graph.OutEdges(ctx, id, []RelationshipType{RelationshipUpdate}, 0)
	if err != nil {
		return "", err
	}
	if len(edges) == 0 {
		return "", nil
	}
	if len(edges) > 1 {
		log.Warn("version chain has multiple successors, taking newest",
			"id", id, "successors", len(edges))
		sort.Slice(edges, func(i, j int) bool {
			return edges[i].CreatedAt.After(edges[j].CreatedAt)
		})
	}
	return edges[0].TargetID, nil
}


/*
PathOptions restricts a shortest-path search.
*/
type PathOptions struct {
	// Types limits which edge types may be crossed; nil means all.
	Types []RelationshipType

	// MinConfidence drops edges below the threshold.
	MinConfidence float64

	// MaxHops caps the search depth. Zero means the default of 5.
	MaxHops int
}

/*
ShortestPath finds the shortest directed path between two memories using
breadth-first search over the relationship graph. It returns nil, without
error, when no path exists within the hop limit.
*/
func (store *Store) ShortestPath(ctx context.Context, fromID, toID string, opts PathOptions) (*Path, error) {
	if _, err := store.graph.GetNode(ctx, fromID); err != nil {
		return nil, err
	}
	if _, err := store.graph.GetNode(ctx, toID); err != nil {
		return nil, err
	}

	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = 5
	}

	if fromID == toID {
		node, err := store.graph.GetNode(ctx, fromID)
		if err != nil {
			return nil, err
		}
		return &Path{Nodes: []*Memory{node}}, nil
	}

	parents := map[string]pathStep{fromID: {id: fromID}}
	frontier := []string{fromID}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string

		for _, current := range frontier {
			edges, err := store.graph.OutEdges(ctx, current, opts.Types, opts.MinConfidence)
			if err != nil {
				return nil, err
			}

			for i := range edges {
				edge := edges[i]
				if _, seen := parents[edge.TargetID]; seen {
					continue
				}
				parents[edge.TargetID] = pathStep{id: edge.TargetID, via: &edge, prev: current}

				if edge.TargetID == toID {
					return store.assemblePath(ctx, parents, toID)
				}
				next = append(next, edge.TargetID)
			}
		}

		frontier = next
	}

	return nil, nil
}

// pathStep records how a node was first reached during breadth-first search.
type pathStep struct {
	id   string
	via  *Relationship
	prev string
}

func (store *Store) assemblePath(
	ctx context.Context, parents map[string]pathStep, toID string,
) (*Path, error) {
	var ids []string
	var edges []Relationship

	for current := toID; ; {
		ids = append([]string{current}, ids...)
		entry := parents[current]
		if entry.via == nil {
			break
		}
		edges = append([]Relationship{*entry.via}, edges...)
		current = entry.prev
	}

	path := &Path{Edges: edges}
	for _, id := range ids {
		node, err := store.graph.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		path.Nodes = append(path.Nodes, node)
	}

	return path, nil
}

/*
MultiHopOptions controls a multi-hop exploration.
*/
type MultiHopOptions struct {
	// StartID seeds the walk from a known memory. Mutually exclusive with
	// Query; StartID wins when both are set.
	StartID string

	// Query seeds the walk from the top vector-search hits for the text.
	Query string

	// SeedCount is how many vector hits seed a query-driven walk (default 3).
	SeedCount int

	// MaxHops caps the walk depth (default 2).
	MaxHops int

	// Limit caps the number of returned memories (default 20).
	Limit int

	// MinConfidence drops edges below the threshold.
	MinConfidence float64
}

/*
MultiHop explores the neighborhood around a seed set, returning distinct
latest-version memories ordered by how many hops away they were first
reached. Seeds themselves are not returned.
*/
func (store *Store) MultiHop(ctx context.Context, opts MultiHopOptions) ([]HopResult, error) {
	seeds, err := store.resolveSeeds(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return []HopResult{}, nil
	}

	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = 2
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	visited := map[string]bool{}
	frontier := seeds
	for _, id := range seeds {
		visited[id] = true
	}

	var results []HopResult

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string

		for _, current := range frontier {
			edges, err := store.graph.OutEdges(ctx, current, nil, opts.MinConfidence)
			if err != nil {
				return nil, err
			}

			for _, edge := range edges {
				if visited[edge.TargetID] {
					continue
				}
				visited[edge.TargetID] = true
				next = append(next, edge.TargetID)

				node, err := store.graph.GetNode(ctx, edge.TargetID)
				if err != nil {
					if errors.Is(err, errors.ErrNotFound) {
						continue
					}
					return nil, err
				}
				if !node.IsLatest {
					continue
				}

				results = append(results, HopResult{Memory: node, HopCount: hop})
			}
		}

		frontier = next
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].HopCount < results[j].HopCount
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (store *Store) resolveSeeds(ctx context.Context, opts MultiHopOptions) ([]string, error) {
	if opts.StartID != "" {
		if _, err := store.graph.GetNode(ctx, opts.StartID); err != nil {
			return nil, err
		}
		return []string{opts.StartID}, nil
	}

	if opts.Query == "" {
		return nil, nil
	}

	vector, err := store.embedder.Embed(ctx, opts.Query)
	if err != nil {
		return nil, upstream(err, errors.ErrEmbeddingUnavailable)
	}

	seedCount := opts.SeedCount
	if seedCount <= 0 {
		seedCount = 3
	}

	hits, err := store.vectors.Query(ctx, vector, seedCount)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.ErrUpstreamTimeout.WithCause(err)
		}
		return nil, err
	}

	seeds := make([]string, 0, len(hits))
	for _, hit := range hits {
		seeds = append(seeds, hit.ID)
	}
	return seeds, nil
}

/*
InsightReport summarizes one DeriveInsights pass.
*/
type InsightReport struct {
	Compared int            `json:"compared"`
	Created  []Relationship `json:"created"`
	Skipped  int            `json:"skipped"`
}

/*
DeriveInsights scans latest-version memories pairwise and creates DERIVE
relationships, with the cosine similarity as confidence, for pairs above the
threshold that are not already connected. The scan pages through the graph
so a large store does not have to fit in memory at once.
*/
func (store *Store) DeriveInsights(ctx context.Context, threshold float64) (*InsightReport, error) {
	if !validThreshold(threshold) {
		return nil, errors.ErrInvalidConfidence.WithMessagef(
			"similarity threshold %v is outside [0.0, 1.0]", threshold,
		)
	}

	latest, err := store.collectLatest(ctx)
	if err != nil {
		return nil, err
	}

	report := &InsightReport{}

	for i := 0; i < len(latest); i++ {
		for j := i + 1; j < len(latest); j++ {
			a, b := latest[i], latest[j]
			report.Compared++

			similarity := CosineSimilarity(a.Embedding, b.Embedding)
			if similarity < threshold {
				continue
			}

			existing, err := store.graph.EdgesBetween(ctx, a.ID, b.ID)
			if err != nil {
				return nil, errors.ErrStorageWrite.WithCause(err)
			}
			if len(existing) > 0 {
				report.Skipped++
				continue
			}

			rel, err := store.Relate(ctx, a.ID, b.ID, string(RelationshipDerive), similarity, map[string]any{
				"derived_by": "similarity",
			})
			if err != nil {
				return nil, err
			}

			log.Info("derived insight",
				"source", a.ID, "target", b.ID, "similarity", similarity)
			report.Created = append(report.Created, *rel)
		}
	}

	return report, nil
}

func validThreshold(t float64) bool {
	return t >= 0.0 && t <= 1.0
}

// insightPageSize bounds each ListNodes page during a DeriveInsights scan.
const insightPageSize = 200

func (store *Store) collectLatest(ctx context.Context) ([]*Memory, error) {
	var latest []*Memory

	for offset := 0; ; offset += insightPageSize {
		page, err := store.graph.ListNodes(ctx, insightPageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, node := range page {
			if !node.IsLatest {
				continue
			}

			hydrated, err := store.Get(ctx, node.ID)
			if err != nil {
				return nil, err
			}
			if len(hydrated.Embedding) == 0 {
				log.Warn("skipping memory with no recoverable embedding", "id", node.ID)
				continue
			}
			latest = append(latest, hydrated)
		}

		if len(page) < insightPageSize {
			break
		}
	}

	return latest, nil
}
