package memory

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/recall/pkg/errors"
)

/*
ReconcileReport summarizes one consistency pass over the two stores.
*/
type ReconcileReport struct {
	GraphNodes      int      `json:"graph_nodes"`
	VectorPoints    int      `json:"vector_points"`
	OrphanedVectors []string `json:"orphaned_vectors,omitempty"`
	Reindexed       []string `json:"reindexed,omitempty"`
	Failures        []string `json:"failures,omitempty"`
}

/*
Clean reports whether the pass found the stores already in agreement.
*/
func (r *ReconcileReport) Clean() bool {
	return len(r.OrphanedVectors) == 0 && len(r.Reindexed) == 0 && len(r.Failures) == 0
}

/*
Reconcile diffs the id sets of the graph store and the vector index and
repairs the drift in the direction of the graph, which is authoritative:
vectors without a node are deleted, nodes without a vector are re-embedded
and re-indexed. Individual repair failures are recorded in the report
instead of aborting the pass.
*/
func (store *Store) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	graphIDs, err := store.graph.ListIDs(ctx)
	if err != nil {
		return nil, errors.ErrConsistencyFault.WithCause(err)
	}

	vectorIDs, err := store.vectors.ListIDs(ctx)
	if err != nil {
		return nil, errors.ErrConsistencyFault.WithCause(err)
	}

	inGraph := make(map[string]bool, len(graphIDs))
	for _, id := range graphIDs {
		inGraph[id] = true
	}
	inVectors := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		inVectors[id] = true
	}

	report := &ReconcileReport{
		GraphNodes:   len(graphIDs),
		VectorPoints: len(vectorIDs),
	}

	for _, id := range vectorIDs {
		if inGraph[id] {
			continue
		}

		if err := store.vectors.Delete(ctx, id); err != nil {
			log.Error("failed to remove orphaned vector", "id", id, "error", err)
			report.Failures = append(report.Failures, id)
			continue
		}

		log.Info("removed orphaned vector", "id", id)
		report.OrphanedVectors = append(report.OrphanedVectors, id)
	}

	for _, id := range graphIDs {
		if inVectors[id] {
			continue
		}

		if err := store.reindex(ctx, id); err != nil {
			log.Error("failed to re-index memory", "id", id, "error", err)
			report.Failures = append(report.Failures, id)
			continue
		}

		log.Info("re-indexed memory missing from vector index", "id", id)
		report.Reindexed = append(report.Reindexed, id)
	}

	return report, nil
}

func (store *Store) reindex(ctx context.Context, id string) error {
	mem, err := store.graph.GetNode(ctx, id)
	if err != nil {
		return err
	}

	vector, err := store.embedder.Embed(ctx, mem.Content)
	if err != nil {
		return upstream(err, errors.ErrEmbeddingUnavailable)
	}

	return store.vectors.Upsert(ctx, id, vector, vectorPayload(mem))
}

/*
LineageRepairReport summarizes one RepairLineage pass.
*/
type LineageRepairReport struct {
	Lineages int      `json:"lineages"`
	Promoted []string `json:"promoted,omitempty"`
	Demoted  []string `json:"demoted,omitempty"`
}

/*
RepairLineage restores the one-head-per-lineage rule after a crash between
the steps of a versioned update. Memories are grouped into lineages by
their UPDATE chains; a lineage with no latest member gets its newest member
promoted, a lineage with several keeps only the newest.
*/
func (store *Store) RepairLineage(ctx context.Context) (*LineageRepairReport, error) {
	ids, err := store.graph.ListIDs(ctx)
	if err != nil {
		return nil, errors.ErrConsistencyFault.WithCause(err)
	}

	// Union nodes joined by UPDATE edges into lineages.
	parent := make(map[string]string, len(ids))
	for _, id := range ids {
		parent[id] = id
	}

	var find func(string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}

	for _, id := range ids {
		edges, err := store.graph.OutEdges(ctx, id, []RelationshipType{RelationshipUpdate}, 0)
		if err != nil {
			return nil, errors.ErrConsistencyFault.WithCause(err)
		}
		for _, edge := range edges {
			if _, ok := parent[edge.TargetID]; !ok {
				continue
			}
			parent[find(id)] = find(edge.TargetID)
		}
	}

	lineages := map[string][]*Memory{}
	for _, id := range ids {
		mem, err := store.graph.GetNode(ctx, id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		root := find(id)
		lineages[root] = append(lineages[root], mem)
	}

	report := &LineageRepairReport{Lineages: len(lineages)}

	for _, members := range lineages {
		sort.Slice(members, func(i, j int) bool {
			if members[i].Version != members[j].Version {
				return members[i].Version > members[j].Version
			}
			return members[i].CreatedAt.After(members[j].CreatedAt)
		})

		head := members[0]

		if !head.IsLatest {
			err := store.graph.SetNodeFields(ctx, head.ID, map[string]any{"is_latest": true})
			if err != nil {
				return nil, errors.ErrStorageWrite.WithCause(err)
			}
			log.Warn("promoted lineage head", "id", head.ID, "version", head.Version)
			report.Promoted = append(report.Promoted, head.ID)
		}

		for _, member := range members[1:] {
			if !member.IsLatest {
				continue
			}
			err := store.graph.SetNodeFields(ctx, member.ID, map[string]any{"is_latest": false})
			if err != nil {
				return nil, errors.ErrStorageWrite.WithCause(err)
			}
			log.Warn("demoted stale lineage head", "id", member.ID, "version", member.Version)
			report.Demoted = append(report.Demoted, member.ID)
		}
	}

	return report, nil
}
