package memory

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/recall/pkg/errors"
)

/*
Snapshot is a portable dump of the whole engine: every memory with its
embedding plus every relationship. It is what the snapshot store writes to
and restores from object storage.
*/
type Snapshot struct {
	Memories      []*Memory      `json:"memories"`
	Relationships []Relationship `json:"relationships"`
}

// exportPageSize bounds each ListNodes page during an export.
const exportPageSize = 200

/*
Export walks the graph and produces a snapshot. Embeddings are hydrated so
a restore does not depend on an embedding backend being available.
*/
func (store *Store) Export(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{}
	seenEdges := map[string]bool{}

	for offset := 0; ; offset += exportPageSize {
		page, err := store.graph.ListNodes(ctx, exportPageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, node := range page {
			hydrated, err := store.Get(ctx, node.ID)
			if err != nil {
				return nil, err
			}
			snapshot.Memories = append(snapshot.Memories, hydrated)

			edges, err := store.graph.OutEdges(ctx, node.ID, nil, 0)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				if seenEdges[edge.ID] {
					continue
				}
				seenEdges[edge.ID] = true
				snapshot.Relationships = append(snapshot.Relationships, edge)
			}
		}

		if len(page) < exportPageSize {
			break
		}
	}

	return snapshot, nil
}

/*
Import writes a snapshot into the backing stores. Memories carrying an
embedding go straight in; those without one are re-embedded. Edges whose
endpoints failed to import are skipped with a log line rather than aborting
the whole restore.
*/
func (store *Store) Import(ctx context.Context, snapshot *Snapshot) error {
	for _, mem := range snapshot.Memories {
		if len(mem.Embedding) == 0 {
			vector, err := store.embedder.Embed(ctx, mem.Content)
			if err != nil {
				return upstream(err, errors.ErrEmbeddingUnavailable)
			}
			mem.Embedding = vector
		}

		if err := store.writeBoth(ctx, mem); err != nil {
			return err
		}
	}

	for i := range snapshot.Relationships {
		edge := snapshot.Relationships[i]

		if err := store.graph.CreateEdge(ctx, &edge); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				log.Warn("skipping relationship with missing endpoint",
					"id", edge.ID, "source", edge.SourceID, "target", edge.TargetID)
				continue
			}
			return errors.ErrStorageWrite.WithCause(err)
		}
	}

	return nil
}
