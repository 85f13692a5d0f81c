package memory

import (
	"context"
	"testing"

	"github.com/theapemachine/recall/pkg/errors"
)

// timeoutVectorIndex simulates a vector backend whose queries blow their
// deadline.
type timeoutVectorIndex struct {
	*LocalVectorIndex
}

func (idx timeoutVectorIndex) Query(ctx context.Context, vector []float32, n int) ([]ScoredID, error) {
	return nil, context.DeadlineExceeded
}

func buildChain(t *testing.T, store *Store) (*Memory, *Memory, *Memory) {
	t.Helper()
	ctx := context.Background()

	v1, err := store.Create(ctx, "project uses postgres", nil, "", "")
	if err != nil {
		t.Fatal(err)
	}

	second := "project uses postgres 15"
	v2, err := store.Update(ctx, v1.ID, &second, nil)
	if err != nil {
		t.Fatal(err)
	}

	third := "project uses postgres 16"
	v3, err := store.Update(ctx, v2.ID, &third, nil)
	if err != nil {
		t.Fatal(err)
	}

	return v1, v2, v3
}

func TestLineage(t *testing.T) {
	ctx := context.Background()

	t.Run("full chain from the root", func(t *testing.T) {
		store, _, _ := newTestStore(&stubEmbedder{})
		v1, v2, v3 := buildChain(t, store)

		chain, err := store.Lineage(ctx, v1.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chain) != 3 {
			t.Fatalf("expected 3 versions, got %d", len(chain))
		}
		if chain[0].ID != v1.ID || chain[1].ID != v2.ID || chain[2].ID != v3.ID {
			t.Error("lineage must be ordered oldest first")
		}
	})

	t.Run("only forward from a mid-chain member", func(t *testing.T) {
		store, _, _ := newTestStore(&stubEmbedder{})
		_, v2, v3 := buildChain(t, store)

		chain, err := store.Lineage(ctx, v2.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chain) != 2 {
			t.Fatalf("expected 2 versions, got %d", len(chain))
		}
		if chain[0].ID != v2.ID || chain[1].ID != v3.ID {
			t.Error("lineage must start at the given memory")
		}
	})

	t.Run("head is its own lineage", func(t *testing.T) {
		store, _, _ := newTestStore(&stubEmbedder{})
		_, _, v3 := buildChain(t, store)

		chain, err := store.Lineage(ctx, v3.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chain) != 1 || chain[0].ID != v3.ID {
			t.Fatalf("expected just the head, got %d members", len(chain))
		}
		if !chain[0].IsLatest {
			t.Error("the head must be the latest version")
		}
	})

	t.Run("exactly one latest per chain", func(t *testing.T) {
		store, _, _ := newTestStore(&stubEmbedder{})
		v1, _, v3 := buildChain(t, store)

		chain, err := store.Lineage(ctx, v1.ID)
		if err != nil {
			t.Fatal(err)
		}

		latest := 0
		for _, mem := range chain {
			if mem.IsLatest {
				latest++
				if mem.ID != v3.ID {
					t.Errorf("wrong head: %s", mem.ID)
				}
			}
		}
		if latest != 1 {
			t.Errorf("expected exactly one latest, got %d", latest)
		}
	})

	t.Run("standalone memory", func(t *testing.T) {
		store, _, _ := newTestStore(&stubEmbedder{})
		solo, err := store.Create(ctx, "no relatives", nil, "", "")
		if err != nil {
			t.Fatal(err)
		}

		chain, err := store.Lineage(ctx, solo.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(chain) != 1 || chain[0].ID != solo.ID {
			t.Errorf("expected a single-entry lineage, got %d", len(chain))
		}
	})
}

func TestShortestPath(t *testing.T) {
	ctx := context.Background()

	t.Run("finds a chain", func(t *testing.T) {
		store, _, _ := newTestStore(&stubEmbedder{})

		a, _ := store.Create(ctx, "alpha", nil, "", "")
		b, _ := store.Create(ctx, "beta", nil, "", "")
		c, _ := store.Create(ctx, "gamma", nil, "", "")
		store.Relate(ctx, a.ID, b.ID, "EXTEND", 0.9, nil)
		store.Relate(ctx, b.ID, c.ID, "EXTEND", 0.9, nil)

		path, err := store.ShortestPath(ctx, a.ID, c.ID, PathOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if path == nil {
			t.Fatal("expected a path")
		}
		if len(path.Nodes) != 3 || len(path.Edges) != 2 {
			t.Errorf("expected 3 nodes and 2 edges, got %d/%d", len(path.Nodes), len(path.Edges))
		}
		if path.Nodes[0].ID != a.ID || path.Nodes[2].ID != c.ID {
			t.Error("path endpoints are wrong")
		}
	})

	t.Run("confidence threshold blocks weak edges", func(t *testing.T) {
		store, _, _ := newTestStore(&stubEmbedder{})

		a, _ := store.Create(ctx, "alpha", nil, "", "")
		b, _ := store.Create(ctx, "beta", nil, "", "")
		store.Relate(ctx, a.ID, b.ID, "DERIVE", 0.3, nil)

		path, err := store.ShortestPath(ctx, a.ID, b.ID, PathOptions{MinConfidence: 0.5})
		if err != nil {
			t.Fatal(err)
		}
		if path != nil {
			t.Error("weak edge should not be crossed")
		}
	})

	t.Run("no path within hop limit", func(t *testing.T) {
		store, _, _ := newTestStore(&stubEmbedder{})

		a, _ := store.Create(ctx, "island one", nil, "", "")
		b, _ := store.Create(ctx, "island two", nil, "", "")

		path, err := store.ShortestPath(ctx, a.ID, b.ID, PathOptions{MaxHops: 3})
		if err != nil {
			t.Fatal(err)
		}
		if path != nil {
			t.Error("disconnected nodes must yield nil")
		}
	})
}

func TestMultiHop(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(&stubEmbedder{})

	seed, _ := store.Create(ctx, "seed memory", nil, "", "")
	one, _ := store.Create(ctx, "one hop away", nil, "", "")
	two, _ := store.Create(ctx, "two hops away", nil, "", "")
	store.Relate(ctx, seed.ID, one.ID, "EXTEND", 0.9, nil)
	store.Relate(ctx, one.ID, two.ID, "EXTEND", 0.9, nil)

	results, err := store.MultiHop(ctx, MultiHopOptions{StartID: seed.ID, MaxHops: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Memory.ID != one.ID || results[0].HopCount != 1 {
		t.Errorf("first result should be one hop: %+v", results[0])
	}
	if results[1].Memory.ID != two.ID || results[1].HopCount != 2 {
		t.Errorf("second result should be two hops: %+v", results[1])
	}

	t.Run("respects hop cap", func(t *testing.T) {
		capped, err := store.MultiHop(ctx, MultiHopOptions{StartID: seed.ID, MaxHops: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(capped) != 1 {
			t.Errorf("expected 1 result at one hop, got %d", len(capped))
		}
	})

	t.Run("seed search timeout maps to upstream timeout", func(t *testing.T) {
		slow := NewStore(
			&stubEmbedder{},
			timeoutVectorIndex{NewLocalVectorIndex()},
			NewLocalGraphStore(),
		)

		_, err := slow.MultiHop(ctx, MultiHopOptions{Query: "anything"})
		if !errors.Is(err, errors.ErrUpstreamTimeout) {
			t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
		}
	})

	t.Run("superseded neighbors are hidden", func(t *testing.T) {
		revised := "one hop away, revised"
		if _, err := store.Update(ctx, one.ID, &revised, nil); err != nil {
			t.Fatal(err)
		}

		results, err := store.MultiHop(ctx, MultiHopOptions{StartID: seed.ID, MaxHops: 1})
		if err != nil {
			t.Fatal(err)
		}
		for _, hit := range results {
			if hit.Memory.ID == one.ID {
				t.Error("old version leaked into multi-hop results")
			}
		}
	})
}

func TestDeriveInsights(t *testing.T) {
	ctx := context.Background()

	similar := []float32{1, 0, 0, 0}
	nearby := []float32{0.95, 0.3122, 0, 0}
	distant := []float32{0, 0, 1, 0}

	embedder := &stubEmbedder{vectors: map[string][]float32{
		"coffee keeps me awake": similar,
		"espresso is strong":    nearby,
		"the moon is far away":  distant,
	}}
	store, _, graph := newTestStore(embedder)

	a, _ := store.Create(ctx, "coffee keeps me awake", nil, "", "")
	b, _ := store.Create(ctx, "espresso is strong", nil, "", "")
	store.Create(ctx, "the moon is far away", nil, "", "")

	report, err := store.DeriveInsights(ctx, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Created) != 1 {
		t.Fatalf("expected one derived edge, got %d", len(report.Created))
	}

	rel := report.Created[0]
	if rel.Type != RelationshipDerive {
		t.Errorf("expected DERIVE, got %s", rel.Type)
	}
	if rel.Confidence < 0.9 || rel.Confidence > 1.0 {
		t.Errorf("confidence should equal the similarity, got %v", rel.Confidence)
	}

	edges, err := graph.EdgesBetween(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Errorf("expected the edge persisted, got %d", len(edges))
	}

	t.Run("second pass skips existing pairs", func(t *testing.T) {
		report, err := store.DeriveInsights(ctx, 0.9)
		if err != nil {
			t.Fatal(err)
		}
		if len(report.Created) != 0 {
			t.Errorf("expected no new edges, got %d", len(report.Created))
		}
		if report.Skipped == 0 {
			t.Error("expected the connected pair to be counted as skipped")
		}
	})

	t.Run("rejects out-of-range threshold", func(t *testing.T) {
		if _, err := store.DeriveInsights(ctx, 1.5); err == nil {
			t.Error("expected an error for threshold above 1")
		}
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("clean stores", func(t *testing.T) {
		store, _, _ := newTestStore(&stubEmbedder{})
		store.Create(ctx, "in sync", nil, "", "")

		report, err := store.Reconcile(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !report.Clean() {
			t.Errorf("expected a clean report, got %+v", report)
		}
	})

	t.Run("removes orphaned vectors", func(t *testing.T) {
		store, vectors, _ := newTestStore(&stubEmbedder{})
		vectors.Upsert(ctx, "orphan-1", []float32{1, 0}, nil)

		report, err := store.Reconcile(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(report.OrphanedVectors) != 1 {
			t.Fatalf("expected one orphan removed, got %d", len(report.OrphanedVectors))
		}
		if _, err := vectors.Get(ctx, "orphan-1"); err == nil {
			t.Error("orphan vector still present")
		}
	})

	t.Run("re-indexes missing vectors", func(t *testing.T) {
		store, vectors, _ := newTestStore(&stubEmbedder{})
		created, _ := store.Create(ctx, "lost my vector", nil, "", "")
		vectors.Delete(ctx, created.ID)

		report, err := store.Reconcile(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(report.Reindexed) != 1 || report.Reindexed[0] != created.ID {
			t.Fatalf("expected one re-indexed id, got %+v", report.Reindexed)
		}
		if _, err := vectors.Get(ctx, created.ID); err != nil {
			t.Errorf("vector should be back: %v", err)
		}
	})
}

func TestRepairLineage(t *testing.T) {
	ctx := context.Background()

	t.Run("promotes a headless lineage", func(t *testing.T) {
		store, _, graph := newTestStore(&stubEmbedder{})
		_, _, v3 := buildChain(t, store)

		// Simulate a crash that demoted the head without a successor.
		if err := graph.SetNodeFields(ctx, v3.ID, map[string]any{"is_latest": false}); err != nil {
			t.Fatal(err)
		}

		report, err := store.RepairLineage(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(report.Promoted) != 1 || report.Promoted[0] != v3.ID {
			t.Fatalf("expected %s promoted, got %+v", v3.ID, report.Promoted)
		}

		head, _ := graph.GetNode(ctx, v3.ID)
		if !head.IsLatest {
			t.Error("head was not restored")
		}
	})

	t.Run("demotes a stale head", func(t *testing.T) {
		store, _, graph := newTestStore(&stubEmbedder{})
		v1, _, v3 := buildChain(t, store)

		if err := graph.SetNodeFields(ctx, v1.ID, map[string]any{"is_latest": true}); err != nil {
			t.Fatal(err)
		}

		report, err := store.RepairLineage(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(report.Demoted) != 1 || report.Demoted[0] != v1.ID {
			t.Fatalf("expected %s demoted, got %+v", v1.ID, report.Demoted)
		}

		head, _ := graph.GetNode(ctx, v3.ID)
		if !head.IsLatest {
			t.Error("true head lost latest flag")
		}
	})
}
