package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

// memoryColumns is the positional RETURN list every node query uses, so one
// parser serves them all.
const memoryColumns = "m.id, m.content, m.metadata, m.created_at, m.updated_at, m.version, m.is_latest, m.source_type, m.source_id"

// edgeColumns is the positional RETURN list for relationship queries.
const edgeColumns = "r.id, startNode(r).id, endNode(r).id, type(r), r.confidence, r.metadata, r.created_at"

/*
CreateNode persists a memory as a :Memory node. The metadata envelope is
stored as a JSON string because Neo4j properties cannot hold nested maps.
*/
func (client *Client) CreateNode(ctx context.Context, m *memory.Memory) error {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return err
	}

	_, err = client.ExecCypher(ctx, `
		CREATE (m:Memory {
			id: $id, content: $content, metadata: $metadata,
			created_at: $created_at, updated_at: $updated_at,
			version: $version, is_latest: $is_latest,
			source_type: $source_type, source_id: $source_id
		})`,
		map[string]any{
			"id":          m.ID,
			"content":     m.Content,
			"metadata":    string(meta),
			"created_at":  m.CreatedAt.Format(time.RFC3339Nano),
			"updated_at":  m.UpdatedAt.Format(time.RFC3339Nano),
			"version":     m.Version,
			"is_latest":   m.IsLatest,
			"source_type": m.SourceType,
			"source_id":   m.SourceID,
		})

	return err
}

/*
GetNode returns a node by id, or ErrNotFound.
*/
func (client *Client) GetNode(ctx context.Context, id string) (*memory.Memory, error) {
	rows, err := client.ExecCypher(ctx,
		"MATCH (m:Memory {id: $id}) RETURN "+memoryColumns,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, errors.ErrNotFound.WithMessagef("memory not found: %s", id)
	}

	return parseMemoryRow(rows[0])
}

func parseMemoryRow(r row) (*memory.Memory, error) {
	if len(r) < 9 {
		return nil, fmt.Errorf("neo4j: short memory row: %d columns", len(r))
	}

	return &memory.Memory{
		ID:         asString(r[0]),
		Content:    asString(r[1]),
		Metadata:   asMeta(r[2]),
		CreatedAt:  asTime(r[3]),
		UpdatedAt:  asTime(r[4]),
		Version:    asInt(r[5]),
		IsLatest:   asBool(r[6]),
		SourceType: asString(r[7]),
		SourceID:   asString(r[8]),
	}, nil
}

/*
SetNodeFields patches mutable node properties in place. Metadata maps are
flattened to their JSON string form before being sent.
*/
func (client *Client) SetNodeFields(ctx context.Context, id string, fields map[string]any) error {
	props := make(map[string]any, len(fields))

	for key, value := range fields {
		if meta, ok := value.(map[string]any); ok {
			b, err := json.Marshal(meta)
			if err != nil {
				return err
			}
			props[key] = string(b)
			continue
		}
		props[key] = value
	}

	rows, err := client.ExecCypher(ctx,
		"MATCH (m:Memory {id: $id}) SET m += $props RETURN m.id",
		map[string]any{"id": id, "props": props})
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return errors.ErrNotFound.WithMessagef("memory not found: %s", id)
	}

	return nil
}

/*
DeleteNodeCascade removes a node and every incident relationship, reporting
whether the node existed.
*/
func (client *Client) DeleteNodeCascade(ctx context.Context, id string) (bool, error) {
	rows, err := client.ExecCypher(ctx,
		"MATCH (m:Memory {id: $id}) DETACH DELETE m RETURN 1",
		map[string]any{"id": id})
	if err != nil {
		return false, err
	}

	return len(rows) > 0, nil
}

/*
CreateEdge persists a relationship. The edge label is interpolated into the
statement, which is safe only because the type has already passed the
closed-set check; it is re-validated here anyway.
*/
func (client *Client) CreateEdge(ctx context.Context, rel *memory.Relationship) error {
	relType, err := memory.ParseRelationshipType(string(rel.Type))
	if err != nil {
		return err
	}

	meta, err := json.Marshal(rel.Metadata)
	if err != nil {
		return err
	}

	rows, err := client.ExecCypher(ctx, fmt.Sprintf(`
		MATCH (a:Memory {id: $source}), (b:Memory {id: $target})
		CREATE (a)-[r:%s {
			id: $rel_id, confidence: $confidence,
			metadata: $metadata, created_at: $created_at
		}]->(b)
		RETURN r.id`, relType),
		map[string]any{
			"source":     rel.SourceID,
			"target":     rel.TargetID,
			"rel_id":     rel.ID,
			"confidence": rel.Confidence,
			"metadata":   string(meta),
			"created_at": rel.CreatedAt.Format(time.RFC3339Nano),
		})
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return errors.ErrNotFound.WithMessagef(
			"relationship endpoints missing: %s -> %s", rel.SourceID, rel.TargetID,
		)
	}

	return nil
}

// edgePattern builds the label alternation for a traversal, validating every
// type so caller input can never reach the statement text.
func edgePattern(types []memory.RelationshipType) (string, error) {
	if len(types) == 0 {
		types = memory.AllRelationshipTypes()
	}

	labels := make([]string, 0, len(types))
	for _, t := range types {
		validated, err := memory.ParseRelationshipType(string(t))
		if err != nil {
			return "", err
		}
		labels = append(labels, string(validated))
	}

	return strings.Join(labels, "|"), nil
}

/*
OutEdges returns the outgoing edges of a node, restricted by type and
minimum confidence.
*/
func (client *Client) OutEdges(
	ctx context.Context, id string, types []memory.RelationshipType, minConfidence float64,
) ([]memory.Relationship, error) {
	pattern, err := edgePattern(types)
	if err != nil {
		return nil, err
	}

	rows, err := client.ExecCypher(ctx, fmt.Sprintf(`
		MATCH (a:Memory {id: $id})-[r:%s]->(:Memory)
		WHERE r.confidence >= $min_confidence
		RETURN %s`, pattern, edgeColumns),
		map[string]any{"id": id, "min_confidence": minConfidence})
	if err != nil {
		return nil, err
	}

	return parseEdgeRows(rows)
}

/*
EdgesBetween returns every edge touching node a, in either direction,
optionally restricted to the far endpoint b. An empty b matches any.
*/
func (client *Client) EdgesBetween(ctx context.Context, a, b string) ([]memory.Relationship, error) {
	cypher := "MATCH (a:Memory {id: $a})-[r]-(:Memory) RETURN " + edgeColumns
	params := map[string]any{"a": a}

	if b != "" {
		cypher = "MATCH (a:Memory {id: $a})-[r]-(b:Memory {id: $b}) RETURN " + edgeColumns
		params["b"] = b
	}

	rows, err := client.ExecCypher(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	return parseEdgeRows(rows)
}

func parseEdgeRows(rows []row) ([]memory.Relationship, error) {
	edges := make([]memory.Relationship, 0, len(rows))

	for _, r := range rows {
		if len(r) < 7 {
			return nil, fmt.Errorf("neo4j: short edge row: %d columns", len(r))
		}

		edges = append(edges, memory.Relationship{
			ID:         asString(r[0]),
			SourceID:   asString(r[1]),
			TargetID:   asString(r[2]),
			Type:       memory.RelationshipType(asString(r[3])),
			Confidence: asFloat(r[4]),
			Metadata:   asMeta(r[5]),
			CreatedAt:  asTime(r[6]),
		})
	}

	return edges, nil
}

/*
ListNodes pages through nodes newest first.
*/
func (client *Client) ListNodes(ctx context.Context, limit, offset int) ([]*memory.Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := client.ExecCypher(ctx,
		"MATCH (m:Memory) RETURN "+memoryColumns+" ORDER BY m.created_at DESC SKIP $offset LIMIT $limit",
		map[string]any{"offset": offset, "limit": limit})
	if err != nil {
		return nil, err
	}

	nodes := make([]*memory.Memory, 0, len(rows))
	for _, r := range rows {
		node, err := parseMemoryRow(r)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

/*
ListIDs returns every node id, for reconciliation scans.
*/
func (client *Client) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := client.ExecCypher(ctx, "MATCH (m:Memory) RETURN m.id", nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if len(r) > 0 {
			ids = append(ids, asString(r[0]))
		}
	}

	return ids, nil
}

/*
Stats summarizes node and per-type edge counts.
*/
func (client *Client) Stats(ctx context.Context) (*memory.GraphStats, error) {
	rows, err := client.ExecCypher(ctx, `
		MATCH (m:Memory)
		RETURN count(m), sum(CASE WHEN m.is_latest THEN 1 ELSE 0 END)`, nil)
	if err != nil {
		return nil, err
	}

	stats := &memory.GraphStats{Relationships: map[memory.RelationshipType]int{}}
	if len(rows) > 0 && len(rows[0]) >= 2 {
		stats.TotalMemories = asInt(rows[0][0])
		stats.LatestMemories = asInt(rows[0][1])
	}

	rows, err = client.ExecCypher(ctx,
		"MATCH (:Memory)-[r]->(:Memory) RETURN type(r), count(r)", nil)
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		stats.Relationships[memory.RelationshipType(asString(r[0]))] = asInt(r[1])
	}

	return stats, nil
}
