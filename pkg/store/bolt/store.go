package bolt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
)

const upsertNodeQuery = `
MERGE (n:RicgraphNode {_key: $key})
ON CREATE SET n.name = $name,
              n.category = $category,
              n.value = $value,
              n.created = $created,
              n._source = $sources,
              n._history = [],
              n._created_now = true
ON MATCH SET n._source = CASE
  WHEN $source = '' OR $source IN coalesce(n._source, []) THEN coalesce(n._source, [])
  ELSE coalesce(n._source, []) + $source
END
WITH n, coalesce(n._created_now, false) AS created
REMOVE n._created_now
RETURN n, created
`

func (s *Store) UpsertNode(ctx context.Context, name, category, value, source string) (*store.Node, bool, error) {
	sources := []any{}
	if source != "" {
		sources = append(sources, source)
	}
	records, err := s.run(ctx, upsertNodeQuery, map[string]any{
		"key":      store.KeyOf(name, value),
		"name":     name,
		"category": category,
		"value":    value,
		"source":   source,
		"sources":  sources,
		"created":  time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	n, err := nodeFromRecord(records[0], "n")
	if err != nil {
		return nil, false, err
	}
	created, _, _ := neo4j.GetRecordValue[bool](records[0], "created")
	return n, created, nil
}

const findNodeQuery = `
MATCH (n:RicgraphNode {_key: $key})
RETURN n
`

func (s *Store) FindNode(ctx context.Context, name, value string) (*store.Node, error) {
	records, err := s.run(ctx, findNodeQuery, map[string]any{
		"key": store.KeyOf(name, value),
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return nodeFromRecord(records[0], "n")
}

const createEdgeQuery = `
MATCH (a:RicgraphNode {_key: $a}), (b:RicgraphNode {_key: $b})
MERGE (a)-[r:LINKS_TO]-(b)
ON CREATE SET r._created_now = true
WITH r, coalesce(r._created_now, false) AS created
REMOVE r._created_now
RETURN created
`

func (s *Store) CreateEdge(ctx context.Context, a, b *store.Node) (bool, error) {
	if a.Key == b.Key {
		return false, nil
	}
	records, err := s.run(ctx, createEdgeQuery, map[string]any{
		"a": a.Key,
		"b": b.Key,
	})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	created, _, _ := neo4j.GetRecordValue[bool](records[0], "created")
	return created, nil
}

const neighborsQuery = `
MATCH (n:RicgraphNode {_key: $key})-[:LINKS_TO]-(m:RicgraphNode)
WHERE (size($names) = 0 OR m.name IN $names)
  AND (size($categories) = 0 OR m.category IN $categories)
RETURN DISTINCT m
ORDER BY m._key
`

func (s *Store) Neighbors(ctx context.Context, n *store.Node, filter store.NodeFilter) ([]*store.Node, error) {
	records, err := s.run(ctx, neighborsQuery, map[string]any{
		"key":        n.Key,
		"names":      toAnySlice(filter.Names),
		"categories": toAnySlice(filter.Categories),
	})
	if err != nil {
		return nil, err
	}
	out := make([]*store.Node, 0, len(records))
	for _, record := range records {
		nb, err := nodeFromRecord(record, "m")
		if err != nil {
			return nil, err
		}
		out = append(out, nb)
	}
	return out, nil
}

// Re-pointing runs as two statements: first the absorbed node's neighbors are
// connected to the surviving node (deduplicated by MERGE), then the absorbed
// node's own edges are dropped. The absorbed node itself stays until
// RetireNode.
const repointCreateQuery = `
MATCH (from:RicgraphNode {_key: $from})-[:LINKS_TO]-(other:RicgraphNode), (to:RicgraphNode {_key: $to})
WHERE other._key <> $to
WITH DISTINCT to, other
MERGE (to)-[r:LINKS_TO]-(other)
ON CREATE SET r._repointed = true
WITH r, coalesce(r._repointed, false) AS moved
REMOVE r._repointed
WITH moved
RETURN sum(CASE WHEN moved THEN 1 ELSE 0 END) AS moved
`

const repointDropQuery = `
MATCH (from:RicgraphNode {_key: $from})-[r:LINKS_TO]-()
DELETE r
`

func (s *Store) RepointEdges(ctx context.Context, from, to *store.Node) (int, error) {
	records, err := s.run(ctx, repointCreateQuery, map[string]any{
		"from": from.Key,
		"to":   to.Key,
	})
	if err != nil {
		return 0, err
	}
	moved := 0
	if len(records) > 0 {
		if v, _, err := neo4j.GetRecordValue[int64](records[0], "moved"); err == nil {
			moved = int(v)
		}
	}
	if _, err := s.run(ctx, repointDropQuery, map[string]any{"from": from.Key}); err != nil {
		return moved, err
	}
	return moved, nil
}

// RetireNode deletes without DETACH: a node that still carries edges makes
// the statement fail instead of silently cascading.
const retireNodeQuery = `
MATCH (n:RicgraphNode {_key: $key})
DELETE n
`

func (s *Store) RetireNode(ctx context.Context, n *store.Node) error {
	_, err := s.run(ctx, retireNodeQuery, map[string]any{"key": n.Key})
	return err
}

const appendHistoryQuery = `
MATCH (n:RicgraphNode {_key: $key})
SET n._history = coalesce(n._history, []) + $event
`

func (s *Store) AppendHistory(ctx context.Context, n *store.Node, e store.Event) error {
	encoded, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.run(ctx, appendHistoryQuery, map[string]any{
		"key":   n.Key,
		"event": string(encoded),
	})
	return err
}

const appendSourceQuery = `
MATCH (n:RicgraphNode {_key: $key})
WHERE NOT $source IN coalesce(n._source, [])
SET n._source = coalesce(n._source, []) + $source
RETURN n._key
`

func (s *Store) AppendSource(ctx context.Context, n *store.Node, source string) (bool, error) {
	if source == "" {
		return false, nil
	}
	records, err := s.run(ctx, appendSourceQuery, map[string]any{
		"key":    n.Key,
		"source": source,
	})
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

const nodesByCategoryQuery = `
MATCH (n:RicgraphNode {category: $category})
RETURN n
ORDER BY n.created, n._key
`

func (s *Store) NodesByCategory(ctx context.Context, category string) ([]*store.Node, error) {
	records, err := s.run(ctx, nodesByCategoryQuery, map[string]any{"category": category})
	if err != nil {
		return nil, err
	}
	out := make([]*store.Node, 0, len(records))
	for _, record := range records {
		n, err := nodeFromRecord(record, "n")
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

const countNodesQuery = `
MATCH (n:RicgraphNode)
RETURN count(n) AS total
`

func (s *Store) CountNodes(ctx context.Context) (int64, error) {
	records, err := s.run(ctx, countNodesQuery, nil)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	total, _, err := neo4j.GetRecordValue[int64](records[0], "total")
	if err != nil {
		return 0, err
	}
	return total, nil
}

// DeleteChunk removes a bounded batch per call. Emptying the whole graph in
// one DETACH DELETE is the documented failure mode on large graphs, so the
// caller loops over chunks instead.
const deleteChunkQuery = `
MATCH (n:RicgraphNode)
WITH n LIMIT $limit
DETACH DELETE n
RETURN count(*) AS deleted
`

func (s *Store) DeleteChunk(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	records, err := s.run(ctx, deleteChunkQuery, map[string]any{"limit": limit})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	deleted, _, err := neo4j.GetRecordValue[int64](records[0], "deleted")
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

func nodeFromRecord(record *neo4j.Record, key string) (*store.Node, error) {
	raw, _, err := neo4j.GetRecordValue[dbtype.Node](record, key)
	if err != nil {
		return nil, err
	}
	n := &store.Node{
		Name:     stringProp(raw, "name"),
		Category: stringProp(raw, "category"),
		Value:    stringProp(raw, "value"),
		Key:      stringProp(raw, "_key"),
	}
	if created, ok := raw.Props["created"].(int64); ok {
		n.Created = time.UnixMilli(created)
	}
	if sources, ok := raw.Props["_source"].([]any); ok {
		for _, src := range sources {
			if s, ok := src.(string); ok {
				n.Sources = append(n.Sources, s)
			}
		}
	}
	if history, ok := raw.Props["_history"].([]any); ok {
		for _, entry := range history {
			s, ok := entry.(string)
			if !ok {
				continue
			}
			var e store.Event
			if err := json.Unmarshal([]byte(s), &e); err != nil {
				continue
			}
			n.History = append(n.History, e)
		}
	}
	return n, nil
}

func stringProp(n dbtype.Node, key string) string {
	if v, ok := n.Props[key].(string); ok {
		return v
	}
	return ""
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
