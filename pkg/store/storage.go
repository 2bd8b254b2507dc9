package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrBackendUnavailable indicates the graph database could not be reached.
// It is fatal for the current harvest run; progress already committed to the
// graph remains valid.
var ErrBackendUnavailable = errors.New("graph backend unavailable")

// Identifier is a (name, value) pair asserted by a harvested record,
// e.g. (ORCID, "0000-0001-2345-6789") or (DOI, "10.1000/182").
type Identifier struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Event is an append-only history entry on a node. Merges and collision
// admissions are recorded as events on the surviving person-root.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Node is a typed node in the graph. Key is derived from (name, value) and
// immutable; Sources is an ordered set of provenance tags.
type Node struct {
	Name     string    `json:"name"`
	Category string    `json:"category"`
	Value    string    `json:"value"`
	Key      string    `json:"key"`
	Sources  []string  `json:"sources"`
	History  []Event   `json:"history"`
	Created  time.Time `json:"created"`
}

// KeyOf derives the deterministic identity key for a (name, value) pair.
// Keys are case-insensitive so that re-harvested values with differing case
// map to the same node.
func KeyOf(name, value string) string {
	return strings.ToLower(value) + "|" + strings.ToLower(name)
}

// NodeFilter restricts a neighbor traversal. Empty slices match everything.
type NodeFilter struct {
	Names      []string
	Categories []string
}

// Matches reports whether n passes the filter.
func (f NodeFilter) Matches(n *Node) bool {
	if len(f.Names) > 0 && !contains(f.Names, n.Name) {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, n.Category) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// NodeStore is the contract the identity resolver consumes from the graph
// database backend. The only transactional assumption is atomic
// upsert-or-fetch semantics per node; there is no cross-record transaction
// boundary.
//
// Merging never relies on a generic cascading delete: edges of an absorbed
// node are re-pointed explicitly with RepointEdges and the node is then
// retired with RetireNode.
type NodeStore interface {
	// UpsertNode creates the node for (name, value) or returns the existing
	// one, appending source to its provenance set. The second result reports
	// whether the node was created by this call.
	UpsertNode(ctx context.Context, name, category, value, source string) (*Node, bool, error)

	// FindNode returns the node for (name, value), or nil when absent.
	FindNode(ctx context.Context, name, value string) (*Node, error)

	// CreateEdge connects a and b. Edges are undirected and deduplicated;
	// the result reports whether a new edge was created.
	CreateEdge(ctx context.Context, a, b *Node) (bool, error)

	// Neighbors returns the nodes directly connected to n that pass filter.
	Neighbors(ctx context.Context, n *Node, filter NodeFilter) ([]*Node, error)

	// RepointEdges moves every edge of from onto to, deduplicating against
	// edges to already has. Returns the number of edges moved.
	RepointEdges(ctx context.Context, from, to *Node) (int, error)

	// RetireNode removes a node that no longer carries edges.
	RetireNode(ctx context.Context, n *Node) error

	// AppendHistory appends a lifecycle event to the node.
	AppendHistory(ctx context.Context, n *Node, e Event) error

	// AppendSource adds a provenance tag if not already present.
	AppendSource(ctx context.Context, n *Node, source string) (bool, error)

	// NodesByCategory returns all nodes of the given category.
	NodesByCategory(ctx context.Context, category string) ([]*Node, error)

	// CountNodes returns the total number of nodes.
	CountNodes(ctx context.Context) (int64, error)

	// DeleteChunk deletes up to limit nodes with their edges and returns the
	// number deleted. Emptying a graph is a loop over DeleteChunk so that
	// memory stays bounded regardless of graph size.
	DeleteChunk(ctx context.Context, limit int) (int, error)

	// TryLease atomically acquires the named lease for ttl if it is free or
	// expired, or already held by token.
	TryLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// RenewLease extends the lease if still held by token.
	RenewLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// ReleaseLease frees the lease if held by token.
	ReleaseLease(ctx context.Context, key, token string) error

	Close(ctx context.Context) error
}
