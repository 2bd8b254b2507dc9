package ricgraph

import (
	"context"
	"fmt"

	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
)

// Read-only traversal queries consumed by exploration layers. They never
// modify the graph.

// TraversalFilter restricts neighbor traversals with allow and deny lists on
// node name and category. Empty allow lists match everything; deny lists
// win over allow lists.
type TraversalFilter struct {
	NameAllow     []string
	NameDeny      []string
	CategoryAllow []string
	CategoryDeny  []string
}

func (f TraversalFilter) matches(n *store.Node) bool {
	if denied(f.NameDeny, n.Name) || denied(f.CategoryDeny, n.Category) {
		return false
	}
	return store.NodeFilter{Names: f.NameAllow, Categories: f.CategoryAllow}.Matches(n)
}

func denied(deny []string, s string) bool {
	for _, d := range deny {
		if d == s {
			return true
		}
	}
	return false
}

// AllPersonRoots returns every person-root node in the graph.
func (r *Resolver) AllPersonRoots(ctx context.Context) ([]*store.Node, error) {
	return r.store.NodesByCategory(ctx, CategoryPersonRoot)
}

// PersonRootsFrom returns the person-root nodes reachable from the node for
// (name, value) in one hop: the node itself if it is a root, otherwise the
// roots among its direct neighbors.
func (r *Resolver) PersonRootsFrom(ctx context.Context, name, value string) ([]*store.Node, error) {
	n, err := r.store.FindNode(ctx, name, value)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: no node for (%q, %q)", ErrInvalidInput, name, value)
	}
	if n.Category == CategoryPersonRoot {
		return []*store.Node{n}, nil
	}
	return r.store.Neighbors(ctx, n, store.NodeFilter{Categories: []string{CategoryPersonRoot}})
}

// NeighborNodes returns the direct neighbors of the node for (name, value)
// that pass the traversal filter.
func (r *Resolver) NeighborNodes(ctx context.Context, name, value string, filter TraversalFilter) ([]*store.Node, error) {
	n, err := r.store.FindNode(ctx, name, value)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: no node for (%q, %q)", ErrInvalidInput, name, value)
	}
	neighbors, err := r.store.Neighbors(ctx, n, store.NodeFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]*store.Node, 0, len(neighbors))
	for _, nb := range neighbors {
		if filter.matches(nb) {
			out = append(out, nb)
		}
	}
	return out, nil
}

// CountNodes reports the total number of nodes in the graph.
func (r *Resolver) CountNodes(ctx context.Context) (int64, error) {
	return r.store.CountNodes(ctx)
}
