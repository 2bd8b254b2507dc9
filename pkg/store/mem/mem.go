// Package mem provides an in-memory NodeStore used by tests and dry runs.
// It mirrors the semantics of the bolt backend: atomic upsert-or-fetch,
// deduplicated undirected edges, explicit re-point+retire merging, chunked
// deletion and TTL leases.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
)

type lease struct {
	token   string
	expires time.Time
}

// Store is a mutex-guarded in-memory graph.
type Store struct {
	mu     sync.Mutex
	nodes  map[string]*store.Node
	edges  map[string]map[string]bool
	order  []string
	leases map[string]lease

	// Now is the clock used for node creation timestamps and lease expiry.
	// Tests may replace it to control merge tie-breaks.
	Now func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		nodes:  make(map[string]*store.Node),
		edges:  make(map[string]map[string]bool),
		leases: make(map[string]lease),
		Now:    time.Now,
	}
}

func (s *Store) UpsertNode(ctx context.Context, name, category, value, source string) (*store.Node, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := store.KeyOf(name, value)
	if n, ok := s.nodes[key]; ok {
		if source != "" {
			appendSource(n, source)
		}
		return clone(n), false, nil
	}

	n := &store.Node{
		Name:     name,
		Category: category,
		Value:    value,
		Key:      key,
		Created:  s.Now(),
	}
	if source != "" {
		n.Sources = []string{source}
	}
	s.nodes[key] = n
	s.edges[key] = make(map[string]bool)
	s.order = append(s.order, key)
	return clone(n), true, nil
}

func (s *Store) FindNode(ctx context.Context, name, value string) (*store.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[store.KeyOf(name, value)]
	if !ok {
		return nil, nil
	}
	return clone(n), nil
}

func (s *Store) CreateEdge(ctx context.Context, a, b *store.Node) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[a.Key]; !ok {
		return false, nil
	}
	if _, ok := s.nodes[b.Key]; !ok {
		return false, nil
	}
	if a.Key == b.Key || s.edges[a.Key][b.Key] {
		return false, nil
	}
	s.edges[a.Key][b.Key] = true
	s.edges[b.Key][a.Key] = true
	return true, nil
}

func (s *Store) Neighbors(ctx context.Context, n *store.Node, filter store.NodeFilter) ([]*store.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.edges[n.Key]))
	for k := range s.edges[n.Key] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []*store.Node
	for _, k := range keys {
		nb := s.nodes[k]
		if nb == nil || !filter.Matches(nb) {
			continue
		}
		out = append(out, clone(nb))
	}
	return out, nil
}

func (s *Store) RepointEdges(ctx context.Context, from, to *store.Node) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for other := range s.edges[from.Key] {
		delete(s.edges[other], from.Key)
		if other == to.Key {
			continue
		}
		if !s.edges[to.Key][other] {
			s.edges[to.Key][other] = true
			s.edges[other][to.Key] = true
			moved++
		}
	}
	s.edges[from.Key] = make(map[string]bool)
	return moved, nil
}

func (s *Store) RetireNode(ctx context.Context, n *store.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for other := range s.edges[n.Key] {
		delete(s.edges[other], n.Key)
	}
	delete(s.edges, n.Key)
	delete(s.nodes, n.Key)
	for i, k := range s.order {
		if k == n.Key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) AppendHistory(ctx context.Context, n *store.Node, e store.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.nodes[n.Key]; ok {
		stored.History = append(stored.History, e)
	}
	return nil
}

func (s *Store) AppendSource(ctx context.Context, n *store.Node, source string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.nodes[n.Key]
	if !ok || source == "" {
		return false, nil
	}
	return appendSource(stored, source), nil
}

func (s *Store) NodesByCategory(ctx context.Context, category string) ([]*store.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*store.Node
	for _, k := range s.order {
		if n := s.nodes[k]; n != nil && n.Category == category {
			out = append(out, clone(n))
		}
	}
	return out, nil
}

func (s *Store) CountNodes(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.nodes)), nil
}

func (s *Store) DeleteChunk(ctx context.Context, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || len(s.order) == 0 {
		return 0, nil
	}
	if limit > len(s.order) {
		limit = len(s.order)
	}
	victims := s.order[:limit]
	for _, k := range victims {
		for other := range s.edges[k] {
			delete(s.edges[other], k)
		}
		delete(s.edges, k)
		delete(s.nodes, k)
	}
	s.order = s.order[limit:]
	return len(victims), nil
}

func (s *Store) TryLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	l, held := s.leases[key]
	if held && l.token != token && l.expires.After(now) {
		return false, nil
	}
	s.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (s *Store) RenewLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, held := s.leases[key]
	if !held || l.token != token {
		return false, nil
	}
	s.leases[key] = lease{token: token, expires: s.Now().Add(ttl)}
	return true, nil
}

func (s *Store) ReleaseLease(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, held := s.leases[key]; held && l.token == token {
		delete(s.leases, key)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func appendSource(n *store.Node, source string) bool {
	for _, src := range n.Sources {
		if src == source {
			return false
		}
	}
	n.Sources = append(n.Sources, source)
	return true
}

func clone(n *store.Node) *store.Node {
	c := *n
	c.Sources = append([]string(nil), n.Sources...)
	c.History = append([]store.Event(nil), n.History...)
	return &c
}

var _ store.NodeStore = (*Store)(nil)
