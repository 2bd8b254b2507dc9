// Package ricgraph implements the identity unification core: given
// heterogeneous harvested records carrying person and content identifiers,
// it decides which identifier nodes denote the same real-world entity and
// merges their graph neighborhoods, without corrupting attribution through
// false merges.
//
// Every person identifier node connects to exactly one person-root node, a
// distinguished node with no intrinsic identifying value that exists purely
// as a merge point. Research outputs attach to the person-root, so merged
// identities keep all outputs reachable.
package ricgraph

import (
	"context"
	"fmt"
	"sort"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/UtrechtUniversity/ricgraph-go/internal/util"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/logger"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
)

// Well-known node names and categories.
const (
	NamePersonRoot     = "person-root"
	NameFullName       = "FULL_NAME"
	CategoryPersonRoot = "person-root"
	CategoryPerson     = "person"
)

// A merge that absorbs a root carrying at least this many identifiers is
// logged as a merge-ambiguity warning for operator review.
const mergeWarnIdentifierCount = 10

// Resolver unifies identifier records into person-root neighborhoods.
// It assumes a single logical writer; concurrent harvest runs against the
// same graph must be serialized externally (see pkg/leaselock).
type Resolver struct {
	store      store.NodeStore
	policy     Policy
	emptyChunk int
	maxRetries int
}

// NewResolverParams defines the configuration for creating a Resolver.
//
// EmptyChunkSize bounds how many nodes EmptyGraph deletes per backend call.
// MaxRetries controls per-chunk retries during emptying.
type NewResolverParams struct {
	Store          store.NodeStore
	Policy         Policy
	EmptyChunkSize int
	MaxRetries     int
}

// NewResolver creates a Resolver backed by the given node store.
func NewResolver(params NewResolverParams) (*Resolver, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("resolver requires a node store")
	}
	chunk := params.EmptyChunkSize
	if chunk <= 0 {
		chunk = 10000
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Resolver{
		store:      params.Store,
		policy:     params.Policy,
		emptyChunk: chunk,
		maxRetries: maxRetries,
	}, nil
}

// Outcome is the record-level result of a resolution.
type Outcome string

const (
	OutcomeAdmitted Outcome = "admitted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFlagged  Outcome = "flagged"
)

// Resolution reports what a ResolvePerson or InsertIdentityRecord call did.
type Resolution struct {
	// Root is the person-root the record resolved to. Nil when the whole
	// record was rejected or flagged before any root could be chosen.
	Root *store.Node
	// RootCreated reports whether Root was created by this call.
	RootCreated bool
	// Merged holds the keys of person-roots absorbed into Root.
	Merged []string
	// Rejected lists identifiers that were not admitted (strict mode).
	Rejected []store.Identifier
	// Collisions describes each rejection.
	Collisions []*CollisionError
	// Flagged is set when a merge was downgraded to manual review.
	Flagged bool
}

// Outcome classifies the resolution for reporting.
func (r *Resolution) Outcome() Outcome {
	switch {
	case r.Flagged:
		return OutcomeFlagged
	case len(r.Rejected) > 0:
		return OutcomeRejected
	default:
		return OutcomeAdmitted
	}
}

// Contribution is a research output carried by a record, attached to the
// resolved person-root.
type Contribution struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Value    string `json:"value"`
}

// Record is one harvested identity record: a non-empty set of person
// identifiers believed to belong to one person, an optional contribution,
// and a provenance tag.
type Record struct {
	Identifiers  []store.Identifier `json:"identifiers"`
	Contribution *Contribution      `json:"contribution,omitempty"`
	Source       string             `json:"source"`
}

// ResolvePerson maps a set of identifier pairs believed to belong to one
// person onto a person-root, creating, reusing or merging roots as needed.
//
// Zero roots found among the pairs: a new person-root is created and every
// identifier linked to it. Exactly one root: new identifiers are attached,
// subject to the collision policy. Two or more distinct roots: a merge
// conflict, resolved by the policy engine. Strict leaves the roots distinct
// and rejects the insertion; lenient merges them into the root with the
// earliest creation timestamp.
func (r *Resolver) ResolvePerson(ctx context.Context, identifiers []store.Identifier, source string) (*Resolution, error) {
	if err := validateIdentifiers(identifiers); err != nil {
		return nil, err
	}

	roots, triggers, err := r.findRoots(ctx, identifiers)
	if err != nil {
		return nil, err
	}

	res := &Resolution{}

	switch len(roots) {
	case 0:
		root, err := r.createPersonRoot(ctx, source)
		if err != nil {
			return nil, err
		}
		res.Root = root
		res.RootCreated = true
		for _, id := range identifiers {
			if _, err := r.attach(ctx, root, id, source); err != nil {
				return nil, err
			}
		}
		return res, nil

	case 1:
		res.Root = roots[0]

	default:
		if r.policy.Mode == ModeStrict {
			return r.rejectAll(identifiers, roots), nil
		}
		root, flagged, err := r.mergeRoots(ctx, roots, triggers)
		if err != nil {
			return nil, err
		}
		if flagged {
			res.Flagged = true
			return res, nil
		}
		res.Root = root
		for _, absorbed := range roots {
			if absorbed.Key != root.Key {
				res.Merged = append(res.Merged, absorbed.Key)
			}
		}
	}

	for _, id := range identifiers {
		if err := r.attachWithPolicy(ctx, res, id, source); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// InsertIdentityRecord resolves the record's person identifiers and links
// its contribution (if any) to the resulting person-root. Re-inserting a
// fully resolved record is a no-op.
func (r *Resolver) InsertIdentityRecord(ctx context.Context, rec Record) (*Resolution, error) {
	res, err := r.ResolvePerson(ctx, rec.Identifiers, rec.Source)
	if err != nil {
		return nil, err
	}
	if res.Root == nil || rec.Contribution == nil {
		return res, nil
	}

	c := rec.Contribution
	if c.Name == "" || c.Value == "" {
		return nil, fmt.Errorf("%w: contribution needs name and value", ErrInvalidInput)
	}
	n, _, err := r.store.UpsertNode(ctx, c.Name, c.Category, c.Value, rec.Source)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.CreateEdge(ctx, res.Root, n); err != nil {
		return nil, err
	}
	return res, nil
}

// EmptyGraph deletes every node and edge in bounded chunks, retrying each
// chunk, so that memory stays bounded regardless of graph size. Returns the
// number of nodes deleted.
func (r *Resolver) EmptyGraph(ctx context.Context) (int, error) {
	total := 0
	for {
		var deleted int
		err := util.RetryErrWithContext(ctx, r.maxRetries, func(ctx context.Context) error {
			var err error
			deleted, err = r.store.DeleteChunk(ctx, r.emptyChunk)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("failed to empty graph after %d nodes: %w", total, err)
		}
		if deleted == 0 {
			return total, nil
		}
		total += deleted
		logger.Debug("Deleted chunk", "nodes", deleted, "total", total)
	}
}

func validateIdentifiers(identifiers []store.Identifier) error {
	if len(identifiers) == 0 {
		return fmt.Errorf("%w: empty identifier set", ErrInvalidInput)
	}
	for _, id := range identifiers {
		if id.Name == "" || id.Value == "" {
			return fmt.Errorf("%w: identifier needs name and value, got (%q, %q)", ErrInvalidInput, id.Name, id.Value)
		}
	}
	return nil
}

// findRoots locates the distinct person-roots already reachable from the
// identifier set, ordered by creation time (ties broken by key) so that
// merge survivor selection is deterministic and stable across runs. The
// trigger map remembers, per root, the identifier that led to it.
func (r *Resolver) findRoots(ctx context.Context, identifiers []store.Identifier) ([]*store.Node, map[string]store.Identifier, error) {
	byKey := make(map[string]*store.Node)
	triggers := make(map[string]store.Identifier)

	for _, id := range identifiers {
		n, err := r.store.FindNode(ctx, id.Name, id.Value)
		if err != nil {
			return nil, nil, err
		}
		if n == nil {
			continue
		}
		root, err := r.PersonRootOf(ctx, n)
		if err != nil {
			return nil, nil, err
		}
		if root == nil {
			continue
		}
		if _, seen := byKey[root.Key]; !seen {
			byKey[root.Key] = root
			triggers[root.Key] = id
		}
	}

	roots := make([]*store.Node, 0, len(byKey))
	for _, root := range byKey {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		if roots[i].Created.Equal(roots[j].Created) {
			return roots[i].Key < roots[j].Key
		}
		return roots[i].Created.Before(roots[j].Created)
	})
	return roots, triggers, nil
}

// PersonRootOf returns the person-root n is connected to, or n itself if it
// is one, or nil if it has none yet.
func (r *Resolver) PersonRootOf(ctx context.Context, n *store.Node) (*store.Node, error) {
	if n.Category == CategoryPersonRoot {
		return n, nil
	}
	roots, err := r.store.Neighbors(ctx, n, store.NodeFilter{Categories: []string{CategoryPersonRoot}})
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, nil
	}
	return roots[0], nil
}

func (r *Resolver) createPersonRoot(ctx context.Context, source string) (*store.Node, error) {
	value, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	root, _, err := r.store.UpsertNode(ctx, NamePersonRoot, CategoryPersonRoot, value, source)
	if err != nil {
		return nil, err
	}
	if err := r.appendEvent(ctx, root, "person-root created"); err != nil {
		return nil, err
	}
	return root, nil
}

// attach upserts the identifier node and links it to root. Both operations
// are idempotent.
func (r *Resolver) attach(ctx context.Context, root *store.Node, id store.Identifier, source string) (bool, error) {
	n, created, err := r.store.UpsertNode(ctx, id.Name, CategoryPerson, id.Value, source)
	if err != nil {
		return false, err
	}
	linked, err := r.store.CreateEdge(ctx, root, n)
	if err != nil {
		return false, err
	}
	return created || linked, nil
}

// attachWithPolicy attaches one identifier to the resolution's root,
// consulting the policy engine when the root already carries an identifier
// of the same name with a different value. Identifiers already linked to the
// root are left untouched; they are the corroborating overlap, not a
// collision.
func (r *Resolver) attachWithPolicy(ctx context.Context, res *Resolution, id store.Identifier, source string) error {
	root := res.Root

	sameName, err := r.store.Neighbors(ctx, root, store.NodeFilter{Names: []string{id.Name}})
	if err != nil {
		return err
	}
	collision := false
	for _, nb := range sameName {
		if nb.Key == store.KeyOf(id.Name, id.Value) {
			// Already attached; only the provenance tag may be new.
			_, err := r.store.AppendSource(ctx, nb, source)
			return err
		}
		if nb.Value != id.Value {
			collision = true
		}
	}

	if r.policy.Decide(collision) == Rejected {
		cerr := &CollisionError{Identifier: id, Roots: []string{root.Key}}
		res.Rejected = append(res.Rejected, id)
		res.Collisions = append(res.Collisions, cerr)
		logger.Warn("Collision rejected", "name", id.Name, "value", id.Value, "root", root.Key)
		return nil
	}

	changed, err := r.attach(ctx, root, id, source)
	if err != nil {
		return err
	}
	if collision && changed {
		msg := fmt.Sprintf("collision admitted: %s=%s alongside existing %s", id.Name, id.Value, id.Name)
		if err := r.appendEvent(ctx, root, msg); err != nil {
			return err
		}
	}
	return nil
}

// mergeRoots combines two or more person-roots into the earliest-created
// one. Each absorbed root has its edges re-pointed onto the survivor and is
// then retired; the merge is recorded in the survivor's history with the
// identifier pair that triggered it.
func (r *Resolver) mergeRoots(ctx context.Context, roots []*store.Node, triggers map[string]store.Identifier) (*store.Node, bool, error) {
	if r.policy.ReviewNameVariants > 0 {
		flagged, err := r.needsReview(ctx, roots)
		if err != nil {
			return nil, false, err
		}
		if flagged {
			keys := rootKeys(roots)
			logger.Warn("Merge flagged for manual review", "roots", keys, "variant_threshold", r.policy.ReviewNameVariants)
			return nil, true, nil
		}
	}

	survivor := roots[0]
	for _, absorbed := range roots[1:] {
		neighbors, err := r.store.Neighbors(ctx, absorbed, store.NodeFilter{})
		if err != nil {
			return nil, false, err
		}
		if len(neighbors) >= mergeWarnIdentifierCount {
			logger.Warn("Merge ambiguity: absorbing a root with many identifiers",
				"absorbed", absorbed.Key, "identifiers", len(neighbors), "survivor", survivor.Key)
		}

		moved, err := r.store.RepointEdges(ctx, absorbed, survivor)
		if err != nil {
			return nil, false, err
		}
		if err := r.store.RetireNode(ctx, absorbed); err != nil {
			return nil, false, err
		}

		trigger := triggers[absorbed.Key]
		msg := fmt.Sprintf("merged person-root %s (trigger %s=%s)", absorbed.Key, trigger.Name, trigger.Value)
		if err := r.appendEvent(ctx, survivor, msg); err != nil {
			return nil, false, err
		}
		logger.Info("Merged person-roots", "survivor", survivor.Key, "absorbed", absorbed.Key, "edges_moved", moved)
	}
	return survivor, false, nil
}

func (r *Resolver) needsReview(ctx context.Context, roots []*store.Node) (bool, error) {
	counts := make([]int, len(roots))
	for i, root := range roots {
		variants, err := r.store.Neighbors(ctx, root, store.NodeFilter{Names: []string{NameFullName}})
		if err != nil {
			return false, err
		}
		counts[i] = len(variants)
	}
	for _, absorbed := range counts[1:] {
		if r.policy.NeedsReview(counts[0], absorbed) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) rejectAll(identifiers []store.Identifier, roots []*store.Node) *Resolution {
	res := &Resolution{}
	keys := rootKeys(roots)
	for _, id := range identifiers {
		res.Rejected = append(res.Rejected, id)
		res.Collisions = append(res.Collisions, &CollisionError{Identifier: id, Roots: keys})
	}
	logger.Warn("Record rejected: identifiers span distinct person-roots", "roots", keys)
	return res
}

func (r *Resolver) appendEvent(ctx context.Context, n *store.Node, message string) error {
	id, err := gonanoid.New()
	if err != nil {
		return err
	}
	return r.store.AppendHistory(ctx, n, store.Event{
		ID:        id,
		Timestamp: time.Now(),
		Message:   message,
	})
}

func rootKeys(roots []*store.Node) []string {
	keys := make([]string, len(roots))
	for i, root := range roots {
		keys[i] = root.Key
	}
	return keys
}
