package ricgraph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
	"github.com/UtrechtUniversity/ricgraph-go/pkg/store/mem"
)

func newTestResolver(t *testing.T, policy Policy) (*Resolver, *mem.Store) {
	t.Helper()
	st := mem.New()
	// Deterministic, strictly increasing clock so creation order is the
	// tie-break order.
	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	st.Now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	r, err := NewResolver(NewResolverParams{Store: st, Policy: policy})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	return r, st
}

func ids(pairs ...string) []store.Identifier {
	out := make([]store.Identifier, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, store.Identifier{Name: pairs[i], Value: pairs[i+1]})
	}
	return out
}

func TestResolvePersonValidation(t *testing.T) {
	tests := []struct {
		name        string
		identifiers []store.Identifier
	}{
		{name: "empty set", identifiers: nil},
		{name: "missing value", identifiers: ids("ORCID", "")},
		{name: "missing name", identifiers: []store.Identifier{{Name: "", Value: "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestResolver(t, Policy{})
			_, err := r.ResolvePerson(context.Background(), tt.identifiers, "test")
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ResolvePerson() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestResolvePersonCreatesRoot(t *testing.T) {
	r, st := newTestResolver(t, Policy{})
	ctx := context.Background()

	res, err := r.ResolvePerson(ctx, ids("ORCID", "0000-0001", "ISNI", "isni-1"), "openalex")
	if err != nil {
		t.Fatalf("ResolvePerson() error = %v", err)
	}
	if !res.RootCreated {
		t.Error("expected a new person-root")
	}
	if res.Outcome() != OutcomeAdmitted {
		t.Errorf("outcome = %s, want admitted", res.Outcome())
	}

	roots, err := st.NodesByCategory(ctx, CategoryPersonRoot)
	if err != nil {
		t.Fatalf("NodesByCategory() error = %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("got %d person-roots, want 1", len(roots))
	}
	neighbors, err := st.Neighbors(ctx, roots[0], store.NodeFilter{})
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	if len(neighbors) != 2 {
		t.Errorf("root has %d neighbors, want 2", len(neighbors))
	}
}

func TestResolvePersonReusesRoot(t *testing.T) {
	r, st := newTestResolver(t, Policy{})
	ctx := context.Background()

	first, err := r.ResolvePerson(ctx, ids("ORCID", "0000-0001"), "openalex")
	if err != nil {
		t.Fatalf("ResolvePerson() error = %v", err)
	}
	second, err := r.ResolvePerson(ctx, ids("ORCID", "0000-0001", "EMPLOYEE_ID", "e-77"), "pure")
	if err != nil {
		t.Fatalf("ResolvePerson() error = %v", err)
	}

	if second.RootCreated {
		t.Error("expected existing person-root to be reused")
	}
	if second.Root.Key != first.Root.Key {
		t.Errorf("root key = %s, want %s", second.Root.Key, first.Root.Key)
	}

	roots, _ := st.NodesByCategory(ctx, CategoryPersonRoot)
	if len(roots) != 1 {
		t.Fatalf("got %d person-roots, want 1", len(roots))
	}
	neighbors, _ := st.Neighbors(ctx, roots[0], store.NodeFilter{})
	if len(neighbors) != 2 {
		t.Errorf("root has %d neighbors, want 2 (ORCID and EMPLOYEE_ID)", len(neighbors))
	}
}

// Scenario from the harvest documentation: record A = {ORCID: x, ISNI-1},
// record B = {ORCID: x, ISNI-2}. Strict keeps the root connected to ISNI-1
// and the ORCID only; lenient attaches both ISNIs.
func TestSameNameCollision(t *testing.T) {
	tests := []struct {
		name          string
		mode          Mode
		wantOutcome   Outcome
		wantNeighbors int
		wantRejected  int
	}{
		{
			name:          "strict rejects second ISNI",
			mode:          ModeStrict,
			wantOutcome:   OutcomeRejected,
			wantNeighbors: 2,
			wantRejected:  1,
		},
		{
			name:          "lenient admits second ISNI",
			mode:          ModeLenient,
			wantOutcome:   OutcomeAdmitted,
			wantNeighbors: 3,
			wantRejected:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, st := newTestResolver(t, Policy{Mode: tt.mode})
			ctx := context.Background()

			if _, err := r.ResolvePerson(ctx, ids("ORCID", "0000-1111", "ISNI", "isni-1"), "a"); err != nil {
				t.Fatalf("record A: %v", err)
			}
			res, err := r.ResolvePerson(ctx, ids("ORCID", "0000-1111", "ISNI", "isni-2"), "b")
			if err != nil {
				t.Fatalf("record B: %v", err)
			}

			if res.Outcome() != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", res.Outcome(), tt.wantOutcome)
			}
			if len(res.Rejected) != tt.wantRejected {
				t.Errorf("rejected = %d, want %d", len(res.Rejected), tt.wantRejected)
			}

			roots, _ := st.NodesByCategory(ctx, CategoryPersonRoot)
			if len(roots) != 1 {
				t.Fatalf("got %d person-roots, want 1", len(roots))
			}
			neighbors, _ := st.Neighbors(ctx, roots[0], store.NodeFilter{})
			if len(neighbors) != tt.wantNeighbors {
				t.Errorf("root has %d neighbors, want %d", len(neighbors), tt.wantNeighbors)
			}
		})
	}
}

func TestRootConflict(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		wantRoots int
		wantMerge bool
	}{
		{name: "strict keeps roots distinct", mode: ModeStrict, wantRoots: 2},
		{name: "lenient merges roots", mode: ModeLenient, wantRoots: 1, wantMerge: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, st := newTestResolver(t, Policy{Mode: tt.mode})
			ctx := context.Background()

			first, err := r.ResolvePerson(ctx, ids("ORCID", "0000-0001"), "a")
			if err != nil {
				t.Fatalf("first record: %v", err)
			}
			if _, err := r.ResolvePerson(ctx, ids("ISNI", "isni-9"), "b"); err != nil {
				t.Fatalf("second record: %v", err)
			}

			// This record claims both identifiers belong to one person.
			res, err := r.ResolvePerson(ctx, ids("ORCID", "0000-0001", "ISNI", "isni-9"), "c")
			if err != nil {
				t.Fatalf("bridging record: %v", err)
			}

			roots, _ := st.NodesByCategory(ctx, CategoryPersonRoot)
			if len(roots) != tt.wantRoots {
				t.Fatalf("got %d person-roots, want %d", len(roots), tt.wantRoots)
			}

			if !tt.wantMerge {
				if res.Outcome() != OutcomeRejected {
					t.Errorf("outcome = %s, want rejected", res.Outcome())
				}
				if res.Root != nil {
					t.Error("strict conflict should not choose a root")
				}
				return
			}

			if len(res.Merged) != 1 {
				t.Fatalf("merged = %v, want one absorbed root", res.Merged)
			}
			// Earliest-created root survives.
			if res.Root.Key != first.Root.Key {
				t.Errorf("survivor = %s, want earliest root %s", res.Root.Key, first.Root.Key)
			}

			survivor, _ := st.FindNode(ctx, res.Root.Name, res.Root.Value)
			foundMergeEvent := false
			for _, e := range survivor.History {
				if strings.Contains(e.Message, "merged person-root") {
					foundMergeEvent = true
				}
			}
			if !foundMergeEvent {
				t.Error("survivor history is missing the merge event")
			}
		})
	}
}

// Merge tie-break determinism: the earliest-created root survives regardless
// of the order the colliding identifiers appear in.
func TestMergeTieBreakDeterminism(t *testing.T) {
	for _, reversed := range []bool{false, true} {
		name := "forward"
		if reversed {
			name = "reversed"
		}
		t.Run(name, func(t *testing.T) {
			r, _ := newTestResolver(t, Policy{Mode: ModeLenient})
			ctx := context.Background()

			oldest, err := r.ResolvePerson(ctx, ids("ORCID", "0000-0001"), "a")
			if err != nil {
				t.Fatalf("first record: %v", err)
			}
			if _, err := r.ResolvePerson(ctx, ids("ISNI", "isni-9"), "b"); err != nil {
				t.Fatalf("second record: %v", err)
			}

			bridge := ids("ORCID", "0000-0001", "ISNI", "isni-9")
			if reversed {
				bridge[0], bridge[1] = bridge[1], bridge[0]
			}
			res, err := r.ResolvePerson(ctx, bridge, "c")
			if err != nil {
				t.Fatalf("bridging record: %v", err)
			}
			if res.Root.Key != oldest.Root.Key {
				t.Errorf("survivor = %s, want %s", res.Root.Key, oldest.Root.Key)
			}
		})
	}
}

func TestInsertIdentityRecordIdempotent(t *testing.T) {
	r, st := newTestResolver(t, Policy{})
	ctx := context.Background()

	rec := Record{
		Identifiers: ids("ORCID", "0000-0001", "FULL_NAME", "A. Author"),
		Contribution: &Contribution{
			Name:     "DOI",
			Category: "journal-article",
			Value:    "10.1000/182",
		},
		Source: "openalex",
	}

	first, err := r.InsertIdentityRecord(ctx, rec)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	countAfterFirst, _ := st.CountNodes(ctx)
	rootAfterFirst, _ := st.FindNode(ctx, first.Root.Name, first.Root.Value)

	second, err := r.InsertIdentityRecord(ctx, rec)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	countAfterSecond, _ := st.CountNodes(ctx)

	if second.RootCreated {
		t.Error("second insert created a person-root")
	}
	if countAfterSecond != countAfterFirst {
		t.Errorf("node count changed on re-insert: %d -> %d", countAfterFirst, countAfterSecond)
	}

	rootAfterSecond, _ := st.FindNode(ctx, second.Root.Name, second.Root.Value)
	if len(rootAfterSecond.History) != len(rootAfterFirst.History) {
		t.Errorf("history grew on re-insert: %d -> %d", len(rootAfterFirst.History), len(rootAfterSecond.History))
	}

	// Contribution is attached to the person-root.
	doi, _ := st.FindNode(ctx, "DOI", "10.1000/182")
	if doi == nil {
		t.Fatal("contribution node missing")
	}
	rootsOfDoi, _ := st.Neighbors(ctx, doi, store.NodeFilter{Categories: []string{CategoryPersonRoot}})
	if len(rootsOfDoi) != 1 {
		t.Errorf("contribution connects to %d person-roots, want 1", len(rootsOfDoi))
	}
}

func TestMergeFlaggedForReview(t *testing.T) {
	r, st := newTestResolver(t, Policy{Mode: ModeLenient, ReviewNameVariants: 2})
	ctx := context.Background()

	// Two identities, each with three FULL_NAME spellings.
	if _, err := r.ResolvePerson(ctx, ids(
		"ORCID", "0000-0001",
		"FULL_NAME", "A. Author", "FULL_NAME", "Alice Author", "FULL_NAME", "Author, A.",
	), "a"); err != nil {
		t.Fatalf("first identity: %v", err)
	}
	if _, err := r.ResolvePerson(ctx, ids(
		"ISNI", "isni-9",
		"FULL_NAME", "A. N. Author", "FULL_NAME", "Anna Author", "FULL_NAME", "Author, A. N.",
	), "b"); err != nil {
		t.Fatalf("second identity: %v", err)
	}

	res, err := r.ResolvePerson(ctx, ids("ORCID", "0000-0001", "ISNI", "isni-9"), "c")
	if err != nil {
		t.Fatalf("bridging record: %v", err)
	}
	if res.Outcome() != OutcomeFlagged {
		t.Errorf("outcome = %s, want flagged", res.Outcome())
	}
	if res.Root != nil {
		t.Error("flagged resolution should not choose a root")
	}

	roots, _ := st.NodesByCategory(ctx, CategoryPersonRoot)
	if len(roots) != 2 {
		t.Errorf("got %d person-roots, want 2 (merge skipped)", len(roots))
	}
}
