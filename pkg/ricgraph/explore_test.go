package ricgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func seedExploreGraph(t *testing.T) *Resolver {
	t.Helper()
	r, _ := newTestResolver(t, Policy{})
	ctx := context.Background()

	records := []Record{
		{
			Identifiers:  ids("ORCID", "0000-0001", "FULL_NAME", "A. Author"),
			Contribution: &Contribution{Name: "DOI", Category: "journal-article", Value: "10.1000/1"},
			Source:       "openalex",
		},
		{
			Identifiers:  ids("ORCID", "0000-0001"),
			Contribution: &Contribution{Name: "DOI", Category: "dataset", Value: "10.1000/2"},
			Source:       "yoda",
		},
		{
			Identifiers: ids("ORCID", "0000-0002"),
			Source:      "pure",
		},
	}
	for _, rec := range records {
		if _, err := r.InsertIdentityRecord(ctx, rec); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}
	return r
}

func TestAllPersonRoots(t *testing.T) {
	r := seedExploreGraph(t)
	roots, err := r.AllPersonRoots(context.Background())
	if err != nil {
		t.Fatalf("AllPersonRoots() error = %v", err)
	}
	if len(roots) != 2 {
		t.Errorf("got %d person-roots, want 2", len(roots))
	}
}

func TestPersonRootsFrom(t *testing.T) {
	r := seedExploreGraph(t)
	ctx := context.Background()

	roots, err := r.PersonRootsFrom(ctx, "ORCID", "0000-0001")
	if err != nil {
		t.Fatalf("PersonRootsFrom() error = %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("got %d roots, want 1", len(roots))
	}
	if roots[0].Category != CategoryPersonRoot {
		t.Errorf("category = %s, want %s", roots[0].Category, CategoryPersonRoot)
	}

	_, err = r.PersonRootsFrom(ctx, "ORCID", "no-such-value")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown node error = %v, want ErrInvalidInput", err)
	}
}

func TestNeighborNodesFiltered(t *testing.T) {
	r := seedExploreGraph(t)
	ctx := context.Background()

	// The person-root of ORCID 0000-0001 carries: the ORCID, a FULL_NAME
	// and two DOIs.
	roots, err := r.PersonRootsFrom(ctx, "ORCID", "0000-0001")
	if err != nil {
		t.Fatalf("PersonRootsFrom() error = %v", err)
	}
	rootName, rootValue := roots[0].Name, roots[0].Value

	tests := []struct {
		name   string
		filter TraversalFilter
		want   []string
	}{
		{
			name: "no filter returns everything",
			want: []string{"0000-0001", "10.1000/1", "10.1000/2", "A. Author"},
		},
		{
			name:   "name allow list",
			filter: TraversalFilter{NameAllow: []string{"DOI"}},
			want:   []string{"10.1000/1", "10.1000/2"},
		},
		{
			name:   "category allow list",
			filter: TraversalFilter{CategoryAllow: []string{"dataset"}},
			want:   []string{"10.1000/2"},
		},
		{
			name:   "deny list wins over allow list",
			filter: TraversalFilter{NameAllow: []string{"DOI"}, CategoryDeny: []string{"dataset"}},
			want:   []string{"10.1000/1"},
		},
		{
			name:   "name deny list",
			filter: TraversalFilter{NameDeny: []string{"DOI", "FULL_NAME"}},
			want:   []string{"0000-0001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			neighbors, err := r.NeighborNodes(ctx, rootName, rootValue, tt.filter)
			if err != nil {
				t.Fatalf("NeighborNodes() error = %v", err)
			}
			got := make([]string, len(neighbors))
			for i, n := range neighbors {
				got[i] = n.Value
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("neighbor values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
