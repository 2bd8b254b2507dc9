package ricgraph

import (
	"errors"
	"fmt"

	"github.com/UtrechtUniversity/ricgraph-go/pkg/store"
)

// ErrInvalidInput is returned for malformed or empty identifier sets.
var ErrInvalidInput = errors.New("invalid identifier set")

// CollisionError describes a strict-mode rejection. It is reported per
// record so the harvester can log it and continue; it is never fatal to a
// run.
type CollisionError struct {
	// Identifier is the assertion that was not admitted.
	Identifier store.Identifier
	// Roots holds the keys of the person-roots the assertion would have
	// joined, or the single root it conflicted with.
	Roots []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("collision rejected: %s=%s would join person-roots %v",
		e.Identifier.Name, e.Identifier.Value, e.Roots)
}
