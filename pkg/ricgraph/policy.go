package ricgraph

import "fmt"

// Mode is the node-admission policy governing identifier collisions.
// It is injected at resolver construction; nothing reads it from ambient
// configuration.
type Mode int

const (
	// ModeStrict rejects an assertion whose admission would join two
	// previously distinct identities through a value collision alone.
	// The graph stays incomplete rather than risking a false merge.
	ModeStrict Mode = iota

	// ModeLenient admits the assertion and merges the affected
	// person-roots. The original partition is permanently unrecoverable.
	ModeLenient
)

func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeLenient:
		return "lenient"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts the configuration string to a Mode. Strict is the
// default: lenient trades occasional silent false-positive merges for fewer
// false negatives, and harvested source data is known to contain entry
// errors.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "strict":
		return ModeStrict, nil
	case "lenient":
		return ModeLenient, nil
	default:
		return ModeStrict, fmt.Errorf("unknown node-add mode %q", s)
	}
}

// Admission is the outcome of the per-assertion state machine:
// NEW -> ADMITTED on no collision, NEW -> ADMITTED (with merge) on collision
// under lenient, NEW -> REJECTED on collision under strict.
type Admission int

const (
	Admitted Admission = iota
	Rejected
)

// Policy is the merge policy engine consulted by the identity resolver.
type Policy struct {
	Mode Mode

	// ReviewNameVariants, when positive, downgrades a lenient merge to a
	// flagged-for-review outcome if both person-roots already carry more
	// than this many distinct FULL_NAME spellings. Zero disables the check.
	ReviewNameVariants int
}

// Decide applies the admission state machine to a single assertion.
func (p Policy) Decide(collision bool) Admission {
	if !collision {
		return Admitted
	}
	if p.Mode == ModeLenient {
		return Admitted
	}
	return Rejected
}

// NeedsReview reports whether a merge between two roots with the given
// FULL_NAME variant counts must be flagged instead of executed.
func (p Policy) NeedsReview(variantsA, variantsB int) bool {
	if p.ReviewNameVariants <= 0 {
		return false
	}
	return variantsA > p.ReviewNameVariants && variantsB > p.ReviewNameVariants
}
