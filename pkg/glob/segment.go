// Package glob parses Unix-style glob patterns over object-store keys into
// an ordered sequence of segments, and compiles those segments into regex
// fragments the planner and matcher can use.
package glob

import "fmt"

// Kind identifies which variant of Segment is populated.
type Kind int

const (
	// Literal is a run of non-glob characters, possibly containing the delimiter.
	Literal Kind = iota
	// Alternation is an ordered list of literal choices, from `{a,b}` or `[abc]`
	// or an expanded `[a-z]` range.
	Alternation
	// AnyRun is a single `*` (zero or more non-delimiter characters) or `?`
	// (exactly one character).
	AnyRun
	// NegatedClass matches any single character not in Excluded, from `[!abc]`.
	NegatedClass
	// Recursive is `**`, matching any sequence of characters including the delimiter.
	Recursive
	// SyntheticAny is inserted after parsing when the raw pattern ends with the
	// delimiter, forcing discovery of children beyond the trailing separator.
	SyntheticAny
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "Literal"
	case Alternation:
		return "Alternation"
	case AnyRun:
		return "AnyRun"
	case NegatedClass:
		return "NegatedClass"
	case Recursive:
		return "Recursive"
	case SyntheticAny:
		return "SyntheticAny"
	default:
		return "Unknown"
	}
}

// Segment is one parsed unit of a pattern. Exactly one of the fields below is
// meaningful for a given Kind:
//
//   - Literal:      Choices holds a single entry, the literal text.
//   - Alternation:  Choices holds the ordered list of literal alternatives.
//   - AnyRun:       Raw is "*" or "?".
//   - NegatedClass: Excluded holds the set of excluded characters.
//   - Recursive:    no fields used.
//   - SyntheticAny: no fields used.
type Segment struct {
	Kind     Kind
	Raw      string   // original source text, for diagnostics
	Choices  []string // Literal (len 1) and Alternation
	Excluded []rune   // NegatedClass
}

// IsChoice reports whether this segment can be extended without a store
// round-trip: Literal and Alternation segments are plain string choices.
func (s Segment) IsChoice() bool {
	return s.Kind == Literal || s.Kind == Alternation
}

// IsAny reports whether this is a `*`, `?`, a negated character class, or the
// synthetic trailing wildcard appended after a pattern ending in the
// delimiter — the segments that may require a delimited scan to expand.
func (s Segment) IsAny() bool {
	return s.Kind == AnyRun || s.Kind == NegatedClass || s.Kind == SyntheticAny
}

// IsNegated reports whether this segment participates in planning only as a
// regex filter, never as a prefix extender.
func (s Segment) IsNegated() bool {
	return s.Kind == NegatedClass
}

// IsRecursive reports whether this segment halts prefix planning.
func (s Segment) IsRecursive() bool {
	return s.Kind == Recursive
}

func (s Segment) display() string {
	switch s.Kind {
	case Literal, Alternation:
		return fmt.Sprintf("%s(%v)", s.Kind, s.Choices)
	case AnyRun:
		return fmt.Sprintf("AnyRun(%s)", s.Raw)
	case NegatedClass:
		return fmt.Sprintf("NegatedClass(%s)", s.Raw)
	default:
		return s.Kind.String()
	}
}

// combineWith merges other into s by cross product: every existing choice is
// concatenated with every choice of other via prefixJoin. Both segments must
// be IsChoice(); this mirrors the literal/alternation merge pass that runs
// immediately after tokenizing.
func (s *Segment) combineWith(other Segment, delimiter byte) {
	if !s.IsChoice() || !other.IsChoice() {
		panic("glob: combineWith called on non-choice segment")
	}
	merged := make([]string, 0, len(s.Choices)*len(other.Choices))
	for _, a := range s.Choices {
		for _, b := range other.Choices {
			merged = append(merged, prefixJoin(a, b, delimiter))
		}
	}
	s.Choices = merged
	s.Raw += other.Raw
	if len(s.Choices) == 1 {
		s.Kind = Literal
	} else {
		s.Kind = Alternation
	}
}
