package glob

import (
	"regexp"
	"strings"
)

// ReString returns the regex fragment for a single segment, matching one
// path component's worth of key bytes. The fragment carries no anchors; the
// caller concatenates fragments and anchors the whole expression.
func (s Segment) ReString(delimiter byte) string {
	switch s.Kind {
	case Literal, Alternation:
		escaped := make([]string, len(s.Choices))
		for i, c := range s.Choices {
			escaped[i] = regexp.QuoteMeta(c)
		}
		return "(" + strings.Join(escaped, "|") + ")"
	case AnyRun:
		if s.Raw == "?" {
			return "."
		}
		return "[^" + regexp.QuoteMeta(string(delimiter)) + "]*"
	case NegatedClass:
		return "[^" + regexp.QuoteMeta(string(s.Excluded)) + "]"
	case Recursive:
		return ".*"
	case SyntheticAny:
		return "[^" + regexp.QuoteMeta(string(delimiter)) + "]*"
	default:
		panic("glob: unknown segment kind in ReString")
	}
}

// Compile concatenates every segment's regex fragment and anchors the result
// against the whole key, producing the single source of truth for whether a
// key matches the pattern. Planner pruning is only a performance aid; this
// regex is authoritative.
func Compile(segments []Segment, delimiter byte) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteByte('^')
	for _, seg := range segments {
		sb.WriteString(seg.ReString(delimiter))
	}
	sb.WriteByte('$')
	return regexp.Compile(sb.String())
}
