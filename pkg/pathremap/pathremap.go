// Package pathremap maps a matched object key to a local relative path
// under a download destination, per one of three stripping policies.
package pathremap

import (
	"strings"

	"github.com/quayside/s3glob/pkg/provider"
)

// Policy selects how much of a matched key's prefix is stripped before
// joining it under the destination directory.
type Policy string

const (
	// Absolute keeps the full key as the relative path.
	Absolute Policy = "absolute"
	// FromFirstGlob strips everything up to the last delimiter before the
	// pattern's first glob metacharacter.
	FromFirstGlob Policy = "from-first-glob"
	// Shortest strips the longest common prefix of every matched key,
	// truncated to its last delimiter. Requires the full match set.
	Shortest Policy = "shortest"
)

const globChars = "*?[{"

// PrefixToStrip computes the prefix stripped from every matched key for the
// given policy. rawPattern is the original pattern text (bucket-relative,
// no scheme/bucket segment); keys is the full match set, needed only by
// Shortest.
func PrefixToStrip(rawPattern string, policy Policy, delimiter byte, keys []provider.ObjectSummary) string {
	switch policy {
	case Absolute:
		return ""
	case Shortest:
		return shortestCommonPrefix(keys, delimiter)
	case FromFirstGlob:
		fallthrough
	default:
		return fromFirstGlob(rawPattern, delimiter)
	}
}

func fromFirstGlob(rawPattern string, delimiter byte) string {
	idx := strings.IndexAny(rawPattern, globChars)
	upToGlob := rawPattern
	if idx >= 0 {
		upToGlob = rawPattern[:idx]
	}
	if slash := strings.LastIndexByte(upToGlob, delimiter); slash >= 0 {
		return upToGlob[:slash+1]
	}
	return ""
}

func shortestCommonPrefix(keys []provider.ObjectSummary, delimiter byte) string {
	if len(keys) == 0 {
		return ""
	}
	prefix := keys[0].Key
	for _, k := range keys[1:] {
		prefix = commonPrefix(prefix, k.Key)
		if prefix == "" {
			break
		}
	}
	if slash := strings.LastIndexByte(prefix, delimiter); slash >= 0 {
		return prefix[:slash+1]
	}
	return ""
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// Apply strips prefixToStrip from key and, when flatten is set, replaces
// every remaining delimiter with '-' so the result has no subdirectories.
func Apply(key, prefixToStrip string, delimiter byte, flatten bool) string {
	rel := strings.TrimPrefix(key, prefixToStrip)
	if flatten {
		rel = strings.ReplaceAll(rel, string(delimiter), "-")
	}
	return rel
}
