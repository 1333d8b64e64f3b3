// Package planner implements the glob-to-prefix planner: given a parsed
// pattern's segments, it walks them left to right against a store, growing
// a working set of candidate key prefixes via literal append, existence
// check, and delimited scan, until a recursive segment halts expansion or
// the segment list is exhausted.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/quayside/s3glob/pkg/glob"
	"github.com/quayside/s3glob/pkg/provider"
)

// Store is the subset of store capabilities the planner needs: plain
// prefix listing (for existence checks) and delimited listing (for scans).
type Store interface {
	provider.Provider
	provider.DelimiterLister
}

// Result is the planner's output: the candidate prefix set plus enough
// bookkeeping for the enumeration pipeline to decide between HEAD-only and
// full listing, and for callers to render planning statistics.
type Result struct {
	Prefixes   []string
	IsComplete bool

	// FoldRemainder is true when IsComplete is false specifically because
	// the final segment was an Any-kind segment left unscanned (not
	// because a Recursive segment halted expansion). It tells enumeration
	// that a listed key carrying extra delimiter-separated components
	// past a planned prefix should fold into a Prefix placeholder rather
	// than being silently dropped, per §8 scenario 3.
	FoldRemainder bool

	MaxObjectsObserved  int
	MaxPrefixesObserved int
}

// Plan walks segments left to right against store, using delimiter as the
// path-component separator and bounding all store fan-out by maxParallelism.
func Plan(ctx context.Context, store Store, segments []glob.Segment, delimiter byte, maxParallelism int) (*Result, error) {
	if maxParallelism <= 0 {
		maxParallelism = 1
	}

	p := &planState{
		store:          store,
		delimiter:      delimiter,
		maxParallelism: maxParallelism,
		prefixes:       []string{""},
		regexSoFar:     "^",
	}

	var prev *glob.Segment
	for i := range segments {
		seg := segments[i]
		isLast := i == len(segments)-1

		switch {
		case seg.IsRecursive():
			p.observe()
			return &Result{
				Prefixes:            dedupSorted(p.prefixes),
				IsComplete:          false,
				MaxObjectsObserved:  p.maxObjects,
				MaxPrefixesObserved: p.maxPrefixes,
			}, nil

		case seg.IsChoice():
			if err := p.stepChoice(ctx, seg); err != nil {
				return nil, err
			}

		case seg.IsAny():
			if err := p.stepAny(ctx, seg, prev, isLast); err != nil {
				return nil, err
			}
		}

		p.regexSoFar += seg.ReString(delimiter)
		p.observe()
		prev = &seg
	}

	// A trailing Any-kind segment (`*`, `?`, a negated class, or the
	// synthetic wildcard appended for a pattern ending in the delimiter)
	// never gets scanned by stepAny: scanMightHelp is unconditionally false
	// once isLast is true, since listing the whole prefix in one
	// enumeration pass is cheaper than scanning it here one level at a
	// time. That wildcard is therefore still unresolved, so enumeration
	// must fall through to the listing path rather than the HEAD-only one.
	isComplete := len(segments) == 0 || !segments[len(segments)-1].IsAny()

	return &Result{
		Prefixes:            dedupSorted(p.prefixes),
		IsComplete:          isComplete,
		FoldRemainder:       !isComplete,
		MaxObjectsObserved:  p.maxObjects,
		MaxPrefixesObserved: p.maxPrefixes,
	}, nil
}

type planState struct {
	store          Store
	delimiter      byte
	maxParallelism int

	prefixes   []string
	regexSoFar string

	maxObjects  int
	maxPrefixes int
}

func (p *planState) observe() {
	if n := len(p.prefixes); n > p.maxPrefixes {
		p.maxPrefixes = n
	}
}

// stepChoice implements §4.3 step 2: literal/alternation segments.
func (p *planState) stepChoice(ctx context.Context, seg glob.Segment) error {
	if len(p.prefixes) == 1 {
		candidates := make([]string, 0, len(seg.Choices))
		base := p.prefixes[0]
		for _, choice := range seg.Choices {
			candidates = append(candidates, prefixJoin(base, choice, p.delimiter))
		}
		existing, err := p.existenceCheck(ctx, candidates)
		if err != nil {
			return err
		}
		p.prefixes = existing
		return nil
	}

	var filters, appends []string
	seenFilter := map[string]struct{}{}
	seenAppend := map[string]struct{}{}
	delim := string(p.delimiter)
	for _, choice := range seg.Choices {
		if idx := strings.Index(choice, delim); idx >= 0 {
			filter := choice[:idx+len(delim)]
			if _, ok := seenFilter[filter]; !ok {
				seenFilter[filter] = struct{}{}
				filters = append(filters, regexp.QuoteMeta(filter))
			}
			if after := choice[idx+len(delim):]; after != "" {
				if _, ok := seenAppend[after]; !ok {
					seenAppend[after] = struct{}{}
					appends = append(appends, after)
				}
			}
		} else {
			if _, ok := seenFilter[choice]; !ok {
				seenFilter[choice] = struct{}{}
				filters = append(filters, regexp.QuoteMeta(choice))
			}
		}
	}
	sort.Strings(filters)
	sort.Strings(appends)

	var filterRe, appendRe *regexp.Regexp
	if len(filters) > 0 {
		filterRe = regexp.MustCompile(p.regexSoFar + "(" + strings.Join(filters, "|") + ")")
	}
	appendRe = regexp.MustCompile(p.regexSoFar + seg.ReString(p.delimiter))

	var newPrefixes []string
	for _, prefix := range p.prefixes {
		if filterRe != nil && !filterRe.MatchString(prefix) {
			continue
		}
		if len(appends) == 0 || appendRe.MatchString(prefix) {
			newPrefixes = append(newPrefixes, prefix)
			continue
		}
		for _, alt := range appends {
			newPrefixes = append(newPrefixes, prefixJoin(prefix, alt, p.delimiter))
		}
	}

	if len(appends) == 0 {
		p.prefixes = newPrefixes
		return nil
	}

	existing, err := p.existenceCheck(ctx, newPrefixes)
	if err != nil {
		return err
	}
	p.prefixes = existing
	return nil
}

// stepAny implements §4.3 steps 3 and 4: AnyRun and NegatedClass segments
// share the same scan-or-skip gate (both are "is_any" segments); a
// NegatedClass additionally filters the result afterward.
func (p *planState) stepAny(ctx context.Context, seg glob.Segment, prev *glob.Segment, isLast bool) error {
	prevWasAny := prev != nil && prev.IsAny()
	scanMightHelp := !prevWasAny && !isLast

	if scanMightHelp {
		expanded, err := p.scan(ctx, p.prefixes)
		if err != nil {
			return err
		}
		p.prefixes = expanded
	}

	if seg.IsNegated() {
		filterRe := regexp.MustCompile(p.regexSoFar + seg.ReString(p.delimiter))
		kept := p.prefixes[:0:0]
		for _, prefix := range p.prefixes {
			if filterRe.MatchString(prefix) {
				kept = append(kept, prefix)
			}
		}
		p.prefixes = kept
	}

	return nil
}

// scan performs a bounded-concurrency delimited listing for each prefix in
// the input set, unioning common prefixes and direct object keys from the
// same page, per §4.3 step 3.
func (p *planState) scan(ctx context.Context, prefixes []string) ([]string, error) {
	results, err := p.fanOut(ctx, prefixes, func(ctx context.Context, prefix string) ([]string, error) {
		var out []string
		token := ""
		for {
			res, err := p.store.ListWithDelimiter(ctx, provider.ListWithDelimiterOptions{
				Prefix:            prefix,
				Delimiter:         string(p.delimiter),
				ContinuationToken: token,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, res.CommonPrefixes...)
			for _, obj := range res.Objects {
				out = append(out, obj.Key)
			}
			if p.maxObjects < len(res.Objects) {
				p.maxObjects = len(res.Objects)
			}
			if !res.IsTruncated || res.ContinuationToken == "" {
				return out, nil
			}
			token = res.ContinuationToken
		}
	})
	if err != nil {
		return nil, err
	}
	var union []string
	for _, r := range results {
		union = append(union, r...)
	}
	return union, nil
}

// existenceCheck fans out a prefix-existence probe (ListObjectsV2 with
// MaxKeys=1 semantics, via Provider.List) and retains only candidates that
// resolve to at least one real key.
func (p *planState) existenceCheck(ctx context.Context, candidates []string) ([]string, error) {
	results, err := p.fanOut(ctx, candidates, func(ctx context.Context, candidate string) ([]string, error) {
		res, err := p.store.List(ctx, provider.ListOptions{Prefix: candidate, MaxKeys: 1})
		if err != nil {
			return nil, err
		}
		if len(res.Objects) > 0 {
			return []string{candidate}, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	var kept []string
	for _, r := range results {
		kept = append(kept, r...)
	}
	return kept, nil
}

// fanOut runs work over items with concurrency bounded by maxParallelism,
// cancelling and returning the first error encountered. Results are
// returned in input order.
func (p *planState) fanOut(ctx context.Context, items []string, work func(context.Context, string) ([]string, error)) ([][]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	concurrency := p.maxParallelism
	if concurrency > len(items) {
		concurrency = len(items)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]string, len(items))
	indexCh := make(chan int, len(items))
	for i := range items {
		indexCh <- i
	}
	close(indexCh)

	var firstErr atomic.Value
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexCh {
				if ctx.Err() != nil {
					return
				}
				out, err := work(ctx, items[idx])
				if err != nil {
					if firstErr.CompareAndSwap(nil, err) {
						cancel()
					}
					return
				}
				results[idx] = out
			}
		}()
	}
	wg.Wait()

	if v := firstErr.Load(); v != nil {
		return nil, fmt.Errorf("planner: %w", v.(error))
	}
	return results, nil
}

func prefixJoin(a, b string, delimiter byte) string {
	if len(a) > 0 && a[len(a)-1] == delimiter && len(b) > 0 && b[0] == delimiter {
		return a + b[1:]
	}
	return a + b
}

func dedupSorted(items []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}
