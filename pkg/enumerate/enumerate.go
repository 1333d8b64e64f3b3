// Package enumerate turns a planner.Result and a compiled pattern into a
// stream of matched objects (or, when planning left a prefix unresolved,
// placeholder prefixes), fanning out over the store bounded by a shared
// parallelism cap.
package enumerate

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/quayside/s3glob/pkg/planner"
	"github.com/quayside/s3glob/pkg/provider"
)

// Kind distinguishes a resolved object from an unresolved prefix
// placeholder in the result stream.
type Kind int

const (
	// ObjectKind is a single matched object.
	ObjectKind Kind = iota
	// PrefixKind is an unresolved planning result, surfaced rather than
	// silently dropped: a HEAD miss in is_complete mode, or, in listing
	// mode with plan.FoldRemainder set, a listed key the pattern does not
	// match, folded to the next delimiter boundary past its prefix.
	PrefixKind
)

// Item is one entry in the enumeration result stream.
type Item struct {
	Kind   Kind
	Object provider.ObjectSummary // valid when Kind == ObjectKind
	Prefix string                 // valid when Kind == PrefixKind
}

// Store is the subset of store capabilities enumeration needs.
type Store interface {
	provider.Provider
}

// Stats holds the shared atomic counters progress reporters read while
// enumeration is in flight.
type Stats struct {
	TotalObjects atomic.Int64
	SeenPrefixes atomic.Int64
}

// channelCapacity sizes the result channel proportionally to the
// parallelism cap, matching §5's "bounded channel of size proportional to
// max_parallelism" backpressure rule.
func channelCapacity(maxParallelism int) int {
	if maxParallelism <= 0 {
		return 64
	}
	if maxParallelism > 4096 {
		return 4096
	}
	return maxParallelism
}

// Run starts enumeration in the background and returns the item stream, the
// shared stats, and an error channel. The item channel is closed when
// enumeration finishes (successfully or not), and errCh is closed right
// after it, so a receive on errCh never blocks once items is drained; at
// most one error is ever
// sent on errCh, and only when a store call itself fails — a HEAD miss in
// is_complete mode is not an error, it becomes a PrefixKind item.
func Run(ctx context.Context, store Store, plan *planner.Result, pattern *regexp.Regexp, delimiter byte, maxParallelism int) (<-chan Item, *Stats, <-chan error) {
	if maxParallelism <= 0 {
		maxParallelism = 1
	}

	items := make(chan Item, channelCapacity(maxParallelism))
	errCh := make(chan error, 1)
	stats := &Stats{}

	go func() {
		defer close(errCh)
		defer close(items)

		var err error
		if plan.IsComplete {
			err = runHeadOnly(ctx, store, plan.Prefixes, maxParallelism, items, stats)
		} else {
			err = runListings(ctx, store, plan.Prefixes, pattern, delimiter, plan.FoldRemainder, maxParallelism, items, stats)
		}
		if err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	}()

	return items, stats, errCh
}

// runHeadOnly issues one HEAD per prefix, bounded by maxParallelism. A
// not-found result downgrades to a Prefix placeholder (error kind 4); any
// other store error aborts the run (error kind 3).
func runHeadOnly(ctx context.Context, store Store, prefixes []string, maxParallelism int, items chan<- Item, stats *Stats) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	concurrency := maxParallelism
	if concurrency > len(prefixes) {
		concurrency = len(prefixes)
	}
	if concurrency == 0 {
		return nil
	}

	work := make(chan string, len(prefixes))
	for _, p := range prefixes {
		work <- p
	}
	close(work)

	var firstErr atomic.Value
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range work {
				if ctx.Err() != nil {
					return
				}
				stats.SeenPrefixes.Add(1)
				meta, err := store.Head(ctx, key)
				if err != nil {
					if provider.IsNotFound(err) {
						if !sendItem(ctx, items, Item{Kind: PrefixKind, Prefix: key}) {
							return
						}
						continue
					}
					if firstErr.CompareAndSwap(nil, err) {
						cancel()
					}
					return
				}
				stats.TotalObjects.Add(1)
				if !sendItem(ctx, items, Item{Kind: ObjectKind, Object: meta.ObjectSummary}) {
					return
				}
			}
		}()
	}
	wg.Wait()

	if v := firstErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// runListings paginates list_v2(prefix) without a delimiter for every
// prefix, bounded by maxParallelism, and emits every key the compiled
// pattern matches. When foldRemainder is set (the plan left a trailing
// single-component wildcard unscanned, rather than halting on a Recursive
// segment), a key that falls under prefix but carries extra
// delimiter-separated components the pattern can't match is folded into a
// Prefix placeholder at the next delimiter boundary instead of being
// silently dropped, per §8 scenario 3.
func runListings(ctx context.Context, store Store, prefixes []string, pattern *regexp.Regexp, delimiter byte, foldRemainder bool, maxParallelism int, items chan<- Item, stats *Stats) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	concurrency := maxParallelism
	if concurrency > len(prefixes) {
		concurrency = len(prefixes)
	}
	if concurrency == 0 {
		return nil
	}

	work := make(chan string, len(prefixes))
	for _, p := range prefixes {
		work <- p
	}
	close(work)

	var firstErr atomic.Value
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for prefix := range work {
				if ctx.Err() != nil {
					return
				}
				if err := listOne(ctx, store, prefix, pattern, delimiter, foldRemainder, items, stats); err != nil {
					if firstErr.CompareAndSwap(nil, err) {
						cancel()
					}
					return
				}
			}
		}()
	}
	wg.Wait()

	if v := firstErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func listOne(ctx context.Context, store Store, prefix string, pattern *regexp.Regexp, delimiter byte, foldRemainder bool, items chan<- Item, stats *Stats) error {
	stats.SeenPrefixes.Add(1)
	var seenPlaceholders map[string]struct{}
	if foldRemainder {
		seenPlaceholders = map[string]struct{}{}
	}
	token := ""
	for {
		res, err := store.List(ctx, provider.ListOptions{Prefix: prefix, ContinuationToken: token})
		if err != nil {
			return err
		}
		for _, obj := range res.Objects {
			if pattern.MatchString(obj.Key) {
				stats.TotalObjects.Add(1)
				if !sendItem(ctx, items, Item{Kind: ObjectKind, Object: obj}) {
					return nil
				}
				continue
			}
			if !foldRemainder {
				continue
			}
			placeholder, ok := foldToPlaceholder(obj.Key, prefix, delimiter)
			if !ok {
				continue
			}
			if _, dup := seenPlaceholders[placeholder]; dup {
				continue
			}
			seenPlaceholders[placeholder] = struct{}{}
			if !sendItem(ctx, items, Item{Kind: PrefixKind, Prefix: placeholder}) {
				return nil
			}
		}
		if !res.IsTruncated || res.ContinuationToken == "" {
			return nil
		}
		token = res.ContinuationToken
	}
}

// foldToPlaceholder reduces a key that doesn't match the compiled pattern
// to the common prefix at the first delimiter past prefix, mirroring what
// a delimited list_v2 call would have returned as a common prefix. Keys
// with no further delimiter past prefix carry no discoverable placeholder.
func foldToPlaceholder(key, prefix string, delimiter byte) (string, bool) {
	if len(key) <= len(prefix) {
		return "", false
	}
	remainder := key[len(prefix):]
	idx := -1
	for i := 0; i < len(remainder); i++ {
		if remainder[i] == delimiter {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	return prefix + remainder[:idx+1], true
}

// sendItem blocks on the bounded channel until the item is accepted or the
// context is cancelled. Returns false if the caller should stop producing.
func sendItem(ctx context.Context, items chan<- Item, it Item) bool {
	select {
	case items <- it:
		return true
	case <-ctx.Done():
		return false
	}
}
