package enumerate_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/quayside/s3glob/pkg/enumerate"
	"github.com/quayside/s3glob/pkg/glob"
	"github.com/quayside/s3glob/pkg/planner"
	"github.com/quayside/s3glob/pkg/storetest"
)

func collect(t *testing.T, items <-chan enumerate.Item, errCh <-chan error) ([]enumerate.Item, error) {
	t.Helper()
	var got []enumerate.Item
	for it := range items {
		got = append(got, it)
	}
	select {
	case err := <-errCh:
		return got, err
	case <-time.After(time.Millisecond):
		return got, nil
	}
}

func TestRun_IsCompleteEmitsObjectsViaHead(t *testing.T) {
	store := storetest.New([]string{
		"logs/2024-01-01/app.log",
		"logs/2024-01-02/app.log",
	})
	segs, err := glob.Parse("logs/2024-01-01/app.log", '/')
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pattern, err := glob.Compile(segs, '/')
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	plan, err := planner.Plan(context.Background(), store, segs, '/', 4)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	items, stats, errCh := enumerate.Run(context.Background(), store, plan, pattern, '/', 4)
	got, runErr := collect(t, items, errCh)
	if runErr != nil {
		t.Fatalf("Run error: %v", runErr)
	}
	if len(got) != 1 || got[0].Kind != enumerate.ObjectKind || got[0].Object.Key != "logs/2024-01-01/app.log" {
		t.Fatalf("unexpected items: %+v", got)
	}
	if stats.TotalObjects.Load() != 1 {
		t.Fatalf("expected TotalObjects=1, got %d", stats.TotalObjects.Load())
	}
}

func TestRun_IsCompleteHeadMissDowngradesToPrefix(t *testing.T) {
	store := storetest.New([]string{
		"logs/2024-01-02/app.log",
	})
	// Plan a pattern whose literal never existed: force Plan to report
	// IsComplete by hand-building a planner.Result rather than going through
	// Plan (which would already have filtered the miss via existence check).
	segs, err := glob.Parse("logs/2024-01-01/app.log", '/')
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pattern, err := glob.Compile(segs, '/')
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	plan := &planner.Result{Prefixes: []string{"logs/2024-01-01/app.log"}, IsComplete: true}

	items, _, errCh := enumerate.Run(context.Background(), store, plan, pattern, '/', 4)
	got, runErr := collect(t, items, errCh)
	if runErr != nil {
		t.Fatalf("Run error: %v", runErr)
	}
	if len(got) != 1 || got[0].Kind != enumerate.PrefixKind || got[0].Prefix != "logs/2024-01-01/app.log" {
		t.Fatalf("expected a Prefix placeholder for the HEAD miss, got %+v", got)
	}
}

func TestRun_IncompletePaginatesAndAppliesRegex(t *testing.T) {
	store := storetest.New([]string{
		"src/a/b/test.rs",
		"src/a/c/test.rs",
		"src/a/other.txt",
		"src/test.rs",
	})
	segs, err := glob.Parse("src/**/test.rs", '/')
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pattern, err := glob.Compile(segs, '/')
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	plan, err := planner.Plan(context.Background(), store, segs, '/', 4)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.IsComplete {
		t.Fatalf("expected IsComplete=false for a recursive pattern")
	}

	items, _, errCh := enumerate.Run(context.Background(), store, plan, pattern, '/', 4)
	got, runErr := collect(t, items, errCh)
	if runErr != nil {
		t.Fatalf("Run error: %v", runErr)
	}

	var keys []string
	for _, it := range got {
		if it.Kind != enumerate.ObjectKind {
			t.Fatalf("expected only ObjectKind items in list mode, got %+v", it)
		}
		keys = append(keys, it.Object.Key)
	}
	sort.Strings(keys)
	want := []string{"src/a/b/test.rs", "src/a/c/test.rs"}
	if len(keys) != len(want) {
		t.Fatalf("unexpected matches: %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("unexpected matches: %v", keys)
		}
	}
}
