package download_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quayside/s3glob/pkg/download"
	"github.com/quayside/s3glob/pkg/enumerate"
	"github.com/quayside/s3glob/pkg/provider"
	"github.com/quayside/s3glob/pkg/storetest"
)

func TestOrchestrator_DownloadsAndRenamesIntoPlace(t *testing.T) {
	store := storetest.New([]string{"logs/app.log"}).WithBody("logs/app.log", []byte("hello world"))
	dir := t.TempDir()

	orch := download.New(store, download.Config{
		BaseDir:        dir,
		PrefixToStrip:  "logs/",
		Delimiter:      '/',
		MaxParallelism: 4,
	})

	items := make(chan enumerate.Item, 1)
	items <- enumerate.Item{Kind: enumerate.ObjectKind, Object: provider.ObjectSummary{Key: "logs/app.log", Size: 11}}
	close(items)

	notify, stats := orch.Run(context.Background(), items)

	var gotObjectDownloaded bool
	for n := range notify {
		if n.Kind == download.ObjectDownloaded {
			gotObjectDownloaded = true
			if n.Path != filepath.Join(dir, "app.log") {
				t.Fatalf("unexpected path: %s", n.Path)
			}
		}
	}
	if !gotObjectDownloaded {
		t.Fatalf("expected an ObjectDownloaded notification")
	}
	if stats.ObjectsDownloaded.Load() != 1 {
		t.Fatalf("expected ObjectsDownloaded=1, got %d", stats.ObjectsDownloaded.Load())
	}

	content, err := os.ReadFile(filepath.Join(dir, "app.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "hello world" {
		t.Fatalf("unexpected content: %q", content)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".log" {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}

func TestOrchestrator_FlattenReplacesDelimiters(t *testing.T) {
	store := storetest.New([]string{"data/2024/01/report.csv"}).WithBody("data/2024/01/report.csv", []byte("x"))
	dir := t.TempDir()

	orch := download.New(store, download.Config{
		BaseDir:        dir,
		PrefixToStrip:  "data/",
		Delimiter:      '/',
		Flatten:        true,
		MaxParallelism: 2,
	})

	items := make(chan enumerate.Item, 1)
	items <- enumerate.Item{Kind: enumerate.ObjectKind, Object: provider.ObjectSummary{Key: "data/2024/01/report.csv", Size: 1}}
	close(items)

	notify, _ := orch.Run(context.Background(), items)
	for range notify {
	}

	if _, err := os.Stat(filepath.Join(dir, "2024-01-report.csv")); err != nil {
		t.Fatalf("expected flattened file: %v", err)
	}
}

func TestOrchestrator_GetFailureIsLoggedAndSkipped(t *testing.T) {
	store := storetest.New(nil) // no keys: GetObject will fail with ErrNotFound
	dir := t.TempDir()

	orch := download.New(store, download.Config{
		BaseDir:        dir,
		MaxParallelism: 1,
	})

	items := make(chan enumerate.Item, 1)
	items <- enumerate.Item{Kind: enumerate.ObjectKind, Object: provider.ObjectSummary{Key: "missing.txt", Size: 1}}
	close(items)

	notify, stats := orch.Run(context.Background(), items)

	done := make(chan struct{})
	go func() {
		for range notify {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notify channel never closed")
	}

	if stats.Errors.Load() != 1 {
		t.Fatalf("expected Errors=1, got %d", stats.Errors.Load())
	}
	if stats.ObjectsDownloaded.Load() != 0 {
		t.Fatalf("expected no successful downloads")
	}
}
