package walkthrough

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "steps.yaml")
	if err := os.WriteFile(path, []byte("steps:\n  - id: one\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan *Catalog, 8)
	failures := make(chan error, 8)
	err := WatchCatalog(ctx, path, func(cat *Catalog, err error) {
		if err != nil {
			select {
			case failures <- err:
			default:
			}
			return
		}
		select {
		case reloads <- cat:
		default:
		}
	})
	if err != nil {
		t.Fatalf("WatchCatalog() error = %v", err)
	}

	// Unrelated files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("steps:\n  - id: one\n  - id: two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cat := <-reloads:
			if len(cat.Steps) == 2 {
				return
			}
		case err := <-failures:
			// A reload can observe a partially written file; keep waiting.
			t.Logf("reload error: %v", err)
		case <-deadline:
			t.Fatal("catalog change not reported")
		}
	}
}

func TestWatchCatalog_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "steps.yaml")
	if err := WatchCatalog(context.Background(), path, func(*Catalog, error) {}); err == nil {
		t.Error("WatchCatalog() on a missing directory succeeded")
	}
}
