package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestWatcherReloadPicksUpFileChanges(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	if err := os.WriteFile(path, []byte("facts:\n  - id: a\n    text: original\n"), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	if err := LoadIntoStore(path, store); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, store)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("facts:\n  - id: a\n    text: updated\n  - id: b\n    text: added\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for store.Len() != 2 {
		select {
		case <-deadline:
			t.Fatalf("store not reloaded after file change (facts=%d, reloads=%d)", store.Len(), w.Reloads())
		case <-time.After(50 * time.Millisecond):
		}
	}

	if got := store.Snapshot().Facts[0].Text; got != "updated" {
		t.Errorf("fact text = %q, want %q", got, "updated")
	}
}

func TestWatcherManualReload(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	if err := os.WriteFile(path, []byte("facts:\n  - id: a\n    text: v1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	w, err := NewWatcher(path, store)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	w.Reload()
	if store.Len() != 1 {
		t.Errorf("store has %d facts after reload, want 1", store.Len())
	}
	if w.Reloads() != 1 {
		t.Errorf("Reloads() = %d, want 1", w.Reloads())
	}

	w.Stop()
	w.Stop() // Stop is idempotent
}

func TestWatcherBadReloadKeepsOldFacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	if err := os.WriteFile(path, []byte("facts:\n  - id: a\n    text: good\n"), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore()
	if err := LoadIntoStore(path, store); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, store)
	if err != nil {
		t.Fatal(err)
	}
	// Not started: Reload can be driven directly.
	defer w.watcher.Close()

	if err := os.WriteFile(path, []byte("facts: [un{closed"), 0644); err != nil {
		t.Fatal(err)
	}

	w.Reload()
	if store.Len() != 1 || store.Snapshot().Facts[0].Text != "good" {
		t.Error("broken file clobbered the loaded facts")
	}
	if w.Reloads() != 0 {
		t.Errorf("broken reload counted as success: %d", w.Reloads())
	}
}
