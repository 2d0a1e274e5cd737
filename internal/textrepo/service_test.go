package textrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSnapshotLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.Snapshot("doc_1", "The quick brown fox.", "Morgan", "")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "doc_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	second, err := svc.Snapshot("doc_1", "The quick brown fox jumps.", "Morgan", "Re-crawl")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if second.Hash == first.Hash {
		t.Fatal("expected a new commit for changed text")
	}

	history, err := svc.History("doc_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Hash != second.Hash {
		t.Fatalf("expected newest first, got %+v", history)
	}

	text, version, err := svc.GetVersion("doc_1", first.Hash)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if text != "The quick brown fox." {
		t.Fatalf("unexpected text at %s: %q", first.Hash, text)
	}
	if version.Hash != first.Hash {
		t.Fatalf("expected version %s, got %s", first.Hash, version.Hash)
	}
}

func TestSnapshotUnchangedTextIsNoOp(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.Snapshot("doc_1", "Same text.", "Morgan", "")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	again, err := svc.Snapshot("doc_1", "Same text.", "Morgan", "Re-crawl")
	if err != nil {
		t.Fatalf("Snapshot() unchanged error = %v", err)
	}
	if again.Hash != first.Hash {
		t.Fatalf("expected head %s for unchanged text, got %s", first.Hash, again.Hash)
	}

	history, err := svc.History("doc_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
}

func TestHistoryForUnknownDocumentIsEmpty(t *testing.T) {
	svc := New(t.TempDir())

	history, err := svc.History("doc_never_seen", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history))
	}
}

func TestConcurrentSnapshotsSameDocument(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if _, err := svc.Snapshot("doc_1", "baseline", "Morgan", ""); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			text := fmt.Sprintf("revision-%02d", idx)
			if _, err := svc.Snapshot("doc_1", text, "Morgan", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("Snapshot() concurrent error = %v", err)
		}
	}

	history, err := svc.History("doc_1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) < writers+1 {
		t.Fatalf("expected at least %d commits in history, got %d", writers+1, len(history))
	}

	head, _, err := svc.GetVersion("doc_1", history[0].Hash)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if !strings.HasPrefix(head, "revision-") {
		t.Fatalf("unexpected head text after concurrent snapshots: %q", head)
	}
}
