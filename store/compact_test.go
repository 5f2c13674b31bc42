package store_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kvcask/kvcask/errdef"
)

func fileSize(t *testing.T, path string) int64 {
	t.Helper()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info.Size()
}

func TestOptimizeReclaimsDeletedSpace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test")

	s := quiet(t, dir, "test")

	for i := 0; i < 20; i++ {
		if err := s.Create(fmt.Sprintf("k%d", i), fmt.Sprintf("value-%d", i), 0); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 15; i++ {
		if err := s.Delete(fmt.Sprintf("k%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Sync(); err != nil {
		t.Fatal(err)
	}

	before := fileSize(t, path)

	if err := s.Optimize(); err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	after := fileSize(t, path)
	if after >= before {
		t.Fatalf("file size after optimize = %d, want < %d", after, before)
	}

	// Every surviving key keeps its value.
	for i := 15; i < 20; i++ {
		mustRead(t, s, fmt.Sprintf("k%d", i), fmt.Sprintf("value-%d", i))
	}
	for i := 0; i < 15; i++ {
		if _, err := s.Read(fmt.Sprintf("k%d", i)); !errors.Is(err, errdef.ErrKeyNotFound) {
			t.Fatalf("deleted key k%d resurrected: %v", i, err)
		}
	}
}

func TestOptimizeFlushesPendingOps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test")

	s := quiet(t, dir, "test")
	if err := s.Create("buffered", 1, 0); err != nil {
		t.Fatal(err)
	}

	if err := s.Optimize(); err != nil {
		t.Fatal(err)
	}

	if fileSize(t, path) <= 40 {
		t.Fatal("buffered create not flushed by optimize")
	}
	mustRead(t, s, "buffered", 1)
}

func TestOptimizeDropsExpiredRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test")

	s := quiet(t, dir, "test")
	if err := s.Create("stale", "will expire", 40*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := s.Create("fresh", "stays", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Sync(); err != nil {
		t.Fatal(err)
	}

	before := fileSize(t, path)
	time.Sleep(80 * time.Millisecond)

	if err := s.Optimize(); err != nil {
		t.Fatal(err)
	}

	if after := fileSize(t, path); after >= before {
		t.Fatalf("file size after optimize = %d, want < %d", after, before)
	}
	mustRead(t, s, "fresh", "stays")
	if _, err := s.Read("stale"); !errors.Is(err, errdef.ErrKeyNotFound) {
		t.Fatalf("expired key survived optimize: %v", err)
	}
}

func TestOptimizeOnEmptyStore(t *testing.T) {
	s := quiet(t, t.TempDir(), "test")

	if err := s.Optimize(); err != nil {
		t.Fatalf("optimize on empty store failed: %v", err)
	}
}

func TestOptimizeSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s := quiet(t, dir, "test")
	if err := s.Create("kept", map[string]bool{"ok": true}, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Create("gone", "tmp", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("gone"); err != nil {
		t.Fatal(err)
	}
	if err := s.Optimize(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := quiet(t, dir, "test")
	mustRead(t, reopened, "kept", map[string]bool{"ok": true})
	if _, err := reopened.Read("gone"); !errors.Is(err, errdef.ErrKeyNotFound) {
		t.Fatalf("deleted key survived optimize and reopen: %v", err)
	}
}
