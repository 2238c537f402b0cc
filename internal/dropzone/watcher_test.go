package dropzone

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
)

func init() {
	logging.InitNop()
}

func startWatcher(t *testing.T, dir string) chan fileset.Set {
	t.Helper()
	got := make(chan fileset.Set, 4)
	w, err := New(dir, 50*time.Millisecond, func(_ context.Context, set fileset.Set) {
		got <- set
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return got
}

func TestWritesSettleIntoOneDrop(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir)

	for _, name := range []string{"scene.gltf", "scene.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case set := <-got:
		if len(set) != 2 {
			t.Errorf("keys = %v", set.Keys())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for drop")
	}

	select {
	case set := <-got:
		t.Errorf("unexpected second drop: %v", set.Keys())
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubdirectoryFilesIncluded(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir)

	sub := filepath.Join(dir, "textures")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "scene.gltf"), []byte("{}"), 0644)
	os.WriteFile(filepath.Join(sub, "a.png"), []byte("png"), 0644)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case set := <-got:
			if _, ok := set["textures/a.png"]; ok {
				return
			}
		case <-deadline:
			t.Fatal("subdirectory file never delivered")
		}
	}
}

func TestHiddenFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir)

	os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("x"), 0644)

	select {
	case set := <-got:
		t.Errorf("hidden file triggered a drop: %v", set.Keys())
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewRejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	os.WriteFile(f, nil, 0644)
	if _, err := New(f, time.Millisecond, func(context.Context, fileset.Set) {}, nil); err == nil {
		t.Error("expected error for non-directory")
	}
}
