// Package dropzone turns files written into a watched directory into drops.
package dropzone

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
)

// LoadFunc receives the directory contents once writes have settled.
type LoadFunc func(ctx context.Context, set fileset.Set)

// ErrorFunc receives failures reading the directory.
type ErrorFunc func(err error)

// Watcher debounces file events under a directory and hands the whole
// directory to a LoadFunc as one file set.
type Watcher struct {
	dir     string
	settle  time.Duration
	load    LoadFunc
	onError ErrorFunc

	fsWatcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a watcher for dir. onError may be nil.
func New(dir string, settle time.Duration, load LoadFunc, onError ErrorFunc) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("error accessing drop directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		dir:       dir,
		settle:    settle,
		load:      load,
		onError:   onError,
		fsWatcher: fsWatcher,
	}, nil
}

// Start watches dir and its subdirectories until Stop or ctx ends.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.addTree(w.dir); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	go w.loop(ctx)

	logging.Info("watching drop directory",
		zap.String("dir", w.dir),
		zap.Duration("settle", w.settle))
	return nil
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	if err := w.fsWatcher.Close(); err != nil {
		logging.Error("error closing fsnotify watcher", zap.Error(err))
	}
	logging.Info("drop directory watcher stopped")
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(w.settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if hidden(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						logging.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
					}
				}
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Rename) {
				timer.Reset(w.settle)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Error("fsnotify watcher error", zap.Error(err))

		case <-timer.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	set, err := fileset.FromDir(w.dir)
	if err != nil {
		logging.Error("failed to read drop directory", zap.String("dir", w.dir), zap.Error(err))
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	if len(set) == 0 {
		return
	}
	logging.Info("drop directory settled", zap.Int("files", len(set)))
	w.load(ctx, set)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.dir && hidden(p) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(p); err != nil {
			return fmt.Errorf("failed to add directory %s to watcher: %w", p, err)
		}
		return nil
	})
}

func hidden(p string) bool {
	return strings.HasPrefix(filepath.Base(p), ".")
}
