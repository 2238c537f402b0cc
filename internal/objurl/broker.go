// Package objurl allocates temporary "blob:" URLs for in-memory or on-disk
// file handles, in the manner of a browser's object URLs.
package objurl

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/metrics"
)

// Scheme prefixes every URL the broker allocates.
const Scheme = "blob:"

var (
	// ErrNotFound is returned when dereferencing a released or unknown URL.
	ErrNotFound = errors.New("object URL not found or already released")

	// ErrEmptyRoot is returned when a root has neither a handle nor a URL.
	ErrEmptyRoot = errors.New("root has no handle or address")
)

// Broker tracks live object URLs. The zero value is not usable; use New.
type Broker struct {
	mu    sync.RWMutex
	blobs map[string]fileset.Handle
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{blobs: make(map[string]fileset.Handle)}
}

// Allocate returns a display URL for root. An addressable root is returned
// unchanged and creates nothing; a handle gets a fresh blob URL that stays
// valid until Release.
func (b *Broker) Allocate(root fileset.Root) (string, error) {
	if root.Handle == nil {
		if root.URL == "" {
			return "", ErrEmptyRoot
		}
		return root.URL, nil
	}

	u := Scheme + uuid.NewString()
	b.mu.Lock()
	b.blobs[u] = root.Handle
	n := len(b.blobs)
	b.mu.Unlock()

	metrics.RecordObjectURLAllocated()
	metrics.SetObjectURLsActive(n)
	logging.Debug("object URL allocated", zap.String("url", u), zap.String("name", root.Handle.Name()))
	return u, nil
}

// Release frees a URL created by Allocate and reports whether anything was
// freed. Remote or already released URLs are a no-op.
func (b *Broker) Release(u string) bool {
	if !IsObjectURL(u) {
		return false
	}
	b.mu.Lock()
	_, ok := b.blobs[u]
	delete(b.blobs, u)
	n := len(b.blobs)
	b.mu.Unlock()

	if ok {
		metrics.SetObjectURLsActive(n)
		logging.Debug("object URL released", zap.String("url", u))
	}
	return ok
}

// Live returns the number of allocated URLs not yet released.
func (b *Broker) Live() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}

// Lookup returns the handle behind a live URL.
func (b *Broker) Lookup(u string) (fileset.Handle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.blobs[u]
	return h, ok
}

// Open dereferences a live blob URL.
func (b *Broker) Open(_ context.Context, u string) (io.ReadCloser, error) {
	h, ok := b.Lookup(u)
	if !ok {
		return nil, ErrNotFound
	}
	return h.Open()
}

// IsObjectURL reports whether u was minted by a Broker.
func IsObjectURL(u string) bool {
	return strings.HasPrefix(u, Scheme)
}

// ServeHTTP serves GET /blob/{id} for browser-side viewers.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "object id required", http.StatusBadRequest)
		return
	}
	h, ok := b.Lookup(Scheme + id)
	if !ok {
		http.Error(w, ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	rc, err := h.Open()
	if err != nil {
		logging.WithContext(r.Context()).Error("open object URL", zap.String("id", id), zap.Error(err))
		http.Error(w, "cannot open object", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType(h))
	w.Header().Set("Cache-Control", "no-store")
	if size := h.Size(); size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		logging.WithContext(r.Context()).Warn("copy object URL", zap.String("id", id), zap.Error(err))
	}
}

func contentType(h fileset.Handle) string {
	if bh, ok := h.(*fileset.Bytes); ok && bh.ContentType != "" {
		return bh.ContentType
	}
	ext := strings.ToLower(path.Ext(h.Name()))
	switch ext {
	case ".gltf":
		return "model/gltf+json"
	case ".glb":
		return "model/gltf-binary"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
