package viewer

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/kamkard/gltfview/internal/fileset"
)

// resourceFS resolves relative references of a manifest against the file set
// first and, for manifests loaded from an http(s) address, against the
// manifest's directory URL.
type resourceFS struct {
	ctx      context.Context
	siblings fileset.Set
	basePath string
	opener   Opener
	remote   *url.URL
	maxSize  int64

	mu   sync.Mutex
	used map[string]struct{}
}

func newResourceFS(ctx context.Context, displayURL, basePath string, siblings fileset.Set, opener Opener, maxSize int64) *resourceFS {
	rfs := &resourceFS{
		ctx:      ctx,
		siblings: siblings,
		basePath: basePath,
		opener:   opener,
		maxSize:  maxSize,
		used:     make(map[string]struct{}),
	}
	if u, err := url.Parse(displayURL); err == nil && (u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "s3") {
		rfs.remote = u
	}
	return rfs
}

// Open implements fs.FS.
func (r *resourceFS) Open(name string) (fs.File, error) {
	data, err := r.read(name)
	if err != nil {
		return nil, err
	}
	return &memFile{name: path.Base(name), Reader: bytes.NewReader(data), size: int64(len(data))}, nil
}

func (r *resourceFS) read(name string) ([]byte, error) {
	ref := name
	if u, err := url.PathUnescape(name); err == nil {
		ref = u
	}

	if key, h, ok := r.siblings.Lookup(r.basePath, ref); ok {
		r.markUsed(key)
		rc, err := h.Open()
		if err != nil {
			return nil, &MissingResourceError{Ref: ref, Err: err}
		}
		defer rc.Close()
		return readLimited(rc, r.maxSize)
	}

	if r.remote != nil && r.opener != nil {
		rel, err := url.Parse(name)
		if err != nil {
			return nil, &MissingResourceError{Ref: ref, Err: err}
		}
		src := r.remote.ResolveReference(rel).String()
		rc, err := r.opener.Open(r.ctx, src)
		if err != nil {
			return nil, &MissingResourceError{Ref: ref, Src: src, Err: err}
		}
		defer rc.Close()
		return readLimited(rc, r.maxSize)
	}

	return nil, &MissingResourceError{Ref: ref, Err: fs.ErrNotExist}
}

// source returns the address a reference resolves to, for error reporting.
func (r *resourceFS) source(ref string) string {
	if r.remote != nil {
		if rel, err := url.Parse(ref); err == nil {
			return r.remote.ResolveReference(rel).String()
		}
	}
	return r.basePath + ref
}

func (r *resourceFS) markUsed(key string) {
	r.mu.Lock()
	r.used[key] = struct{}{}
	r.mu.Unlock()
}

// Used returns the sibling keys that were read, in lexicographic order.
func (r *resourceFS) Used() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, k := range r.siblings.Keys() {
		if _, ok := r.used[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func readLimited(rd io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(rd)
	}
	data, err := io.ReadAll(io.LimitReader(rd, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errTooLarge(max)
	}
	return data, nil
}

type memFile struct {
	*bytes.Reader
	name string
	size int64
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f, nil }
func (f *memFile) Close() error               { return nil }

func (f *memFile) Name() string       { return f.name }
func (f *memFile) Size() int64        { return f.size }
func (f *memFile) Mode() fs.FileMode  { return 0444 }
func (f *memFile) ModTime() time.Time { return time.Time{} }
func (f *memFile) IsDir() bool        { return false }
func (f *memFile) Sys() any           { return nil }
