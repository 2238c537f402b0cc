// Package fileset models a set of named files submitted together and
// resolves the root glTF manifest inside it.
package fileset

import (
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Handle is an opaque binary resource in a file set.
type Handle interface {
	// Name is the base filename of the resource.
	Name() string
	// Size is the content length in bytes, or -1 when unknown.
	Size() int64
	// Open returns a reader over the full content.
	Open() (io.ReadCloser, error)
}

// Set maps relative slash paths to file handles. Iteration order is
// irrelevant; Keys returns a deterministic order.
type Set map[string]Handle

// Keys returns the set's paths in lexicographic order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Without returns a copy of s with key removed.
func (s Set) Without(key string) Set {
	out := make(Set, len(s))
	for k, h := range s {
		if k != key {
			out[k] = h
		}
	}
	return out
}

// Lookup finds a resource by path relative to basePath and returns its key.
// Backslashes and leading "./" are normalized so references written on
// Windows still resolve.
func (s Set) Lookup(basePath, ref string) (string, Handle, bool) {
	ref = strings.ReplaceAll(ref, "\\", "/")
	candidates := []string{
		path.Clean(basePath + ref),
		path.Clean(ref),
		strings.TrimPrefix(ref, "./"),
	}
	for _, c := range candidates {
		if h, ok := s[c]; ok {
			return c, h, true
		}
	}
	return "", nil, false
}

// Bytes is an in-memory file handle.
type Bytes struct {
	FileName    string
	ContentType string
	Data        []byte
}

// NewBytes wraps data as a named in-memory handle.
func NewBytes(name, contentType string, data []byte) *Bytes {
	return &Bytes{FileName: name, ContentType: contentType, Data: data}
}

func (b *Bytes) Name() string { return b.FileName }
func (b *Bytes) Size() int64  { return int64(len(b.Data)) }

func (b *Bytes) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// LocalFile is a handle backed by a file on disk.
type LocalFile struct {
	Path string
	size int64
}

// NewLocalFile stats path and returns a handle for it.
func NewLocalFile(p string) (*LocalFile, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	return &LocalFile{Path: p, size: info.Size()}, nil
}

func (f *LocalFile) Name() string { return filepath.Base(f.Path) }
func (f *LocalFile) Size() int64  { return f.size }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

// Remote is a handle for an addressable URL. The core never opens it; the
// URL is passed to the viewer as is.
type Remote struct {
	URL string
}

func (r *Remote) Name() string {
	p := r.URL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return path.Base(p)
}

func (r *Remote) Size() int64 { return -1 }

func (r *Remote) Open() (io.ReadCloser, error) {
	return nil, ErrRemoteHandle
}

// FromDir walks root and returns a set keyed by slash paths relative to root.
// Hidden files and directories are skipped.
func FromDir(root string) (Set, error) {
	set := make(Set)
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if p != root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		h, err := NewLocalFile(p)
		if err != nil {
			return err
		}
		set[filepath.ToSlash(rel)] = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}
