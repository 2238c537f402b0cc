package fileset

import (
	"errors"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrNoRootAsset is returned when a set contains no .gltf or .glb file.
	ErrNoRootAsset = errors.New("no .gltf or .glb asset found")

	// ErrRemoteHandle is returned when opening a Remote handle locally.
	ErrRemoteHandle = errors.New("remote handle cannot be opened locally")
)

// manifestPattern matches lower-cased base names of root manifests.
var manifestPattern = glob.MustCompile("*.{gltf,glb}")

// IsManifest reports whether name has a .gltf or .glb suffix, ignoring case.
func IsManifest(name string) bool {
	return manifestPattern.Match(strings.ToLower(path.Base(name)))
}

// Root is the resolved root manifest: either a local handle or an address
// the viewer can dereference directly.
type Root struct {
	Key    string
	Handle Handle
	URL    string
}

// Name returns the root's base filename.
func (r Root) Name() string {
	if r.Handle != nil {
		return r.Handle.Name()
	}
	return path.Base(r.Key)
}

// Resolved is a file set with its root manifest identified.
type Resolved struct {
	Root       Root
	BasePath   string
	Siblings   Set
	Candidates []string
}

// Resolve locates the root manifest in set. Keys are visited in lexicographic
// order and the first match wins; every match is listed in Candidates.
func Resolve(set Set) (*Resolved, error) {
	var candidates []string
	for _, key := range set.Keys() {
		if IsManifest(key) {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoRootAsset
	}

	key := candidates[0]
	h := set[key]
	root := Root{Key: key, Handle: h}
	if r, ok := h.(*Remote); ok {
		root = Root{Key: key, URL: r.URL}
	}

	return &Resolved{
		Root:       root,
		BasePath:   BasePath(key),
		Siblings:   set.Without(key),
		Candidates: candidates,
	}, nil
}

// BasePath returns the directory prefix of key including the trailing
// slash, or "" for a top-level key.
func BasePath(key string) string {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return ""
	}
	return key[:i+1]
}
