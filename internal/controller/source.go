package controller

import (
	"github.com/kamkard/gltfview/internal/fetch"
	"github.com/kamkard/gltfview/internal/fileset"
)

// SourceKind names where a load request came from.
type SourceKind string

const (
	SourceAddress SourceKind = "address"
	SourceFiles   SourceKind = "files"
	SourceHandle  SourceKind = "handle"
	SourceFetch   SourceKind = "fetch"
)

// Source is a load request before normalization.
type Source struct {
	kind    SourceKind
	address string
	files   fileset.Set
	handle  fileset.Handle
}

// FromAddress loads an addressable URL as is. The viewer dereferences it.
func FromAddress(u string) Source {
	return Source{kind: SourceAddress, address: u}
}

// FromFiles loads a dropped collection of files.
func FromFiles(set fileset.Set) Source {
	return Source{kind: SourceFiles, files: set}
}

// FromHandle loads a single local file.
func FromHandle(h fileset.Handle) Source {
	return Source{kind: SourceHandle, handle: h}
}

// FromFetch downloads u first and loads the bytes as a single in-memory file.
func FromFetch(u string) Source {
	return Source{kind: SourceFetch, address: u}
}

// Kind returns the source kind.
func (s Source) Kind() SourceKind { return s.kind }

// String describes the source for logs.
func (s Source) String() string {
	switch s.kind {
	case SourceAddress, SourceFetch:
		return string(s.kind) + ":" + s.address
	case SourceHandle:
		if s.handle != nil {
			return "handle:" + s.handle.Name()
		}
	}
	return string(s.kind)
}

// addressSet wraps a URL as a single-entry set keyed by a manifest name so
// resolution accepts addresses without a file extension.
func addressSet(u string) fileset.Set {
	return fileset.Set{fetch.FileName(u): &fileset.Remote{URL: u}}
}
