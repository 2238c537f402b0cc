// Package viewer defines the rendering component contract consumed by the
// session controller and ships a glTF-decoding implementation of it.
package viewer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/qmuntal/gltf"

	"github.com/kamkard/gltfview/internal/fileset"
)

// Viewer loads a resolved asset into a scene and clears the current one.
type Viewer interface {
	Load(ctx context.Context, displayURL, basePath string, siblings fileset.Set) (*Scene, error)
	Clear()
}

// Opener dereferences a display URL.
type Opener interface {
	Open(ctx context.Context, displayURL string) (io.ReadCloser, error)
}

// Scene is the handle to a loaded asset.
type Scene struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	BasePath       string         `json:"base_path"`
	Stats          Stats          `json:"stats"`
	Images         []ImageInfo    `json:"images,omitempty"`
	Referenced     []string       `json:"referenced,omitempty"`
	Preset         string         `json:"preset,omitempty"`
	CameraPosition []float64      `json:"camera_position,omitempty"`
	LoadedAt       time.Time      `json:"loaded_at"`
	Document       *gltf.Document `json:"-"`
}

// Stats summarizes a scene's contents.
type Stats struct {
	Version    string `json:"version"`
	Generator  string `json:"generator,omitempty"`
	Scenes     int    `json:"scenes"`
	Nodes      int    `json:"nodes"`
	Meshes     int    `json:"meshes"`
	Materials  int    `json:"materials"`
	Textures   int    `json:"textures"`
	Images     int    `json:"images"`
	Animations int    `json:"animations"`
	Buffers    int    `json:"buffers"`
	Bytes      int64  `json:"bytes"`
}

// ImageInfo describes an external image referenced by the scene.
type ImageInfo struct {
	URI    string `json:"uri"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// MissingResourceError is returned when a file referenced by the manifest is
// not in the file set and cannot be fetched.
type MissingResourceError struct {
	Ref   string
	Src   string
	Image bool
	Err   error
}

func (e *MissingResourceError) Error() string {
	kind := "resource"
	if e.Image {
		kind = "image"
	}
	if e.Err != nil {
		return fmt.Sprintf("missing %s %s: %v", kind, e.Ref, e.Err)
	}
	return fmt.Sprintf("missing %s %s", kind, e.Ref)
}

func (e *MissingResourceError) Unwrap() error { return e.Err }

// ImageSource returns the address of the missing image, or "" when the
// missing resource is not an image.
func (e *MissingResourceError) ImageSource() string {
	if !e.Image {
		return ""
	}
	if e.Src != "" {
		return e.Src
	}
	return e.Ref
}
