package viewer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/classify"
	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
)

// Options are passed through from the deep link to every loaded scene.
type Options struct {
	Preset         string
	CameraPosition []float64
	MaxAssetSize   int64
}

// GLTFViewer decodes glTF 2.0 and GLB assets into scenes. It keeps no
// scene of its own; the session decides which decoded scene is shown.
type GLTFViewer struct {
	opener Opener
	opts   Options
}

// NewGLTFViewer creates a viewer that dereferences display URLs with opener.
func NewGLTFViewer(opener Opener, opts Options) *GLTFViewer {
	return &GLTFViewer{opener: opener, opts: opts}
}

func errTooLarge(max int64) error {
	return classify.Tag(classify.ViewerFailure, fmt.Errorf("asset exceeds the %d byte limit", max))
}

// Load reads the manifest at displayURL, resolves its buffers and images
// against siblings and returns the decoded scene.
func (v *GLTFViewer) Load(ctx context.Context, displayURL, basePath string, siblings fileset.Set) (*Scene, error) {
	rc, err := v.opener.Open(ctx, displayURL)
	if err != nil {
		return nil, err
	}
	data, err := readLimited(rc, v.opts.MaxAssetSize)
	rc.Close()
	if err != nil {
		return nil, err
	}

	rfs := newResourceFS(ctx, displayURL, basePath, siblings, v.opener, v.opts.MaxAssetSize)
	doc := new(gltf.Document)
	if err := gltf.NewDecoderFS(bytes.NewReader(data), rfs).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", displayURL, err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, classify.Tag(classify.ViewerFailure,
			fmt.Errorf("unsupported glTF version %q", doc.Asset.Version))
	}

	images, err := loadImages(doc, rfs)
	if err != nil {
		return nil, err
	}

	scene := &Scene{
		ID:             uuid.NewString(),
		Name:           sceneName(displayURL, doc),
		BasePath:       basePath,
		Stats:          statsOf(doc, int64(len(data))),
		Images:         images,
		Referenced:     rfs.Used(),
		Preset:         v.opts.Preset,
		CameraPosition: v.opts.CameraPosition,
		LoadedAt:       time.Now(),
		Document:       doc,
	}

	logging.Debug("scene decoded",
		zap.String("scene", scene.ID),
		zap.Int("nodes", scene.Stats.Nodes),
		zap.Int("meshes", scene.Stats.Meshes))
	return scene, nil
}

// Clear is called before a load replaces a shown scene. Decoded scenes are
// owned by their callers, so there is nothing to tear down.
func (v *GLTFViewer) Clear() {
	logging.Debug("viewer cleared")
}

// loadImages reads every external image so a missing texture fails the load
// with the image's address attached.
func loadImages(doc *gltf.Document, rfs *resourceFS) ([]ImageInfo, error) {
	var infos []ImageInfo
	for _, img := range doc.Images {
		if img == nil || img.BufferView != nil || img.URI == "" || strings.HasPrefix(img.URI, "data:") {
			continue
		}
		data, err := rfs.read(img.URI)
		if err != nil {
			return nil, &MissingResourceError{Ref: img.URI, Src: rfs.source(img.URI), Image: true, Err: err}
		}
		info := ImageInfo{URI: img.URI}
		if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			info.Format = format
			info.Width = cfg.Width
			info.Height = cfg.Height
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func statsOf(doc *gltf.Document, size int64) Stats {
	return Stats{
		Version:    doc.Asset.Version,
		Generator:  doc.Asset.Generator,
		Scenes:     len(doc.Scenes),
		Nodes:      len(doc.Nodes),
		Meshes:     len(doc.Meshes),
		Materials:  len(doc.Materials),
		Textures:   len(doc.Textures),
		Images:     len(doc.Images),
		Animations: len(doc.Animations),
		Buffers:    len(doc.Buffers),
		Bytes:      size,
	}
}

func sceneName(displayURL string, doc *gltf.Document) string {
	if doc.Scene != nil {
		i := int(*doc.Scene)
		if i >= 0 && i < len(doc.Scenes) && doc.Scenes[i] != nil && doc.Scenes[i].Name != "" {
			return doc.Scenes[i].Name
		}
	}
	return (&fileset.Remote{URL: displayURL}).Name()
}
