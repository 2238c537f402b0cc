// Package validator produces structural validation reports for loaded scenes.
package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/qmuntal/gltf"

	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/viewer"
)

// Validator receives every displayed scene. It has no return value; reports
// are delivered out of band.
type Validator interface {
	Validate(ctx context.Context, displayURL, basePath string, siblings fileset.Set, scene *viewer.Scene)
}

// Severity of an issue, ordered like the Khronos validator's.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "hint"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Issue is a single finding.
type Issue struct {
	Code     string   `json:"code" yaml:"code"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	Pointer  string   `json:"pointer,omitempty" yaml:"pointer,omitempty"`
}

// Report is the outcome of validating one scene.
type Report struct {
	SceneID     string        `json:"scene_id" yaml:"scene_id"`
	Name        string        `json:"name" yaml:"name"`
	Version     string        `json:"version" yaml:"version"`
	Generator   string        `json:"generator,omitempty" yaml:"generator,omitempty"`
	NumErrors   int           `json:"errors" yaml:"errors"`
	NumWarnings int           `json:"warnings" yaml:"warnings"`
	NumInfos    int           `json:"infos" yaml:"infos"`
	NumHints    int           `json:"hints" yaml:"hints"`
	Issues      []Issue       `json:"issues" yaml:"issues"`
	ValidatedAt time.Time     `json:"validated_at" yaml:"validated_at"`
	Duration    time.Duration `json:"duration_ns" yaml:"duration"`
}

// Valid reports whether no errors were found.
func (r *Report) Valid() bool { return r.NumErrors == 0 }

func (r *Report) add(sev Severity, code, pointer, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Code:     code,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Pointer:  pointer,
	})
	switch sev {
	case SeverityError:
		r.NumErrors++
	case SeverityWarning:
		r.NumWarnings++
	case SeverityInfo:
		r.NumInfos++
	default:
		r.NumHints++
	}
}

// Check validates scene's document and the side files it was loaded with.
func Check(scene *viewer.Scene, siblings fileset.Set) *Report {
	start := time.Now()
	r := &Report{
		SceneID: scene.ID,
		Name:    scene.Name,
		Version: scene.Stats.Version,
		Issues:  []Issue{},
	}
	r.Generator = scene.Stats.Generator

	if doc := scene.Document; doc != nil {
		checkAsset(r, doc)
		checkScenes(r, doc)
		checkNodes(r, doc)
		checkMeshes(r, doc)
		checkAccessors(r, doc)
		checkTextures(r, doc)
		checkMaterials(r, doc)
	} else {
		r.add(SeverityError, "DOCUMENT_MISSING", "", "scene has no parsed document")
	}
	checkImages(r, scene.Images)
	checkUnused(r, scene, siblings)

	r.ValidatedAt = time.Now()
	r.Duration = time.Since(start)
	return r
}

func checkAsset(r *Report, doc *gltf.Document) {
	if doc.Asset.Version != "2.0" {
		r.add(SeverityWarning, "VERSION_UNKNOWN", "/asset/version", "unexpected asset version %q", doc.Asset.Version)
	}
	if doc.Asset.Generator == "" {
		r.add(SeverityHint, "GENERATOR_MISSING", "/asset/generator", "asset generator is not set")
	}
	used := make(map[string]bool, len(doc.ExtensionsUsed))
	for _, e := range doc.ExtensionsUsed {
		used[e] = true
	}
	for i, e := range doc.ExtensionsRequired {
		if !used[e] {
			r.add(SeverityError, "EXTENSION_REQUIRED_NOT_USED", fmt.Sprintf("/extensionsRequired/%d", i),
				"required extension %s is not listed in extensionsUsed", e)
		}
	}
}

func checkScenes(r *Report, doc *gltf.Document) {
	if doc.Scene != nil && !inRange(int(*doc.Scene), len(doc.Scenes)) {
		r.add(SeverityError, "UNRESOLVED_REFERENCE", "/scene", "scene %d does not exist", int(*doc.Scene))
	}
	if len(doc.Scenes) == 0 {
		r.add(SeverityInfo, "NO_SCENES", "/scenes", "asset defines no scenes")
	}
	for i, s := range doc.Scenes {
		if s == nil {
			continue
		}
		for j, n := range s.Nodes {
			if !inRange(int(n), len(doc.Nodes)) {
				r.add(SeverityError, "UNRESOLVED_REFERENCE", fmt.Sprintf("/scenes/%d/nodes/%d", i, j),
					"node %d does not exist", int(n))
			}
		}
	}
}

func checkNodes(r *Report, doc *gltf.Document) {
	for i, n := range doc.Nodes {
		if n == nil {
			continue
		}
		ptr := fmt.Sprintf("/nodes/%d", i)
		for j, c := range n.Children {
			switch {
			case !inRange(int(c), len(doc.Nodes)):
				r.add(SeverityError, "UNRESOLVED_REFERENCE", fmt.Sprintf("%s/children/%d", ptr, j),
					"node %d does not exist", int(c))
			case int(c) == i:
				r.add(SeverityError, "NODE_LOOP", fmt.Sprintf("%s/children/%d", ptr, j),
					"node is its own child")
			}
		}
		if n.Mesh != nil && !inRange(int(*n.Mesh), len(doc.Meshes)) {
			r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/mesh", "mesh %d does not exist", int(*n.Mesh))
		}
		if n.Camera != nil && !inRange(int(*n.Camera), len(doc.Cameras)) {
			r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/camera", "camera %d does not exist", int(*n.Camera))
		}
		if n.Skin != nil && !inRange(int(*n.Skin), len(doc.Skins)) {
			r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/skin", "skin %d does not exist", int(*n.Skin))
		}
	}
}

func checkMeshes(r *Report, doc *gltf.Document) {
	for i, m := range doc.Meshes {
		if m == nil {
			continue
		}
		if len(m.Primitives) == 0 {
			r.add(SeverityError, "MESH_EMPTY", fmt.Sprintf("/meshes/%d", i), "mesh has no primitives")
		}
		for j, p := range m.Primitives {
			if p == nil {
				continue
			}
			ptr := fmt.Sprintf("/meshes/%d/primitives/%d", i, j)
			if _, ok := p.Attributes["POSITION"]; !ok {
				r.add(SeverityWarning, "MESH_PRIMITIVE_NO_POSITION", ptr+"/attributes", "primitive has no POSITION attribute")
			}
			for name, a := range p.Attributes {
				if !inRange(int(a), len(doc.Accessors)) {
					r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/attributes/"+name,
						"accessor %d does not exist", int(a))
				}
			}
			if p.Indices != nil && !inRange(int(*p.Indices), len(doc.Accessors)) {
				r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/indices", "accessor %d does not exist", int(*p.Indices))
			}
			if p.Material != nil && !inRange(int(*p.Material), len(doc.Materials)) {
				r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/material", "material %d does not exist", int(*p.Material))
			}
		}
	}
}

func checkAccessors(r *Report, doc *gltf.Document) {
	for i, a := range doc.Accessors {
		if a == nil || a.BufferView == nil {
			continue
		}
		ptr := fmt.Sprintf("/accessors/%d", i)
		bv := int(*a.BufferView)
		if !inRange(bv, len(doc.BufferViews)) {
			r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/bufferView", "bufferView %d does not exist", bv)
			continue
		}
		view := doc.BufferViews[bv]
		if view == nil {
			continue
		}
		buf := int(view.Buffer)
		if !inRange(buf, len(doc.Buffers)) {
			r.add(SeverityError, "UNRESOLVED_REFERENCE", fmt.Sprintf("/bufferViews/%d/buffer", bv), "buffer %d does not exist", buf)
			continue
		}
		if b := doc.Buffers[buf]; b != nil && int(view.ByteOffset)+int(view.ByteLength) > int(b.ByteLength) {
			r.add(SeverityError, "BUFFER_VIEW_TOO_LONG", fmt.Sprintf("/bufferViews/%d", bv),
				"bufferView ends at %d but buffer %d is %d bytes", int(view.ByteOffset)+int(view.ByteLength), buf, int(b.ByteLength))
		}
	}
}

func checkTextures(r *Report, doc *gltf.Document) {
	for i, t := range doc.Textures {
		if t == nil {
			continue
		}
		ptr := fmt.Sprintf("/textures/%d", i)
		if t.Source != nil && !inRange(int(*t.Source), len(doc.Images)) {
			r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/source", "image %d does not exist", int(*t.Source))
		}
		if t.Sampler != nil && !inRange(int(*t.Sampler), len(doc.Samplers)) {
			r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/sampler", "sampler %d does not exist", int(*t.Sampler))
		}
	}
}

func checkMaterials(r *Report, doc *gltf.Document) {
	for i, m := range doc.Materials {
		if m == nil || m.PBRMetallicRoughness == nil {
			continue
		}
		ptr := fmt.Sprintf("/materials/%d/pbrMetallicRoughness", i)
		pbr := m.PBRMetallicRoughness
		if pbr.BaseColorTexture != nil && !inRange(int(pbr.BaseColorTexture.Index), len(doc.Textures)) {
			r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/baseColorTexture/index",
				"texture %d does not exist", int(pbr.BaseColorTexture.Index))
		}
		if pbr.MetallicRoughnessTexture != nil && !inRange(int(pbr.MetallicRoughnessTexture.Index), len(doc.Textures)) {
			r.add(SeverityError, "UNRESOLVED_REFERENCE", ptr+"/metallicRoughnessTexture/index",
				"texture %d does not exist", int(pbr.MetallicRoughnessTexture.Index))
		}
	}
}

func checkImages(r *Report, images []viewer.ImageInfo) {
	for _, img := range images {
		if img.Width == 0 || img.Height == 0 {
			r.add(SeverityWarning, "IMAGE_UNRECOGNIZED_FORMAT", img.URI, "image format of %s is not recognized", img.URI)
			continue
		}
		if !powerOfTwo(img.Width) || !powerOfTwo(img.Height) {
			r.add(SeverityInfo, "IMAGE_NPOT_DIMENSIONS", img.URI,
				"image %s is %dx%d, not a power of two", img.URI, img.Width, img.Height)
		}
	}
}

func checkUnused(r *Report, scene *viewer.Scene, siblings fileset.Set) {
	used := make(map[string]bool, len(scene.Referenced))
	for _, k := range scene.Referenced {
		used[k] = true
	}
	for _, k := range siblings.Keys() {
		if !used[k] {
			r.add(SeverityInfo, "UNUSED_FILE", k, "file %s is not referenced by the asset", k)
		}
	}
}

func inRange(i, n int) bool { return i >= 0 && i < n }

func powerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }
