package validator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/qmuntal/gltf"

	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/viewer"
)

func init() {
	logging.InitNop()
}

func sceneFrom(t *testing.T, id, doc string) *viewer.Scene {
	t.Helper()
	d := new(gltf.Document)
	if err := json.Unmarshal([]byte(doc), d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &viewer.Scene{
		ID:       id,
		Name:     id,
		Stats:    viewer.Stats{Version: d.Asset.Version, Generator: d.Asset.Generator},
		Document: d,
	}
}

func codes(r *Report) map[string]int {
	out := make(map[string]int)
	for _, i := range r.Issues {
		out[i.Code]++
	}
	return out
}

func TestCheckValidDocument(t *testing.T) {
	scene := sceneFrom(t, "ok", `{
		"asset": {"version": "2.0", "generator": "test"},
		"scene": 0,
		"scenes": [{"nodes": [0]}],
		"nodes": [{"mesh": 0}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 1, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteLength": 12}],
		"buffers": [{"byteLength": 12}]
	}`)
	r := Check(scene, nil)
	if !r.Valid() || len(r.Issues) != 0 {
		t.Errorf("issues = %+v", r.Issues)
	}
}

func TestCheckBrokenReferences(t *testing.T) {
	scene := sceneFrom(t, "broken", `{
		"asset": {"version": "2.0"},
		"scene": 2,
		"scenes": [{"nodes": [0, 7]}],
		"nodes": [{"mesh": 4, "children": [0]}],
		"meshes": [{"primitives": [{"attributes": {"NORMAL": 9}, "material": 1}]}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 1, "type": "VEC3"}],
		"bufferViews": [{"buffer": 0, "byteOffset": 8, "byteLength": 12}],
		"buffers": [{"byteLength": 12}],
		"textures": [{"source": 3}]
	}`)
	r := Check(scene, nil)
	c := codes(r)

	if c["UNRESOLVED_REFERENCE"] != 6 {
		t.Errorf("unresolved = %d, issues = %+v", c["UNRESOLVED_REFERENCE"], r.Issues)
	}
	for _, code := range []string{"NODE_LOOP", "BUFFER_VIEW_TOO_LONG", "MESH_PRIMITIVE_NO_POSITION", "GENERATOR_MISSING"} {
		if c[code] != 1 {
			t.Errorf("%s count = %d", code, c[code])
		}
	}
	if r.Valid() {
		t.Error("broken document reported valid")
	}
}

func TestCheckImagesAndUnusedFiles(t *testing.T) {
	scene := sceneFrom(t, "img", `{"asset": {"version": "2.0", "generator": "x"}, "scenes": [{}]}`)
	scene.Images = []viewer.ImageInfo{
		{URI: "a.png", Format: "png", Width: 256, Height: 256},
		{URI: "b.png", Format: "png", Width: 300, Height: 256},
		{URI: "c.ktx"},
	}
	scene.Referenced = []string{"scene.bin"}
	siblings := fileset.Set{
		"scene.bin":  fileset.NewBytes("scene.bin", "", nil),
		"readme.txt": fileset.NewBytes("readme.txt", "", nil),
	}

	r := Check(scene, siblings)
	c := codes(r)
	if c["IMAGE_NPOT_DIMENSIONS"] != 1 || c["IMAGE_UNRECOGNIZED_FORMAT"] != 1 || c["UNUSED_FILE"] != 1 {
		t.Errorf("issues = %+v", r.Issues)
	}
	if !r.Valid() {
		t.Error("warnings and infos must not invalidate")
	}
}

func TestSeverityJSON(t *testing.T) {
	data, err := json.Marshal(Issue{Code: "X", Severity: SeverityWarning})
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	json.Unmarshal(data, &back)
	if back["severity"] != "warning" {
		t.Errorf("severity = %v", back["severity"])
	}
}

func TestPoolDeliversReports(t *testing.T) {
	var mu sync.Mutex
	var got []*Report
	done := make(chan struct{}, 2)
	p := NewPool(1, func(_ context.Context, r *Report) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
		done <- struct{}{}
	})
	p.Start(context.Background())

	doc := `{"asset": {"version": "2.0", "generator": "x"}, "scenes": [{}]}`
	p.Validate(context.Background(), "blob:1", "", nil, sceneFrom(t, "first", doc))
	p.Validate(context.Background(), "blob:2", "", nil, sceneFrom(t, "second", doc))
	p.Validate(context.Background(), "blob:3", "", nil, nil)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for report")
		}
	}
	p.Stop()

	if len(got) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(got))
	}
	if latest := p.Latest(); latest == nil || latest.SceneID != "second" {
		t.Errorf("latest = %+v", latest)
	}
}

func TestSyncValidator(t *testing.T) {
	var s Sync
	if s.Latest() != nil {
		t.Fatal("report before validation")
	}
	s.Validate(context.Background(), "blob:1", "", nil, sceneFrom(t, "one", `{"asset": {"version": "2.0"}}`))
	if r := s.Latest(); r == nil || r.SceneID != "one" {
		t.Errorf("report = %+v", r)
	}
}
