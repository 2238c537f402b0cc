package objurl

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
)

func init() {
	logging.InitNop()
}

func TestAllocateRemoteIsIdentity(t *testing.T) {
	b := New()
	u, err := b.Allocate(fileset.Root{Key: "a.glb", URL: "https://example.com/a.glb"})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if u != "https://example.com/a.glb" {
		t.Errorf("url = %q", u)
	}
	if b.Live() != 0 {
		t.Errorf("remote allocation created %d resources", b.Live())
	}
	if b.Release(u) {
		t.Error("releasing a remote URL must be a no-op")
	}
}

func TestAllocateReleaseHandle(t *testing.T) {
	b := New()
	h := fileset.NewBytes("model.glb", "model/gltf-binary", []byte("glTF"))

	u1, err := b.Allocate(fileset.Root{Key: "model.glb", Handle: h})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	u2, _ := b.Allocate(fileset.Root{Key: "model.glb", Handle: h})

	if !IsObjectURL(u1) || u1 == u2 {
		t.Fatalf("expected two distinct blob URLs, got %q and %q", u1, u2)
	}
	if b.Live() != 2 {
		t.Fatalf("Live = %d, want 2", b.Live())
	}

	rc, err := b.Open(context.Background(), u1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "glTF" {
		t.Errorf("content = %q", data)
	}

	if !b.Release(u1) {
		t.Error("first release should free the URL")
	}
	if b.Release(u1) {
		t.Error("second release must be a no-op")
	}
	if _, err := b.Open(context.Background(), u1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open after release err = %v", err)
	}
	b.Release(u2)
	if b.Live() != 0 {
		t.Errorf("Live = %d after releasing all", b.Live())
	}
}

func TestAllocateEmptyRoot(t *testing.T) {
	if _, err := New().Allocate(fileset.Root{}); !errors.Is(err, ErrEmptyRoot) {
		t.Errorf("err = %v", err)
	}
}

func TestServeHTTP(t *testing.T) {
	b := New()
	u, _ := b.Allocate(fileset.Root{Handle: fileset.NewBytes("scene.gltf", "", []byte(`{"asset":{}}`))})
	id := strings.TrimPrefix(u, Scheme)

	mux := http.NewServeMux()
	mux.Handle("GET /blob/{id}", b)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blob/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "model/gltf+json" {
		t.Errorf("content type = %q", ct)
	}
	if rec.Body.String() != `{"asset":{}}` {
		t.Errorf("body = %q", rec.Body.String())
	}

	b.Release(u)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blob/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status after release = %d", rec.Code)
	}
}

type brokenHandle struct{}

func (brokenHandle) Name() string { return "scene.glb" }
func (brokenHandle) Size() int64  { return -1 }
func (brokenHandle) Open() (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader("glTF"), iotest.ErrReader(errors.New("disk gone")))), nil
}

func TestServeHTTPLogsCopyFailure(t *testing.T) {
	b := New()
	u, _ := b.Allocate(fileset.Root{Handle: brokenHandle{}})
	id := strings.TrimPrefix(u, Scheme)

	mux := http.NewServeMux()
	mux.Handle("GET /blob/{id}", b)

	core, logs := observer.New(zapcore.WarnLevel)
	req := httptest.NewRequest(http.MethodGet, "/blob/"+id, nil)
	req = req.WithContext(logging.WithLogger(req.Context(), zap.New(core)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Body.String() != "glTF" {
		t.Errorf("body = %q", rec.Body.String())
	}
	entries := logs.FilterMessage("copy object URL").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d copy failures, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["id"]; got != id {
		t.Errorf("logged id = %v, want %s", got, id)
	}
}
