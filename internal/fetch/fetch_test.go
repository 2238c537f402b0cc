package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kamkard/gltfview/internal/classify"
	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/objurl"
)

func init() {
	logging.InitNop()
}

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("glTF-binary"))
	}))
	defer srv.Close()

	r := NewRemote(5*time.Second, 0, nil)
	b, err := r.Fetch(context.Background(), srv.URL+"/data/glb_output.glb")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if b.Name() != "glb_output.glb" {
		t.Errorf("name = %q", b.Name())
	}
	if string(b.Data) != "glTF-binary" {
		t.Errorf("data = %q", b.Data)
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r := NewRemote(5*time.Second, 0, nil)
	_, err := r.Fetch(context.Background(), srv.URL+"/missing.glb")

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if se.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", se.StatusCode)
	}
	host := strings.TrimPrefix(srv.URL, "http://")
	if want := "failed to load GLB file from " + host + ": 404 Not Found"; se.Error() != want {
		t.Errorf("message = %q, want %q", se.Error(), want)
	}
}

func TestFetchTransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	r := NewRemote(time.Second, 0, nil)
	_, err := r.Fetch(context.Background(), addr+"/model.glb")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := classify.Classify(err).Kind; kind != classify.NetworkUnavailable {
		t.Errorf("kind = %s, want %s", kind, classify.NetworkUnavailable)
	}
}

func TestFetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	r := NewRemote(5*time.Second, 16, nil)
	if _, err := r.Fetch(context.Background(), srv.URL+"/big.glb"); err == nil {
		t.Fatal("expected size error")
	}
}

func TestUnsupportedScheme(t *testing.T) {
	r := NewRemote(time.Second, 0, nil)
	for _, u := range []string{"ftp://example.com/a.glb", "s3://bucket/a.glb"} {
		if _, err := r.Open(context.Background(), u); !errors.Is(err, ErrUnsupportedScheme) {
			t.Errorf("Open(%s) err = %v", u, err)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/a/duck.gltf", "duck.gltf"},
		{"https://example.com/a/model.GLB?raw=1", "model.GLB"},
		{"https://example.com/download?id=3", DefaultFileName},
		{"https://example.com/", DefaultFileName},
	}
	for _, tt := range tests {
		if got := FileName(tt.url); got != tt.want {
			t.Errorf("FileName(%s) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		raw     string
		bucket  string
		key     string
		wantErr bool
	}{
		{"s3://assets/models/duck.glb", "assets", "models/duck.glb", false},
		{"s3://assets/", "", "", true},
		{"s3:///duck.glb", "", "", true},
		{"https://assets/duck.glb", "", "", true},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.raw)
		bucket, key, err := ParseS3URL(u)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseS3URL(%s) err = %v", tt.raw, err)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseS3URL(%s) = %q, %q", tt.raw, bucket, key)
		}
	}
}

func TestMuxDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote"))
	}))
	defer srv.Close()

	broker := objurl.New()
	blobURL, err := broker.Allocate(fileset.Root{Key: "a.glb", Handle: fileset.NewBytes("a.glb", "", []byte("local"))})
	if err != nil {
		t.Fatal(err)
	}
	defer broker.Release(blobURL)

	m := &Mux{Broker: broker, Remote: NewRemote(5*time.Second, 0, nil)}
	for u, want := range map[string]string{blobURL: "local", srv.URL + "/a.glb": "remote"} {
		rc, err := m.Open(context.Background(), u)
		if err != nil {
			t.Fatalf("Open(%s): %v", u, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != want {
			t.Errorf("Open(%s) = %q, want %q", u, data, want)
		}
	}
}
