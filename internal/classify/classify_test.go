package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/kamkard/gltfview/internal/fileset"
)

type imageErr struct{ src string }

func (e *imageErr) Error() string       { return "image load failed" }
func (e *imageErr) ImageSource() string { return e.src }

func syntaxError() error {
	var v map[string]any
	return json.Unmarshal([]byte("{nope"), &v)
}

func parseError() error {
	_, err := url.Parse("http://[::1")
	return fmt.Errorf("parse address: %w", err)
}

func TestClassifyRules(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		message string
	}{
		{
			name:    "no root",
			err:     fmt.Errorf("resolve: %w", fileset.ErrNoRootAsset),
			kind:    NoRootAssetFound,
			message: "No .gltf or .glb asset found.",
		},
		{
			name:    "transport error",
			err:     &url.Error{Op: "Get", URL: "https://example.com/a.glb", Err: errors.New("connection refused")},
			kind:    NetworkUnavailable,
			message: NetworkMessage,
		},
		{
			name: "malformed address is not a network failure",
			err:  parseError(),
			kind: Unknown,
		},
		{
			name:    "progress event text",
			err:     errors.New("[object ProgressEvent]"),
			kind:    NetworkUnavailable,
			message: NetworkMessage,
		},
		{
			name:    "unexpected token text",
			err:     errors.New("Unexpected token < in JSON at position 0"),
			kind:    MalformedAsset,
			message: `Unable to parse file content. Verify that this file is valid. Error: "Unexpected token < in JSON at position 0"`,
		},
		{
			name: "json syntax error",
			err:  fmt.Errorf("decode: %w", syntaxError()),
			kind: MalformedAsset,
		},
		{
			name:    "missing image",
			err:     fmt.Errorf("load: %w", &imageErr{src: "https://example.com/models/textures/wood.png"}),
			kind:    MissingTexture,
			message: "Missing texture: wood.png",
		},
		{
			name:    "missing image blob-relative",
			err:     &imageErr{src: "textures/bark%20dark.jpg"},
			kind:    MissingTexture,
			message: "Missing texture: bark dark.jpg",
		},
		{
			name:    "tagged viewer failure",
			err:     Tag(ViewerFailure, errors.New("unsupported asset version 1.0")),
			kind:    ViewerFailure,
			message: "Unable to display this model: unsupported asset version 1.0",
		},
		{
			name:    "unknown",
			err:     errors.New("failed to load GLB file from example.com: 404 Not Found"),
			kind:    Unknown,
			message: "failed to load GLB file from example.com: 404 Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", got.Kind, tt.kind)
			}
			if tt.message != "" && got.Message != tt.message {
				t.Errorf("message = %q, want %q", got.Message, tt.message)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error must wrap its cause")
			}
		})
	}
}

func TestClassifyOrder(t *testing.T) {
	// A network error whose text also looks like a parse error is a network error.
	err := &url.Error{Op: "Get", URL: "x", Err: errors.New("invalid character in response")}
	if got := Classify(err).Kind; got != NetworkUnavailable {
		t.Errorf("kind = %s, want %s", got, NetworkUnavailable)
	}

	// A parse error mentioning an image is still a parse error.
	err2 := fmt.Errorf("Unexpected token: %w", &imageErr{src: "a.png"})
	if got := Classify(err2).Kind; got != MalformedAsset {
		t.Errorf("kind = %s, want %s", got, MalformedAsset)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	first := Classify(errors.New("boom"))
	second := Classify(fmt.Errorf("wrapped: %w", first))
	if second != first {
		t.Error("already classified errors are returned unchanged")
	}
}

func TestClassifyDeterministic(t *testing.T) {
	mk := func() error {
		return fmt.Errorf("viewer: %w", &imageErr{src: "https://cdn.example.com/t/a.png"})
	}
	a, b := Classify(mk()), Classify(mk())
	if a.Kind != b.Kind || a.Message != b.Message {
		t.Errorf("non-deterministic: %+v vs %+v", a, b)
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
	if Tag(Unknown, nil) != nil {
		t.Error("Tag(kind, nil) should be nil")
	}
}
