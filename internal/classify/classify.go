// Package classify maps raw load failures to a stable error taxonomy with
// user-facing messages. It is the only place that text is assembled.
package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/kamkard/gltfview/internal/fileset"
)

// Kind is the category of a load failure.
type Kind string

const (
	NoRootAssetFound   Kind = "no_root_asset"
	NetworkUnavailable Kind = "network_unavailable"
	MalformedAsset     Kind = "malformed_asset"
	MissingTexture     Kind = "missing_texture"
	ViewerFailure      Kind = "viewer_failure"
	Unknown            Kind = "unknown"
)

// NetworkMessage is shown for every NetworkUnavailable error.
const NetworkMessage = "Unable to retrieve this file. Check the server log and network connectivity."

var (
	progressEventPattern = regexp.MustCompile(`ProgressEvent`)
	syntaxPattern        = regexp.MustCompile(`Unexpected token|invalid character|unexpected end of JSON input|invalid glb`)
)

// Error is a classified load failure.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Cause }

// ImageSourcer is implemented by errors that reference an image resource.
type ImageSourcer interface {
	ImageSource() string
}

// taggedError carries a kind assigned where the error originated.
type taggedError struct {
	kind Kind
	err  error
}

func (t *taggedError) Error() string { return t.err.Error() }
func (t *taggedError) Unwrap() error { return t.err }

// Tag marks err with kind so Classify does not have to guess.
func Tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, err: err}
}

// Classify maps err to a classified error. Rules are evaluated in order and
// the first match wins; the result depends only on err.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, fileset.ErrNoRootAsset) {
		return build(NoRootAssetFound, err)
	}

	var tagged *taggedError
	if errors.As(err, &tagged) {
		return build(tagged.kind, err)
	}

	if isNetwork(err) {
		return build(NetworkUnavailable, err)
	}
	if isSyntax(err) {
		return build(MalformedAsset, err)
	}

	var img ImageSourcer
	if errors.As(err, &img) && img.ImageSource() != "" {
		return build(MissingTexture, err)
	}

	return build(Unknown, err)
}

func build(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: Message(kind, err), Cause: err}
}

// Message returns the user-facing text for err under kind.
func Message(kind Kind, err error) string {
	switch kind {
	case NoRootAssetFound:
		return "No .gltf or .glb asset found."
	case NetworkUnavailable:
		return NetworkMessage
	case MalformedAsset:
		return fmt.Sprintf(`Unable to parse file content. Verify that this file is valid. Error: "%s"`, err.Error())
	case MissingTexture:
		var img ImageSourcer
		if errors.As(err, &img) {
			return "Missing texture: " + basename(img.ImageSource())
		}
		return "Missing texture: " + err.Error()
	case ViewerFailure:
		return "Unable to display this model: " + err.Error()
	default:
		return err.Error()
	}
}

func isNetwork(err error) bool {
	// A *url.Error also comes from url.Parse, which never touched the network.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Op != "parse"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return progressEventPattern.MatchString(err.Error())
}

func isSyntax(err error) bool {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true
	}
	return syntaxPattern.MatchString(err.Error())
}

// basename extracts the last path segment of a resource address.
func basename(src string) string {
	if u, err := url.Parse(src); err == nil && u.Path != "" {
		src = u.Path
	}
	src = strings.TrimRight(src, "/")
	if src == "" {
		return ""
	}
	return path.Base(src)
}
