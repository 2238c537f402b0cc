package fetch

import (
	"context"
	"io"

	"github.com/kamkard/gltfview/internal/objurl"
)

// Mux dereferences display URLs: object URLs through the broker, everything
// else through the remote source.
type Mux struct {
	Broker *objurl.Broker
	Remote *Remote
}

// Open implements viewer.Opener.
func (m *Mux) Open(ctx context.Context, displayURL string) (io.ReadCloser, error) {
	if objurl.IsObjectURL(displayURL) {
		return m.Broker.Open(ctx, displayURL)
	}
	return m.Remote.Open(ctx, displayURL)
}
