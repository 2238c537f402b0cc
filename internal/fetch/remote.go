// Package fetch retrieves remote assets over http(s) and from S3.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/fileset"
	"github.com/kamkard/gltfview/internal/logging"
	"github.com/kamkard/gltfview/internal/metrics"
)

// DefaultFileName names fetched assets whose address carries no file name.
const DefaultFileName = "model.glb"

// ErrUnsupportedScheme is returned for addresses that are neither http(s)
// nor s3.
var ErrUnsupportedScheme = errors.New("unsupported address scheme")

// StatusError is returned when a remote source answers with a non-2xx status.
type StatusError struct {
	URL        string
	Host       string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to load GLB file from %s: %s", e.Host, e.Status)
}

// Remote opens http(s) and s3 addresses.
type Remote struct {
	client  *http.Client
	s3      *S3Source
	maxSize int64
}

// NewRemote creates a remote source. s3 may be nil, in which case s3://
// addresses are rejected.
func NewRemote(timeout time.Duration, maxSize int64, s3 *S3Source) *Remote {
	return &Remote{
		client:  &http.Client{Timeout: timeout},
		s3:      s3,
		maxSize: maxSize,
	}
}

// Open returns a reader over the content at rawURL. The caller must close it.
func (r *Remote) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}

	start := time.Now()
	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		body, err = r.openHTTP(ctx, u)
	case "s3":
		if r.s3 == nil {
			return nil, fmt.Errorf("%w: s3 is not configured", ErrUnsupportedScheme)
		}
		body, err = r.s3.Open(ctx, u)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		metrics.RecordRemoteFetch(u.Scheme, 0, time.Since(start), false)
		return nil, err
	}
	return &countingBody{ReadCloser: body, scheme: u.Scheme, start: start}, nil
}

func (r *Remote) openHTTP(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{
			URL:        u.String(),
			Host:       u.Host,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}
	return resp.Body, nil
}

// Fetch reads the whole asset at rawURL into an in-memory handle named after
// the address's last path segment.
func (r *Remote) Fetch(ctx context.Context, rawURL string) (*fileset.Bytes, error) {
	rc, err := r.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var data []byte
	if r.maxSize > 0 {
		data, err = io.ReadAll(io.LimitReader(rc, r.maxSize+1))
		if err == nil && int64(len(data)) > r.maxSize {
			err = fmt.Errorf("asset at %s exceeds %d bytes", rawURL, r.maxSize)
		}
	} else {
		data, err = io.ReadAll(rc)
	}
	if err != nil {
		return nil, err
	}

	name := FileName(rawURL)
	logging.Info("fetched remote asset",
		zap.String("url", rawURL),
		zap.String("name", name),
		zap.Int("bytes", len(data)))
	return fileset.NewBytes(name, "", data), nil
}

// FileName derives a file name for a fetched asset. Addresses that do not end
// in a manifest name fall back to DefaultFileName.
func FileName(rawURL string) string {
	name := (&fileset.Remote{URL: rawURL}).Name()
	if !fileset.IsManifest(name) {
		return DefaultFileName
	}
	return name
}

// countingBody records fetch metrics once the body is closed.
type countingBody struct {
	io.ReadCloser
	scheme string
	start  time.Time
	n      int64
	err    error
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	if err != nil && err != io.EOF {
		b.err = err
	}
	return n, err
}

func (b *countingBody) Close() error {
	err := b.ReadCloser.Close()
	metrics.RecordRemoteFetch(b.scheme, b.n, time.Since(b.start), b.err == nil)
	return err
}
