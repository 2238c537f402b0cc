// Package protocol defines the API request/response types.
package protocol

import (
	"github.com/kamkard/gltfview/internal/deeplink"
	"github.com/kamkard/gltfview/internal/history"
	"github.com/kamkard/gltfview/internal/session"
)

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// OptionsResponse is returned by GET /api/v1/options.
type OptionsResponse struct {
	deeplink.Options
	Chrome bool `json:"chrome"`
}

// LoadURLRequest is the body of POST /api/v1/load/url.
type LoadURLRequest struct {
	URL string `json:"url"`
}

// LoadResponse is returned by the load endpoints.
type LoadResponse struct {
	Seq       uint64           `json:"seq"`
	State     session.State    `json:"state"`
	Root      string           `json:"root,omitempty"`
	SceneID   string           `json:"scene_id,omitempty"`
	Error     *ErrorResponse   `json:"error,omitempty"`
	Session   session.Snapshot `json:"session"`
	Validated bool             `json:"validated"`
}

// HistoryResponse is returned by GET /api/v1/history.
type HistoryResponse struct {
	Attempts []history.Attempt `json:"attempts"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	LiveURLs int    `json:"live_urls"`
}
