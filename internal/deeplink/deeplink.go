// Package deeplink parses the startup fragment parameters.
package deeplink

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kamkard/gltfview/internal/logging"
)

// Options are the deep-link parameters read once at startup.
type Options struct {
	Kiosk          bool      `json:"kiosk"`
	Model          string    `json:"model,omitempty"`
	Preset         string    `json:"preset,omitempty"`
	CameraPosition []float64 `json:"cameraPosition,omitempty"`
}

// Chrome reports whether the header chrome is shown.
func (o Options) Chrome() bool { return !o.Kiosk }

// Parse reads a location fragment such as
// "#model=https://example.com/a.glb&kiosk=1". A leading '#' or '?' is
// ignored. kiosk is set by any non-empty value. cameraPosition must be three
// comma-separated numbers; anything else is dropped with a warning.
func Parse(fragment string) Options {
	fragment = strings.TrimLeft(fragment, "#?")
	values, err := url.ParseQuery(fragment)
	if err != nil {
		logging.Warn("malformed deep link, using the parsable part",
			zap.String("fragment", fragment), zap.Error(err))
	}

	opts := Options{
		Kiosk:  values.Get("kiosk") != "",
		Model:  values.Get("model"),
		Preset: values.Get("preset"),
	}
	if raw := values.Get("cameraPosition"); raw != "" {
		pos, ok := parseTriple(raw)
		if !ok {
			logging.Warn("ignoring invalid cameraPosition", zap.String("value", raw))
		} else {
			opts.CameraPosition = pos
		}
	}
	return opts
}

func parseTriple(raw string) ([]float64, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return nil, false
	}
	out := make([]float64, 0, 3)
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}
