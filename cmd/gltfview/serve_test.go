package main

import (
	"testing"

	"github.com/kamkard/gltfview/internal/config"
	"github.com/kamkard/gltfview/internal/controller"
	"github.com/kamkard/gltfview/internal/deeplink"
)

func TestInitialSource(t *testing.T) {
	tests := []struct {
		name       string
		link       string
		defaultURL string
		wantOK     bool
		wantSource string
	}{
		{
			name:       "deep link model wins over default",
			link:       "#model=https://example.com/linked.glb",
			defaultURL: "https://example.com/default.glb",
			wantOK:     true,
			wantSource: controller.FromAddress("https://example.com/linked.glb").String(),
		},
		{
			name:       "deep link model without default",
			link:       "#model=https://example.com/linked.glb&kiosk=1",
			wantOK:     true,
			wantSource: controller.FromAddress("https://example.com/linked.glb").String(),
		},
		{
			name:       "default is fetched",
			defaultURL: "https://example.com/default.glb",
			wantOK:     true,
			wantSource: controller.FromFetch("https://example.com/default.glb").String(),
		},
		{
			name:       "link without model falls back to default",
			link:       "#kiosk=1",
			defaultURL: "https://example.com/default.glb",
			wantOK:     true,
			wantSource: controller.FromFetch("https://example.com/default.glb").String(),
		},
		{
			name: "empty default disables startup load",
			link: "#kiosk=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.DefaultModelURL = tt.defaultURL

			src, ok := initialSource(deeplink.Parse(tt.link), cfg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && src.String() != tt.wantSource {
				t.Errorf("source = %s, want %s", src, tt.wantSource)
			}
		})
	}
}

func TestInitialSourceKinds(t *testing.T) {
	cfg := &config.Config{DefaultModelURL: "https://example.com/default.glb"}

	src, _ := initialSource(deeplink.Options{Model: "https://example.com/a.glb"}, cfg)
	if src.Kind() != controller.SourceAddress {
		t.Errorf("deep link kind = %s, want %s", src.Kind(), controller.SourceAddress)
	}
	src, _ = initialSource(deeplink.Options{}, cfg)
	if src.Kind() != controller.SourceFetch {
		t.Errorf("default kind = %s, want %s", src.Kind(), controller.SourceFetch)
	}
}
