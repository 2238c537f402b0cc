package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.DefaultModelURL != DefaultModelURL {
		t.Errorf("DefaultModelURL = %q", cfg.DefaultModelURL)
	}
	if cfg.LoadTimeout != 0 {
		t.Errorf("LoadTimeout = %v, want 0", cfg.LoadTimeout)
	}
	if cfg.ValidatorWorkers != 2 {
		t.Errorf("ValidatorWorkers = %d", cfg.ValidatorWorkers)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DEFAULT_MODEL_URL", "https://example.com/a.glb")
	t.Setenv("LOAD_TIMEOUT", "5s")
	t.Setenv("MAX_ASSET_SIZE", "1024")
	t.Setenv("DROP_DIR", "/tmp/drop")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModelURL != "https://example.com/a.glb" {
		t.Errorf("DefaultModelURL = %q", cfg.DefaultModelURL)
	}
	if cfg.LoadTimeout != 5*time.Second {
		t.Errorf("LoadTimeout = %v", cfg.LoadTimeout)
	}
	if cfg.MaxAssetSize != 1024 {
		t.Errorf("MaxAssetSize = %d", cfg.MaxAssetSize)
	}
	if cfg.DropDir != "/tmp/drop" {
		t.Errorf("DropDir = %q", cfg.DropDir)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "soon")
	t.Setenv("VALIDATOR_WORKERS", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FetchTimeout != 60*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	if cfg.ValidatorWorkers != 2 {
		t.Errorf("ValidatorWorkers = %d", cfg.ValidatorWorkers)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero asset size", "MAX_ASSET_SIZE", "0"},
		{"negative upload size", "MAX_UPLOAD_SIZE", "-1"},
		{"zero workers", "VALIDATOR_WORKERS", "0"},
		{"half s3 credentials", "S3_ACCESS_KEY", "key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}
