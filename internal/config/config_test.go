package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.SampleRate)
	}
	if cfg.FlushInterval != 15*time.Second {
		t.Errorf("FlushInterval = %v, want 15s", cfg.FlushInterval)
	}
	if cfg.StopCooldown != 3*time.Second {
		t.Errorf("StopCooldown = %v, want 3s", cfg.StopCooldown)
	}
	if cfg.SpeakerMatchFloor != 0.05 {
		t.Errorf("SpeakerMatchFloor = %v, want 0.05", cfg.SpeakerMatchFloor)
	}
	if cfg.BatchWindowSeconds != 30 {
		t.Errorf("BatchWindowSeconds = %d, want 30", cfg.BatchWindowSeconds)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want :8000", cfg.HTTPAddr)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "http_addr: \":9999\"\nsample_rate: 8000\nspeaker_match_floor: 0.4\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want :9999", cfg.HTTPAddr)
	}
	if cfg.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", cfg.SampleRate)
	}
	if cfg.SpeakerMatchFloor != 0.4 {
		t.Errorf("SpeakerMatchFloor = %v, want 0.4", cfg.SpeakerMatchFloor)
	}
	// Untouched keys keep defaults
	if cfg.FlushInterval != 15*time.Second {
		t.Errorf("FlushInterval = %v, want default", cfg.FlushInterval)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http_addr: \":9999\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HTTP_ADDR", ":7777")
	t.Setenv("FLUSH_INTERVAL", "5s")
	t.Setenv("SPEAKER_MATCH_FLOOR", "0.25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":7777" {
		t.Errorf("env should win over file: %q", cfg.HTTPAddr)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.FlushInterval)
	}
	if cfg.SpeakerMatchFloor != 0.25 {
		t.Errorf("SpeakerMatchFloor = %v, want 0.25", cfg.SpeakerMatchFloor)
	}
}

func TestEnvInvalidValueIgnored(t *testing.T) {
	t.Setenv("SAMPLE_RATE", "not-a-number")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("invalid env should fall back to default, got %d", cfg.SampleRate)
	}
}
