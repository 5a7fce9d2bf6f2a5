package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatal("missing file should yield the defaults")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults not written: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.Device.PreferredName = "G29"
	cfg.Wheel.Degrees = 1080
	cfg.Wheel.Lock.Settle = 3 * time.Second
	cfg.Wheel.Profile.BrakeThreshold = 12
	cfg.Telemetry.MQTTEnabled = true
	cfg.Sim.Enabled = true
	cfg.Sim.Wheel.Noise = 5
	cfg.Sim.Wheel.Capabilities = []string{"constant", "damper"}

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := "[wheel]\ndegrees = 540\n\n[wheel.seek]\ntimeout = \"2s\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Wheel.Degrees != 540 || cfg.Wheel.Seek.Timeout != 2*time.Second {
		t.Fatalf("wheel = %+v", cfg.Wheel)
	}
	if cfg.Wheel.Seek.DefaultLevel != DefaultConfig().Wheel.Seek.DefaultLevel {
		t.Fatal("unset field lost its default")
	}
	if cfg.API.Port != 8080 {
		t.Fatalf("port = %d", cfg.API.Port)
	}
}

func TestLoadConfigRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[wheel\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("broken TOML accepted")
	}
}
