package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Defaults()
	if len(c.VendorIDs) != 2 {
		t.Fatalf("Defaults().VendorIDs = %v, want 2 entries", c.VendorIDs)
	}
	if c.ProductID != 0xBBDB {
		t.Errorf("Defaults().ProductID = %04X, want BBDB", c.ProductID)
	}
	if c.Timeout != 10*time.Second {
		t.Errorf("Defaults().Timeout = %v, want 10s", c.Timeout)
	}
	if c.HTTPAddr != ":8080" {
		t.Errorf("Defaults().HTTPAddr = %q, want :8080", c.HTTPAddr)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("Load with a missing file: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("Load() with no file = %+v, want defaults", cfg)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bbrdbtool.yml")
	if err := os.WriteFile(path, []byte("httpaddr: :9090\nverbose: true\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("Load().HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if !cfg.Verbose {
		t.Error("Load().Verbose = false, want true")
	}
	if cfg.ProductID != 0xBBDB {
		t.Errorf("Load().ProductID = %04X, want BBDB (unset fields keep their default)", cfg.ProductID)
	}
}
