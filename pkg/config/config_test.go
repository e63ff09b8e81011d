package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	_, cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxNumXmits == 0 {
		t.Fatalf("expected default config, got zero MaxNumXmits")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctcpd.yml")
	contents := "recv_window: 2048\nmax_num_xmits: 7\nlisten_addr: \":1234\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RecvWindow != 2048 {
		t.Fatalf("want RecvWindow 2048, got %d", cfg.RecvWindow)
	}
	if cfg.MaxNumXmits != 7 {
		t.Fatalf("want MaxNumXmits 7, got %d", cfg.MaxNumXmits)
	}
	if f.ListenAddr != ":1234" {
		t.Fatalf("want listen_addr override, got %q", f.ListenAddr)
	}
	if cfg.SendWindow == 0 {
		t.Fatalf("unset fields should fall back to defaults, got zero SendWindow")
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.yml")
	big := make([]byte, maxFileSize+1)
	if err := os.WriteFile(path, big, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, _, err := Load(path)
	if err == nil {
		t.Fatalf("want error for oversized config file")
	}
}
