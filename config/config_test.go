package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Difficulty != 4 || cfg.HashAlg != "sha256" || cfg.KeyAlg != "rsa2048" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credchain.yaml")
	data := `
listen: "127.0.0.1:9999"
difficulty: 2
hashAlg: sha3-256
keyAlg: ed25519
archive:
  dir: /tmp/credchain-archive
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9999" || cfg.Difficulty != 2 || cfg.HashAlg != "sha3-256" || cfg.KeyAlg != "ed25519" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Archive.Dir != "/tmp/credchain-archive" {
		t.Errorf("archive dir = %q", cfg.Archive.Dir)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Error("empty path should return defaults")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Listen = "" },
		func(c *Config) { c.Difficulty = 0 },
		func(c *Config) { c.HashAlg = "md5" },
		func(c *Config) { c.KeyAlg = "dsa" },
		func(c *Config) { c.Archive.Dir = "/a"; c.Archive.GRPCTarget = "localhost:7777" },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
