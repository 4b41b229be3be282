// Package config loads daemon configuration from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/credchain/credchain/keys"
)

// Archive selects where sealed blocks are persisted. Leave both fields empty
// to keep the chain memory-resident only.
type Archive struct {
	// Dir enables a local filesystem CAS rooted at this directory.
	Dir string `yaml:"dir"`
	// GRPCTarget enables a remote CAS daemon instead of a local directory.
	GRPCTarget string `yaml:"grpcTarget"`
}

type Config struct {
	Listen     string  `yaml:"listen"`
	Difficulty int     `yaml:"difficulty"`
	HashAlg    string  `yaml:"hashAlg"`
	KeyAlg     string  `yaml:"keyAlg"`
	Archive    Archive `yaml:"archive"`
}

func Default() Config {
	return Config{
		Listen:     ":8545",
		Difficulty: 4,
		HashAlg:    "sha256",
		KeyAlg:     string(keys.AlgRSA2048),
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.Difficulty < 1 {
		return fmt.Errorf("config: difficulty must be at least 1")
	}
	if _, err := keys.DigestFor(c.HashAlg, nil); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch keys.Algorithm(c.KeyAlg) {
	case keys.AlgRSA2048, keys.AlgEd25519, keys.AlgDilithium3:
	default:
		return fmt.Errorf("config: unsupported key algorithm %q", c.KeyAlg)
	}
	if c.Archive.Dir != "" && c.Archive.GRPCTarget != "" {
		return fmt.Errorf("config: archive dir and grpcTarget are mutually exclusive")
	}
	return nil
}
