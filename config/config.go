package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the node runtime settings loaded from the TOML file.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	P2PPort       uint   `toml:"P2PPort"`
	DataDir       string `toml:"DataDir"`
	SeedsFile     string `toml:"SeedsFile"`
	PublicAddress string `toml:"PublicAddress"`
	ClientVersion string `toml:"ClientVersion"`
	NetworkName   string `toml:"NetworkName"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create default config %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("write default config %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = "0.0.0.0"
	}
	if cfg.P2PPort == 0 {
		cfg.P2PPort = 8387
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./arkdata"
	}
	if strings.TrimSpace(cfg.SeedsFile) == "" {
		cfg.SeedsFile = "peers.txt"
	}
	if strings.TrimSpace(cfg.ClientVersion) == "" {
		cfg.ClientVersion = "1.0.0"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "ark-local"
	}
}

// Validate rejects configurations the node cannot start with.
func (c *Config) Validate() error {
	if c.P2PPort == 0 || c.P2PPort > 65535 {
		return fmt.Errorf("config: P2PPort %d out of range", c.P2PPort)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if parts := strings.Split(c.ClientVersion, "."); len(parts) < 2 {
		return fmt.Errorf("config: ClientVersion %q is not a dotted version", c.ClientVersion)
	}
	return nil
}
