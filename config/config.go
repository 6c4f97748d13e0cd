package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"premarket/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress         string `toml:"RPCAddress"`
	DataDir            string `toml:"DataDir"`
	Env                string `toml:"Env"`
	LogFile            string `toml:"LogFile,omitempty"`
	Owner              string `toml:"Owner,omitempty"`
	Operator           string `toml:"Operator,omitempty"`
	BasePlatformFeeBps uint64 `toml:"BasePlatformFeeBps"`
	TradeTaxCapBps     uint64 `toml:"TradeTaxCapBps"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./premarket-data"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "local"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if addr := strings.TrimSpace(c.Owner); addr != "" {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("config: invalid Owner address %q: %w", addr, err)
		}
	}
	if addr := strings.TrimSpace(c.Operator); addr != "" {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("config: invalid Operator address %q: %w", addr, err)
		}
	}
	return nil
}

// OwnerAddress decodes the configured owner address, reporting whether one
// was set.
func (c *Config) OwnerAddress() ([20]byte, bool, error) {
	return c.decodeAddress(c.Owner)
}

// OperatorAddress decodes the configured operator address, reporting whether
// one was set.
func (c *Config) OperatorAddress() ([20]byte, bool, error) {
	return c.decodeAddress(c.Operator)
}

func (c *Config) decodeAddress(raw string) ([20]byte, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return [20]byte{}, false, nil
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, false, err
	}
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out, true, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:         ":8080",
		DataDir:            "./premarket-data",
		Env:                "local",
		BasePlatformFeeBps: 50,
		TradeTaxCapBps:     500,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
