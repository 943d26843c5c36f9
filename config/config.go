package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Rates carries the bootstrap reward rate (whole percent) per tier.
type Rates struct {
	OneDay   uint64 `toml:"OneDay"`
	OneWeek  uint64 `toml:"OneWeek"`
	OneMonth uint64 `toml:"OneMonth"`
	SixMonth uint64 `toml:"SixMonth"`
	OneYear  uint64 `toml:"OneYear"`
}

// Fees carries the bootstrap fee configuration. Amounts are decimal strings
// in native base units.
type Fees struct {
	CurrentFee string `toml:"CurrentFee"`
}

type Config struct {
	ListenAddress     string `toml:"ListenAddress"`
	DataDir           string `toml:"DataDir"`
	Environment       string `toml:"Environment"`
	TokenSymbol       string `toml:"TokenSymbol"`
	BootstrapAdmin    string `toml:"BootstrapAdmin"`
	BootstrapOperator string `toml:"BootstrapOperator"`
	LogFile           string `toml:"LogFile"`
	Fees              Fees   `toml:"fees"`
	Rates             Rates  `toml:"rates"`
}

const defaultListenAddress = ":8645"

// Load loads the configuration from the given path, creating a default file
// when none exists.
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

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.TokenSymbol) == "" {
		cfg.TokenSymbol = "YEN"
	}
	if strings.TrimSpace(cfg.Fees.CurrentFee) == "" {
		cfg.Fees.CurrentFee = "0"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: defaultListenAddress,
		DataDir:       "./data",
		TokenSymbol:   "YEN",
		Fees:          Fees{CurrentFee: "0"},
		Rates:         Rates{OneDay: 1, OneWeek: 2, OneMonth: 5, SixMonth: 12, OneYear: 25},
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BootstrapAdmin) != "" {
		if _, err := ParseAddress(c.BootstrapAdmin); err != nil {
			return fmt.Errorf("config: invalid BootstrapAdmin: %w", err)
		}
	}
	if strings.TrimSpace(c.BootstrapOperator) != "" {
		if _, err := ParseAddress(c.BootstrapOperator); err != nil {
			return fmt.Errorf("config: invalid BootstrapOperator: %w", err)
		}
	}
	return nil
}

// ParseAddress decodes a 20-byte hex account address, with or without an 0x
// prefix.
func ParseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return addr, err
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}
