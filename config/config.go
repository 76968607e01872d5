package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"escrowflow/verify"
)

// Config carries everything the service reads at startup. Values load from a
// TOML file first; environment variables override so deployments can inject
// secrets without editing the file.
type Config struct {
	DatabaseURL     string `toml:"DatabaseURL"`
	RedisURL        string `toml:"RedisURL"`
	JWTSecret       string `toml:"JWTSecret"`
	EscrowScriptDir string `toml:"EscrowScriptDir"`
	ServicerAddress string `toml:"ServicerAddress"`

	TradingFeeSats     int64 `toml:"TradingFeeSats"`
	ArbitrationFeeSats int64 `toml:"ArbitrationFeeSats"`
	ServiceFeeSats     int64 `toml:"ServiceFeeSats"`

	QueueLimit int64 `toml:"QueueLimit"`
}

// Load reads the TOML file at path when it exists, then applies environment
// overrides and defaults. A missing file is not an error; a config can come
// entirely from the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.RedisURL, "REDIS_URL")
	overrideString(&cfg.JWTSecret, "JWT_SECRET")
	overrideString(&cfg.EscrowScriptDir, "ESCROW_SCRIPT_DIR")
	overrideString(&cfg.ServicerAddress, "SERVICER_ADDRESS")
	if err := overrideInt(&cfg.TradingFeeSats, "TRADING_FEE_SATS"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.ArbitrationFeeSats, "ARBITRATION_FEE_SATS"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.ServiceFeeSats, "SERVICE_FEE_SATS"); err != nil {
		return nil, err
	}
	if err := overrideInt(&cfg.QueueLimit, "QUEUE_LIMIT"); err != nil {
		return nil, err
	}

	if cfg.TradingFeeSats == 0 {
		cfg.TradingFeeSats = 2000
	}
	if cfg.ArbitrationFeeSats == 0 {
		cfg.ArbitrationFeeSats = 1000
	}
	if cfg.ServiceFeeSats == 0 {
		cfg.ServiceFeeSats = 1000
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = 4
	}
	if cfg.EscrowScriptDir == "" {
		cfg.EscrowScriptDir = "scripts"
	}

	return cfg, nil
}

// Fees returns the current fee schedule. Callers read it per verification so
// a config reload applies to in-flight orders.
func (c *Config) Fees() verify.Fees {
	return verify.Fees{
		TradingFeeSats:     c.TradingFeeSats,
		ArbitrationFeeSats: c.ArbitrationFeeSats,
		ServiceFeeSats:     c.ServiceFeeSats,
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}
