package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

type Config struct {
	BillingCycleDay        int      `json:"billing_cycle_day"`
	RefreshIntervalSeconds int      `json:"refresh_interval_seconds"`
	RefreshTimeoutSeconds  int      `json:"refresh_timeout_seconds"`
	CustomLogDirs          []string `json:"custom_log_dirs"`
	CurrencyRate           float64  `json:"currency_rate"`
	DatabasePath           string   `json:"database_path"`
}

func DefaultConfig() Config {
	return Config{
		BillingCycleDay:        1,
		RefreshIntervalSeconds: 30,
		RefreshTimeoutSeconds:  10,
		CurrencyRate:           1.0,
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "tokenledger")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tokenledger")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.BillingCycleDay < 1 || cfg.BillingCycleDay > 31 {
		cfg.BillingCycleDay = 1
	}
	if cfg.RefreshIntervalSeconds <= 0 {
		cfg.RefreshIntervalSeconds = 30
	}
	if cfg.RefreshTimeoutSeconds <= 0 {
		cfg.RefreshTimeoutSeconds = 10
	}
	if cfg.CurrencyRate <= 0 {
		cfg.CurrencyRate = 1.0
	}

	return cfg, nil
}

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
