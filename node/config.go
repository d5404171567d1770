package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the tunables for a commitledger node: where it persists
// state, how it logs, and the anchor/proof-service policy knobs spec.md
// §4.4 and §5 leave to the deployer.
type Config struct {
	DataDir                 string `json:"data_dir"`
	LogLevel                string `json:"log_level"`
	MinConfirmations        uint64 `json:"min_confirmations"`
	ProofRateLimitPerMinute int    `json:"proof_rate_limit_per_minute"`
	DryRunWallet            bool   `json:"dry_run_wallet"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".commitledger"
	}
	return filepath.Join(home, ".commitledger")
}

func DefaultConfig() Config {
	return Config{
		DataDir:                 DefaultDataDir(),
		LogLevel:                "info",
		MinConfirmations:        1,
		ProofRateLimitPerMinute: 60,
		DryRunWallet:            true,
	}
}

// ValidateConfig checks a Config for internal consistency before it is
// used to open a Store.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.ProofRateLimitPerMinute <= 0 {
		return errors.New("proof_rate_limit_per_minute must be > 0")
	}
	if cfg.ProofRateLimitPerMinute > 100000 {
		return errors.New("proof_rate_limit_per_minute must be <= 100000")
	}
	return nil
}
