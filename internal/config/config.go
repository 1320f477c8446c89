// Package config loads lockupd configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"lockup-ledger/internal/address"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/orchestrator"
	"lockup-ledger/internal/reward"
)

// Amount is a token amount in base units, written in YAML as an integer or
// a string of digits (underscores allowed).
type Amount struct {
	sdkmath.Int
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", value.Line)
	}
	v, err := ParseAmount(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	a.Int = v
	return nil
}

// ParseAmount parses a non-negative base-unit amount.
func ParseAmount(s string) (sdkmath.Int, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	v, ok := sdkmath.NewIntFromString(clean)
	if !ok || v.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// Config holds all application configuration.
type Config struct {
	Ledger struct {
		Owner       string `yaml:"owner"`
		Fund        string `yaml:"fund"`
		CustodySeed string `yaml:"custody_seed"`
		MinterSeed  string `yaml:"minter_seed"`
	} `yaml:"ledger"`
	Clock struct {
		Genesis       time.Time     `yaml:"genesis"`
		BlockInterval time.Duration `yaml:"block_interval"`
	} `yaml:"clock"`
	Reward struct {
		Token           string `yaml:"token"`
		StartBlock      uint64 `yaml:"start_block"`
		RewardBlocks    uint64 `yaml:"reward_blocks"`
		BonusBlocks     uint64 `yaml:"bonus_blocks"`
		RatePerBlock    Amount `yaml:"rate_per_block"`
		BonusMultiplier uint64 `yaml:"bonus_multiplier"`
	} `yaml:"reward"`
	Pools  []PoolConfig  `yaml:"pools"`
	Assets []AssetConfig `yaml:"assets"`
	Storage struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"storage"`
	HTTP struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`
	Schedule struct {
		CheckpointCron  string `yaml:"checkpoint_cron"`
		PoolMetricsCron string `yaml:"pool_metrics_cron"`
	} `yaml:"schedule"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// PoolConfig is a pool bootstrapped at startup.
type PoolConfig struct {
	Token          string `yaml:"token"`
	MaxLockUpLimit Amount `yaml:"max_lockup_limit"`
	Multiplier     uint64 `yaml:"multiplier"`
}

// AssetConfig seeds an asset in the in-memory token ledger.
type AssetConfig struct {
	ID       string `yaml:"id"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Holder   string `yaml:"holder"`
	Supply   Amount `yaml:"supply"`
}

// Load reads config from a YAML file, then loads envFile into the
// environment, then applies environment variable overrides and defaults.
// Missing files are not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if envFile != "" {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LOCKUP_OWNER":        &c.Ledger.Owner,
		"LOCKUP_FUND":         &c.Ledger.Fund,
		"LOCKUP_CUSTODY_SEED": &c.Ledger.CustodySeed,
		"LOCKUP_MINTER_SEED":  &c.Ledger.MinterSeed,
		"REWARD_TOKEN":        &c.Reward.Token,
		"POSTGRES_DSN":        &c.Storage.PostgresDSN,
		"CLICKHOUSE_DSN":      &c.Storage.ClickhouseDSN,
		"HTTP_ADDR":           &c.HTTP.Addr,
		"CHECKPOINT_CRON":     &c.Schedule.CheckpointCron,
		"POOL_METRICS_CRON":   &c.Schedule.PoolMetricsCron,
		"LOG_LEVEL":           &c.Log.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("REWARD_START_BLOCK"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("REWARD_START_BLOCK: %w", err)
		}
		c.Reward.StartBlock = n
	}
	if v := os.Getenv("REWARD_RATE_PER_BLOCK"); v != "" {
		rate, err := ParseAmount(v)
		if err != nil {
			return fmt.Errorf("REWARD_RATE_PER_BLOCK: %w", err)
		}
		c.Reward.RatePerBlock = Amount{rate}
	}
	if v := os.Getenv("BLOCK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BLOCK_INTERVAL: %w", err)
		}
		c.Clock.BlockInterval = d
	}
	if v := os.Getenv("LOG_DEVELOPMENT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_DEVELOPMENT: %w", err)
		}
		c.Log.Development = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Ledger.CustodySeed == "" {
		c.Ledger.CustodySeed = "lockup-custody"
	}
	if c.Ledger.MinterSeed == "" {
		c.Ledger.MinterSeed = "lockup-minter"
	}
	if c.Clock.BlockInterval == 0 {
		c.Clock.BlockInterval = 12 * time.Second
	}
	if c.Reward.RewardBlocks == 0 {
		c.Reward.RewardBlocks = reward.DefaultRewardBlocks
	}
	if c.Reward.BonusBlocks == 0 {
		c.Reward.BonusBlocks = reward.DefaultBonusBlocks
	}
	if c.Reward.RatePerBlock.IsNil() {
		c.Reward.RatePerBlock = Amount{reward.DefaultRatePerBlock}
	}
	if c.Reward.BonusMultiplier == 0 {
		c.Reward.BonusMultiplier = reward.DefaultBonusMultiplier
	}
	for i := range c.Pools {
		if c.Pools[i].Multiplier == 0 {
			c.Pools[i].Multiplier = 1
		}
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Schedule.CheckpointCron == "" {
		c.Schedule.CheckpointCron = "0 */5 * * * *"
	}
	if c.Schedule.PoolMetricsCron == "" {
		c.Schedule.PoolMetricsCron = "@every 30s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all required fields are set and well-formed.
func (c *Config) Validate() error {
	if _, err := address.ParseWallet(c.Ledger.Owner); err != nil {
		return fmt.Errorf("ledger.owner: %w", err)
	}
	if _, err := address.ParseWallet(c.Ledger.Fund); err != nil {
		return fmt.Errorf("ledger.fund: %w", err)
	}
	if _, err := address.Parse(c.Reward.Token); err != nil {
		return fmt.Errorf("reward.token: %w", err)
	}
	if err := reward.ValidateConfig(c.RewardConfig()); err != nil {
		return fmt.Errorf("reward: %w", err)
	}

	seen := make(map[string]bool, len(c.Pools))
	for i, p := range c.Pools {
		if _, err := address.Parse(p.Token); err != nil {
			return fmt.Errorf("pools[%d].token: %w", i, err)
		}
		if seen[p.Token] {
			return fmt.Errorf("pools[%d]: duplicate token %s", i, p.Token)
		}
		seen[p.Token] = true
		if p.MaxLockUpLimit.IsNil() || !p.MaxLockUpLimit.IsPositive() {
			return fmt.Errorf("pools[%d].max_lockup_limit must be positive", i)
		}
	}

	for i, a := range c.Assets {
		if _, err := address.Parse(a.ID); err != nil {
			return fmt.Errorf("assets[%d].id: %w", i, err)
		}
		if a.Holder != "" {
			if _, err := address.ParseWallet(a.Holder); err != nil {
				return fmt.Errorf("assets[%d].holder: %w", i, err)
			}
		}
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"schedule.checkpoint_cron":   c.Schedule.CheckpointCron,
		"schedule.pool_metrics_cron": c.Schedule.PoolMetricsCron,
	} {
		if spec == "" || spec == "off" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Custody returns the derived custody account.
func (c *Config) Custody() (domain.Address, error) {
	return address.Derive([]byte(c.Ledger.CustodySeed))
}

// Minter returns the derived reward minter account.
func (c *Config) Minter() (domain.Address, error) {
	return address.Derive([]byte(c.Ledger.MinterSeed))
}

// RewardConfig returns the emission schedule.
func (c *Config) RewardConfig() domain.RewardConfig {
	return domain.RewardConfig{
		RewardToken:     domain.Address(c.Reward.Token),
		StartBlock:      c.Reward.StartBlock,
		RewardBlocks:    c.Reward.RewardBlocks,
		BonusBlocks:     c.Reward.BonusBlocks,
		RatePerBlock:    c.Reward.RatePerBlock.Int,
		BonusMultiplier: c.Reward.BonusMultiplier,
	}
}

// PoolSpecs returns the pools to bootstrap.
func (c *Config) PoolSpecs() []orchestrator.PoolSpec {
	specs := make([]orchestrator.PoolSpec, 0, len(c.Pools))
	for _, p := range c.Pools {
		specs = append(specs, orchestrator.PoolSpec{
			Token:          domain.Address(p.Token),
			MaxLockUpLimit: p.MaxLockUpLimit.Int,
			Multiplier:     p.Multiplier,
		})
	}
	return specs
}

// CronSpec returns spec, or "" when the job is switched off.
func CronSpec(spec string) string {
	if spec == "off" {
		return ""
	}
	return spec
}
