// Package config loads node configuration from JSON or HCL files with
// environment overrides, and builds the genesis block.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/storage"
)

// GenesisKitty is a kitty minted into the genesis state without a deposit.
type GenesisKitty struct {
	Owner  string `json:"owner" hcl:"owner" validate:"required,hexadecimal,len=64"`
	DNA    string `json:"dna" hcl:"dna" validate:"required,hexadecimal,len=32"`
	Gender string `json:"gender" hcl:"gender" validate:"oneof=male female"`
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id" env:"KITTY_CHAIN_ID" validate:"required"`
	Alloc   map[string]uint64 `json:"alloc" validate:"dive,keys,hexadecimal,len=64,endkeys"` // pubkey hex → initial free balance
	Params  core.Params       `json:"params"`
	Kitties []GenesisKitty    `json:"kitties" validate:"dive"`
}

// Config holds all node configuration.
type Config struct {
	NodeID        string        `json:"node_id" env:"KITTY_NODE_ID"`
	DataDir       string        `json:"data_dir" env:"KITTY_DATA_DIR" validate:"required"`
	DBEngine      string        `json:"db_engine" env:"KITTY_DB_ENGINE" validate:"oneof=leveldb bolt"`
	RPCPort       int           `json:"rpc_port" env:"KITTY_RPC_PORT" validate:"min=0,max=65535"`
	RPCAuthToken  string        `json:"rpc_auth_token" env:"KITTY_RPC_AUTH_TOKEN"`
	RPCRateLimit  float64       `json:"rpc_rate_limit" env:"KITTY_RPC_RATE_LIMIT" validate:"min=0"`
	BlockInterval string        `json:"block_interval" env:"KITTY_BLOCK_INTERVAL"` // Go duration; "" → 2s
	MaxBlockTxs   int           `json:"max_block_txs" env:"KITTY_MAX_BLOCK_TXS"`  // max transactions per block; 0 → 500
	Validators    []string      `json:"validators" env:"KITTY_VALIDATORS" envSeparator:"," validate:"dive,hexadecimal,len=64"`
	Genesis       GenesisConfig `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		DataDir:       "./data",
		DBEngine:      storage.EngineLevelDB,
		RPCPort:       8545,
		BlockInterval: "2s",
		MaxBlockTxs:   500,
		Genesis: GenesisConfig{
			ChainID: "kittychain-dev",
			Alloc:   map[string]uint64{},
			Params:  core.DefaultParams(),
		},
	}
}

// Interval returns the block production interval.
func (c *Config) Interval() (time.Duration, error) {
	if c.BlockInterval == "" {
		return 2 * time.Second, nil
	}
	d, err := time.ParseDuration(c.BlockInterval)
	if err != nil {
		return 0, fmt.Errorf("block_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("block_interval must be positive, got %s", d)
	}
	return d, nil
}

// Validate checks field formats and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Interval(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if n, limit := len(c.Genesis.Kitties), c.Genesis.Params.WithDefaults().KittyIndexLimit; uint64(n) > uint64(limit) {
		return fmt.Errorf("config: %d genesis kitties exceed kitty_index_limit %d", n, limit)
	}
	return nil
}

// Load reads a config file from path, JSON or HCL by extension, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		if err := decodeHCL(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any KITTY_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
