package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smartcoin.dev/node/consensus"
)

type Config struct {
	Network  string `json:"network"`
	DataDir  string `json:"data_dir"`
	BindAddr string `json:"bind_addr"`
	LogLevel string `json:"log_level"`

	// BlockInterval is the simulated time between farmed blocks.
	BlockInterval   time.Duration `json:"block_interval"`
	MaxBlockCost    uint64        `json:"max_block_cost"`
	ValidateTimeout time.Duration `json:"validate_timeout"`
	// AutoFarm commits every accepted bundle in a block of its own.
	AutoFarm bool `json:"auto_farm"`
	// Persist keeps the chain in a bbolt store under DataDir.
	Persist bool `json:"persist"`
	// GenesisTimestamp is the unix time of block 0.
	GenesisTimestamp uint64 `json:"genesis_timestamp"`
	// RewardPuzzleHash receives block rewards when a block is farmed without an
	// explicit recipient.
	RewardPuzzleHash   consensus.Hash `json:"reward_puzzle_hash"`
	MaxBundlesPerBlock int            `json:"max_bundles_per_block"`
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
		return ".coinsim"
	}
	return filepath.Join(home, ".coinsim")
}

func DefaultConfig() Config {
	return Config{
		Network:            "simnet",
		DataDir:            DefaultDataDir(),
		BindAddr:           "127.0.0.1:18555",
		LogLevel:           "info",
		BlockInterval:      30 * time.Second,
		MaxBlockCost:       consensus.DefaultMaxBlockCost,
		ValidateTimeout:    5 * time.Second,
		GenesisTimestamp:   1_600_000_000,
		MaxBundlesPerBlock: defaultMaxBundlesPerBlock,
	}
}

// LoadConfigFile overlays the JSON object in path on base. Unknown keys are errors.
func LoadConfigFile(path string, base Config) (Config, error) {
	raw, err := readConfigFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	cfg := base
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	dir, name := filepath.Dir(path), filepath.Base(path)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file name: %q", name)
	}
	return fs.ReadFile(os.DirFS(dir), name)
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if cfg.Persist && strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required when persist is enabled")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.BlockInterval < time.Second {
		return errors.New("block_interval must be >= 1s")
	}
	if cfg.MaxBlockCost == 0 {
		return errors.New("max_block_cost must be > 0")
	}
	if cfg.ValidateTimeout <= 0 {
		return errors.New("validate_timeout must be > 0")
	}
	if cfg.MaxBundlesPerBlock < 0 {
		return errors.New("max_bundles_per_block must be >= 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}
