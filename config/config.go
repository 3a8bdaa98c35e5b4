package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Artfain/triad-fedchain/core"
)

// EnvPrefix prefixes environment overrides, e.g. FEDCHAIN_BLOCK__DIFFICULTY=3.
const EnvPrefix = "FEDCHAIN_"

// Config is the full simulation configuration.
type Config struct {
	Seed     int64            `koanf:"seed"`
	Rounds   int              `koanf:"rounds"`
	Workers  int              `koanf:"workers"`
	Block    core.BlockParams `koanf:"block"`
	Nodes    []NodeConfig     `koanf:"nodes"`
	Trainer  TrainerConfig    `koanf:"trainer"`
	Detector DetectorConfig   `koanf:"detector"`
	Storage  StorageConfig    `koanf:"storage"`
	API      APIConfig        `koanf:"api"`
	Log      LogConfig        `koanf:"log"`
}

// NodeConfig describes one cohort member and the size of its data partition.
type NodeConfig struct {
	ID        string  `koanf:"id"`
	Stake     float64 `koanf:"stake"`
	Malicious bool    `koanf:"malicious"`
	Samples   int     `koanf:"samples"`
}

// TrainerConfig controls the synthetic regression task every node trains on.
// DPSigma of 0 disables the Gaussian noise on deltas.
type TrainerConfig struct {
	Features     int     `koanf:"features"`
	LearningRate float64 `koanf:"learning_rate"`
	Epochs       int     `koanf:"epochs"`
	Noise        float64 `koanf:"noise"`
	DPSigma      float64 `koanf:"dp_sigma"`
}

// DetectorConfig selects the detection oracle: "norm", "static" or "none".
type DetectorConfig struct {
	Kind    string   `koanf:"kind"`
	Factor  float64  `koanf:"factor"`
	Flagged []string `koanf:"flagged"`
}

// StorageConfig locates the LevelDB database. An empty path disables persistence.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// APIConfig is the observer HTTP surface. RateLimit is in requests per second;
// 0 means unlimited.
type APIConfig struct {
	Addr      string  `koanf:"addr"`
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// LogConfig sets the slog level: debug, info, warn or error.
type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns a four node cohort with one malicious participant and the
// reference block parameters.
func Default() Config {
	return Config{
		Seed:    1,
		Rounds:  5,
		Workers: 0,
		Block:   core.DefaultBlockParams(),
		Nodes: []NodeConfig{
			{ID: "node-a", Stake: 10, Samples: 64},
			{ID: "node-b", Stake: 10, Samples: 64},
			{ID: "node-c", Stake: 10, Samples: 64},
			{ID: "node-d", Stake: 10, Samples: 64, Malicious: true},
		},
		Trainer: TrainerConfig{
			Features:     4,
			LearningRate: 0.5,
			Epochs:       5,
			Noise:        0.1,
		},
		Detector: DetectorConfig{Kind: "norm", Factor: 2.0},
		API:      APIConfig{Addr: ":8081", RateLimit: 100.0 / 60.0, Burst: 100},
		Log:      LogConfig{Level: "info"},
	}
}

// Load merges defaults, the optional provider (YAML) and FEDCHAIN_ environment
// variables, in that order.
func Load(provider koanf.Provider) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("error loading defaults: %w", err)
	}
	if provider != nil {
		if err := k.Load(provider, yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("error loading config: %w", err)
		}
	}
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("error loading env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile loads configuration from a YAML file, or defaults and env only when
// path is empty.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Load(nil)
	}
	return Load(file.Provider(path))
}

// Validate checks the configuration for values the simulation cannot run with.
func (c Config) Validate() error {
	if c.Rounds < 0 {
		return fmt.Errorf("rounds must not be negative, got %d", c.Rounds)
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node id must not be empty")
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %s", n.ID)
		}
		seen[n.ID] = true
		if n.Stake < 0 {
			return fmt.Errorf("node %s: negative stake %v", n.ID, n.Stake)
		}
	}
	if c.Block.Difficulty < 0 || c.Block.Difficulty > core.DigestHexLen {
		return fmt.Errorf("block difficulty %d out of range [0, %d]", c.Block.Difficulty, core.DigestHexLen)
	}
	if c.Block.VDFIterations < 0 {
		return fmt.Errorf("vdf iterations must not be negative")
	}
	if c.Trainer.Features <= 0 {
		return fmt.Errorf("trainer features must be positive")
	}
	switch c.Detector.Kind {
	case "norm", "static", "none":
	default:
		return fmt.Errorf("unknown detector kind %q", c.Detector.Kind)
	}
	return nil
}
