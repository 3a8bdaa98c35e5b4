package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/stretchr/testify/require"

	"github.com/Artfain/triad-fedchain/core"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	def := Default()
	require.Equal(t, def.Nodes, cfg.Nodes)
	require.Equal(t, def.Trainer, cfg.Trainer)
	require.Equal(t, def.API, cfg.API)
	require.Equal(t, "norm", cfg.Detector.Kind)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, core.DefaultDifficulty, cfg.Block.Difficulty)
	require.Equal(t, core.DefaultVDFIterations, cfg.Block.VDFIterations)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	yamlConfig := []byte(`
rounds: 2
block:
  difficulty: 1
  vdf_iterations: 10
nodes:
  - id: alpha
    stake: 3
    samples: 8
  - id: beta
    stake: 1
    malicious: true
detector:
  kind: static
  flagged: [beta]
storage:
  path: /tmp/fedchain
`)
	cfg, err := Load(rawbytes.Provider(yamlConfig))
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Rounds)
	require.Equal(t, core.BlockParams{Difficulty: 1, VDFIterations: 10}, cfg.Block)
	require.Equal(t, []NodeConfig{
		{ID: "alpha", Stake: 3, Samples: 8},
		{ID: "beta", Stake: 1, Malicious: true},
	}, cfg.Nodes)
	require.Equal(t, "static", cfg.Detector.Kind)
	require.Equal(t, []string{"beta"}, cfg.Detector.Flagged)
	require.Equal(t, "/tmp/fedchain", cfg.Storage.Path)
	// untouched sections keep their defaults
	require.Equal(t, Default().Trainer, cfg.Trainer)
	require.Equal(t, Default().API, cfg.API)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("FEDCHAIN_BLOCK__DIFFICULTY", "3")
	t.Setenv("FEDCHAIN_TRAINER__LEARNING_RATE", "0.25")
	t.Setenv("FEDCHAIN_LOG__LEVEL", "debug")

	cfg, err := Load(rawbytes.Provider([]byte("block:\n  difficulty: 1\n")))
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Block.Difficulty)
	require.Equal(t, 0.25, cfg.Trainer.LearningRate)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedchain.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rounds: 9\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Rounds)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"negative rounds":  func(c *Config) { c.Rounds = -1 },
		"no nodes":         func(c *Config) { c.Nodes = nil },
		"empty id":         func(c *Config) { c.Nodes[0].ID = "" },
		"duplicate id":     func(c *Config) { c.Nodes[1].ID = c.Nodes[0].ID },
		"negative stake":   func(c *Config) { c.Nodes[0].Stake = -1 },
		"difficulty":       func(c *Config) { c.Block.Difficulty = core.DigestHexLen + 1 },
		"vdf iterations":   func(c *Config) { c.Block.VDFIterations = -1 },
		"features":         func(c *Config) { c.Trainer.Features = 0 },
		"unknown detector": func(c *Config) { c.Detector.Kind = "oracle" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}
