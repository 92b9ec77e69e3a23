package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func runFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.StringSlice("v2-pools", nil, "")
	flags.StringSlice("v3-pools", nil, "")
	flags.Uint64("batch-size", 500, "")
	flags.String("sink", SinkJSONL, "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(500), cfg.BatchSize)
	assert.Equal(t, 4*time.Second, cfg.PollInterval)
	assert.Equal(t, "./data/checkpoint.json", cfg.Checkpoint)
	assert.True(t, cfg.CheckpointEnabled)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, SinkJSONL, cfg.Sink)
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Nil(t, cfg.V2Pools)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	file := filepath.Join(dir, "poolcache.yaml")
	require.NoError(t, os.WriteFile(file, []byte(
		"rpc: http://file\nbatch-size: 50\nv3-pools: \"0x01, 0x02\"\nsink: sqlite\n",
	), 0o644))

	t.Setenv("POOLCACHE_BATCH_SIZE", "75")
	t.Setenv("POOLCACHE_POLL_INTERVAL", "2s")

	flags := runFlags()
	require.NoError(t, flags.Parse([]string{"--rpc", "http://flag", "--v2-pools", "0xaa,0xbb"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)

	assert.Equal(t, "http://flag", cfg.RPCURL, "flag beats file")
	assert.Equal(t, uint64(75), cfg.BatchSize, "env beats file")
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"0xaa", "0xbb"}, cfg.V2Pools)
	assert.Equal(t, []string{"0x01", "0x02"}, cfg.V3Pools)
	assert.Equal(t, SinkSQLite, cfg.Sink)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		RPCURL:           "http://localhost:8545",
		V2Pools:          []string{"0x01"},
		BatchSize:        10,
		PollInterval:     time.Second,
		Sink:             SinkJSONL,
		SnapshotOut:      "pools.jsonl",
		SnapshotInterval: time.Second,
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"no rpc":          func(c *Config) { c.RPCURL = "" },
		"no pools":        func(c *Config) { c.V2Pools = nil },
		"zero batch":      func(c *Config) { c.BatchSize = 0 },
		"zero poll":       func(c *Config) { c.PollInterval = 0 },
		"unknown sink":    func(c *Config) { c.Sink = "kafka" },
		"postgres no dsn": func(c *Config) { c.Sink = SinkPostgres },
		"sqlite no path":  func(c *Config) { c.Sink = SinkSQLite },
		"zero interval":   func(c *Config) { c.SnapshotInterval = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	none := valid
	none.Sink = SinkNone
	none.SnapshotInterval = 0
	assert.NoError(t, none.Validate())
}

func TestLoadQuote(t *testing.T) {
	chdir(t, t.TempDir())

	flags := pflag.NewFlagSet("quote", pflag.ContinueOnError)
	flags.String("pool", "", "")
	flags.String("amount-in", "", "")
	flags.Bool("zero-for-one", true, "")
	require.NoError(t, flags.Parse([]string{"--pool", "0x01", "--amount-in", "1000", "--zero-for-one=false"}))

	cfg, err := LoadQuote("", flags)
	require.NoError(t, err)
	assert.Equal(t, "./data/pools.jsonl", cfg.Snapshot)
	assert.Equal(t, "0x01", cfg.Pool)
	assert.Equal(t, "1000", cfg.AmountIn)
	assert.False(t, cfg.ZeroForOne)
	require.NoError(t, cfg.Validate())

	cfg.Pool = ""
	assert.Error(t, cfg.Validate())
}
