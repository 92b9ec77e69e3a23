package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. POOLCACHE_RPC.
const EnvPrefix = "POOLCACHE"

// Sink names accepted by the sink key.
const (
	SinkJSONL    = "jsonl"
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
	SinkNone     = "none"
)

// Config holds settings for the run command.
type Config struct {
	RPCURL            string
	V2Pools           []string
	V3Pools           []string
	BatchSize         uint64
	PollInterval      time.Duration
	Confirmations     uint64
	StartBlock        uint64
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	Sink              string
	SnapshotOut       string
	PostgresDSN       string
	SQLitePath        string
	SnapshotInterval  time.Duration
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size":         uint64(500),
		"poll-interval":      4 * time.Second,
		"confirmations":      uint64(0),
		"start-block":        uint64(0),
		"checkpoint":         "./data/checkpoint.json",
		"checkpoint-enabled": true,
		"max-retries":        5,
		"retry-backoff":      500 * time.Millisecond,
		"sink":               SinkJSONL,
		"snapshot-out":       "./data/pools.jsonl",
		"sqlite-path":        "./data/pools.db",
		"snapshot-interval":  30 * time.Second,
		"log-level":          "info",
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		V2Pools:           getStringSlice(v, "v2-pools"),
		V3Pools:           getStringSlice(v, "v3-pools"),
		BatchSize:         v.GetUint64("batch-size"),
		PollInterval:      v.GetDuration("poll-interval"),
		Confirmations:     v.GetUint64("confirmations"),
		StartBlock:        v.GetUint64("start-block"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		Sink:              strings.ToLower(strings.TrimSpace(v.GetString("sink"))),
		SnapshotOut:       v.GetString("snapshot-out"),
		PostgresDSN:       v.GetString("pg-dsn"),
		SQLitePath:        v.GetString("sqlite-path"),
		SnapshotInterval:  v.GetDuration("snapshot-interval"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings the run command cannot start without.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if len(c.V2Pools) == 0 && len(c.V3Pools) == 0 {
		return fmt.Errorf("at least one of v2-pools or v3-pools is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch-size must be greater than zero")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be greater than zero")
	}

	switch c.Sink {
	case SinkJSONL:
		if c.SnapshotOut == "" {
			return fmt.Errorf("snapshot-out is required for the jsonl sink")
		}
	case SinkPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres sink")
		}
	case SinkSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path is required for the sqlite sink")
		}
	case SinkNone:
		return nil
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot-interval must be greater than zero")
	}
	return nil
}

// newViper applies defaults, env, flags and the config file in the usual
// precedence: flags > env > file > defaults.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
