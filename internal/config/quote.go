package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// QuoteConfig holds settings for the quote command.
type QuoteConfig struct {
	Snapshot   string
	Pool       string
	AmountIn   string
	ZeroForOne bool
	LogLevel   string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"snapshot":     "./data/pools.jsonl",
		"zero-for-one": true,
		"log-level":    "info",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		Snapshot:   v.GetString("snapshot"),
		Pool:       v.GetString("pool"),
		AmountIn:   v.GetString("amount-in"),
		ZeroForOne: v.GetBool("zero-for-one"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}

func (c QuoteConfig) Validate() error {
	if c.Snapshot == "" {
		return fmt.Errorf("snapshot is required")
	}
	if c.Pool == "" {
		return fmt.Errorf("pool is required")
	}
	return nil
}
