package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL string

	Pair     string
	TokenIn  string
	AmountIn string

	Amount0    string
	Amount1    string
	SellToken0 bool

	TokenOut  string
	Liquidity string

	Reserve0 string
	Reserve1 string
	Supply   string

	MaxZapReverseRatio int64
	Out                string
	PgDSN              string
	MaxRetries         int
	RetryBackoff       time.Duration
	LogLevel           string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZAPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("max-zap-reverse-ratio", int64(100))
	v.SetDefault("out", "./data/zaps.jsonl")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:             v.GetString("rpc"),
		Pair:               v.GetString("pair"),
		TokenIn:            v.GetString("token-in"),
		AmountIn:           v.GetString("amount"),
		Amount0:            v.GetString("amount0"),
		Amount1:            v.GetString("amount1"),
		SellToken0:         v.GetBool("sell-token0"),
		TokenOut:           v.GetString("token-out"),
		Liquidity:          v.GetString("liquidity"),
		Reserve0:           v.GetString("reserve0"),
		Reserve1:           v.GetString("reserve1"),
		Supply:             v.GetString("supply"),
		MaxZapReverseRatio: v.GetInt64("max-zap-reverse-ratio"),
		Out:                v.GetString("out"),
		PgDSN:              v.GetString("pg-dsn"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, nil
}
