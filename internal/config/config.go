package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/chain"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL             string
	BondingCurve       string
	PaymentToken       string
	FeeAddress         string
	TokenDecimals      uint8
	PaymentDecimals    uint8
	BlockTime          time.Duration
	Window             time.Duration
	CacheTTL           time.Duration
	MaxPoints          int
	FlatLinePoints     int
	LogBatchSize       uint64
	MaxConcurrency     int
	SkipHistoricalRead bool
	PGDSN              string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	NATSURL            string
	Listen             string
	RPCTimeout         time.Duration
	MaxRetries         int
	RetryBackoff       time.Duration
	LogLevel           string
}

// Contracts are the parsed contract addresses. FeeAddress is zero when unset.
type Contracts struct {
	BondingCurve common.Address
	PaymentToken common.Address
	FeeAddress   common.Address
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SONGSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("token-decimals", 18)
	v.SetDefault("payment-decimals", 6)
	v.SetDefault("block-time", 2*time.Second)
	v.SetDefault("window", 24*time.Hour)
	v.SetDefault("cache-ttl", 30*time.Second)
	v.SetDefault("max-points", 20)
	v.SetDefault("flat-line-points", 20)
	v.SetDefault("log-batch-size", uint64(2000))
	v.SetDefault("max-concurrency", 8)
	v.SetDefault("skip-historical-read", false)
	v.SetDefault("redis-db", 0)
	v.SetDefault("listen", ":8080")
	v.SetDefault("rpc-timeout", 15*time.Second)
	v.SetDefault("max-retries", 0)
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

	tokenDecimals, err := getDecimals(v, "token-decimals")
	if err != nil {
		return Config{}, err
	}
	paymentDecimals, err := getDecimals(v, "payment-decimals")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:             v.GetString("rpc"),
		BondingCurve:       strings.TrimSpace(v.GetString("bonding-curve")),
		PaymentToken:       strings.TrimSpace(v.GetString("payment-token")),
		FeeAddress:         strings.TrimSpace(v.GetString("fee-address")),
		TokenDecimals:      tokenDecimals,
		PaymentDecimals:    paymentDecimals,
		BlockTime:          v.GetDuration("block-time"),
		Window:             v.GetDuration("window"),
		CacheTTL:           v.GetDuration("cache-ttl"),
		MaxPoints:          v.GetInt("max-points"),
		FlatLinePoints:     v.GetInt("flat-line-points"),
		LogBatchSize:       v.GetUint64("log-batch-size"),
		MaxConcurrency:     v.GetInt("max-concurrency"),
		SkipHistoricalRead: v.GetBool("skip-historical-read"),
		PGDSN:              v.GetString("pg-dsn"),
		RedisAddr:          v.GetString("redis-addr"),
		RedisPassword:      v.GetString("redis-password"),
		RedisDB:            v.GetInt("redis-db"),
		NATSURL:            v.GetString("nats-url"),
		Listen:             v.GetString("listen"),
		RPCTimeout:         v.GetDuration("rpc-timeout"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryBackoff:       v.GetDuration("retry-backoff"),
		LogLevel:           v.GetString("log-level"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Contracts parses the configured contract addresses.
// The bonding curve and payment token are required.
func (c Config) Contracts() (Contracts, error) {
	if c.BondingCurve == "" {
		return Contracts{}, fmt.Errorf("bonding-curve address is required")
	}
	if c.PaymentToken == "" {
		return Contracts{}, fmt.Errorf("payment-token address is required")
	}
	curveAddr, err := chain.ParseAddress(c.BondingCurve)
	if err != nil {
		return Contracts{}, fmt.Errorf("bonding-curve: %w", err)
	}
	paymentAddr, err := chain.ParseAddress(c.PaymentToken)
	if err != nil {
		return Contracts{}, fmt.Errorf("payment-token: %w", err)
	}
	feeAddr, err := chain.ParseOptionalAddress(c.FeeAddress)
	if err != nil {
		return Contracts{}, fmt.Errorf("fee-address: %w", err)
	}
	return Contracts{BondingCurve: curveAddr, PaymentToken: paymentAddr, FeeAddress: feeAddr}, nil
}

func (c Config) validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if c.BlockTime <= 0 {
		return fmt.Errorf("block-time must be positive")
	}
	if c.MaxPoints < 2 {
		return fmt.Errorf("max-points must be at least 2")
	}
	if c.FlatLinePoints < 2 {
		return fmt.Errorf("flat-line-points must be at least 2")
	}
	if c.LogBatchSize == 0 {
		return fmt.Errorf("log-batch-size must be positive")
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max-concurrency must be at least 1")
	}
	return nil
}

func getDecimals(v *viper.Viper, key string) (uint8, error) {
	value := v.GetInt(key)
	if value < 0 || value > math.MaxUint8 {
		return 0, fmt.Errorf("%s out of range: %d", key, value)
	}
	return uint8(value), nil
}
