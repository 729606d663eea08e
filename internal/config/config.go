package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"transferScope/internal/erc20"
	"transferScope/internal/source"
)

const (
	DefaultAPIURL         = source.DefaultAPIURL
	DefaultToken          = "0x6982508145454ce325ddbe47a25d4ec3d2311933"
	DefaultEventSignature = erc20.TransferEventSignature
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Source            string `validate:"oneof=http rpc"`
	APIURL            string `validate:"omitempty,url"`
	APIKey            string
	RPCURL            string   `validate:"required_if=Source rpc"`
	Tokens            []string `validate:"min=1,dive,eth_addr"`
	EventSignature    string   `validate:"required,startswith=0x,len=66,hexadecimal"`
	PageSize          int      `validate:"gt=0"`
	MaxIterations     int      `validate:"gte=0"`
	Sink              string   `validate:"oneof=jsonl csv postgres"`
	OutDir            string   `validate:"required_unless=Sink postgres"`
	PGDSN             string   `validate:"required_if=Sink postgres"`
	CheckpointDir     string   `validate:"required_if=CheckpointEnabled true"`
	CheckpointEnabled bool
	MaxRetries        int           `validate:"gte=0"`
	RetryBackoff      time.Duration `validate:"gte=0"`
	RetryMaxBackoff   time.Duration `validate:"gtefield=RetryBackoff"`
	HTTPTimeout       time.Duration `validate:"gt=0"`
	RPCBlockWindow    uint64        `validate:"gt=0"`
	Concurrency       int           `validate:"gte=1"`
	LogLevel          string        `validate:"oneof=debug info warn error"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("source", "http")
	v.SetDefault("api-url", DefaultAPIURL)
	v.SetDefault("token", []string{DefaultToken})
	v.SetDefault("event-signature", DefaultEventSignature)
	v.SetDefault("page-size", 100000)
	v.SetDefault("max-iterations", 20)
	v.SetDefault("sink", "jsonl")
	v.SetDefault("out-dir", "./data")
	v.SetDefault("checkpoint-dir", "./data/checkpoints")
	v.SetDefault("checkpoint-enabled", false)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("retry-max-backoff", 10*time.Second)
	v.SetDefault("http-timeout", 60*time.Second)
	v.SetDefault("rpc-block-window", uint64(2000))
	v.SetDefault("concurrency", 1)
	v.SetDefault("log-level", "info")

	if err := readConfig(v, cfgFile, flags); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Source:            strings.ToLower(v.GetString("source")),
		APIURL:            v.GetString("api-url"),
		APIKey:            v.GetString("api-key"),
		RPCURL:            v.GetString("rpc"),
		Tokens:            getStringSlice(v, "token"),
		EventSignature:    v.GetString("event-signature"),
		PageSize:          v.GetInt("page-size"),
		MaxIterations:     v.GetInt("max-iterations"),
		Sink:              strings.ToLower(v.GetString("sink")),
		OutDir:            v.GetString("out-dir"),
		PGDSN:             v.GetString("pg-dsn"),
		CheckpointDir:     v.GetString("checkpoint-dir"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		RetryMaxBackoff:   v.GetDuration("retry-max-backoff"),
		HTTPTimeout:       v.GetDuration("http-timeout"),
		RPCBlockWindow:    v.GetUint64("rpc-block-window"),
		Concurrency:       v.GetInt("concurrency"),
		LogLevel:          strings.ToLower(v.GetString("log-level")),
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// readConfig binds flags and reads the config file. Without an explicit
// file, a missing ./config.yaml is not an error.
func readConfig(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return errors.Wrap(err, "bind flags")
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrap(err, "read config")
		}
		return nil
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "read config")
		}
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return splitAll(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return splitAll(items)
	default:
		return nil
	}
}

// splitAll also splits comma lists, since flag defaults and env values
// arrive as a single joined element.
func splitAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, splitAndClean(item)...)
	}
	return out
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
