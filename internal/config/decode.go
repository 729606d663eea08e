package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	In             string `validate:"required"`
	Out            string `validate:"required"`
	Errors         string `validate:"required"`
	EventSignature string `validate:"required,startswith=0x,len=66,hexadecimal"`
	LogLevel       string `validate:"oneof=debug info warn error"`
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("out", "./data/transfers.jsonl")
	v.SetDefault("errors", "./data/decode_errors.jsonl")
	v.SetDefault("event-signature", DefaultEventSignature)
	v.SetDefault("log-level", "info")

	if err := readConfig(v, cfgFile, flags); err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		In:             v.GetString("in"),
		Out:            v.GetString("out"),
		Errors:         v.GetString("errors"),
		EventSignature: v.GetString("event-signature"),
		LogLevel:       strings.ToLower(v.GetString("log-level")),
	}

	if err := Validate(cfg); err != nil {
		return DecodeConfig{}, err
	}
	return cfg, nil
}
