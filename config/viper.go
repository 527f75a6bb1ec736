// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/paychan/monitor"
	"github.com/luxfi/paychan/service"
)

// EnvPrefix namespaces the environment variables, e.g. PAYCHAN_RPC_URL
const EnvPrefix = "PAYCHAN"

// BuildFlagSet declares the command line flags. Every key may also come from
// the config file or the environment.
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("paychan", pflag.ContinueOnError)
	fs.String(ConfigFileKey, "", "Path to a JSON config file")
	fs.String(RPCURLKey, "", "JSON-RPC endpoint of the ledger node")
	fs.String(ChannelManagerKey, "", "Channel manager contract address")
	fs.StringSlice(TokensKey, nil, "Token contract addresses to monitor")
	fs.String(StorageDirKey, "", "Directory of the monitor database, in memory when empty")
	fs.Uint16(APIPortKey, defaultAPIPort, "Port of the health endpoint")
	fs.Uint16(MetricsPortKey, defaultMetricsPort, "Port of the metrics endpoint")
	fs.Duration(BlockIntervalKey, monitor.DefaultBlockInterval, "Block number polling interval")
	fs.Duration(RetryDelayKey, monitor.DefaultRetryDelay, "Delay between retries of failed ledger calls")
	fs.Duration(GasPriceTTLKey, service.DefaultGasPriceTTL, "How long a fetched gas price is reused")
	fs.Int(ReceiptCacheSizeKey, service.DefaultReceiptCacheSize, "Number of transaction receipts kept in memory")
	return fs
}

// BuildViper binds fs and the environment, and reads the config file when
// one is given.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// Map flag names to env var names. Hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if filename := v.GetString(ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(APIPortKey, defaultAPIPort)
	v.SetDefault(MetricsPortKey, defaultMetricsPort)
	v.SetDefault(BlockIntervalKey, monitor.DefaultBlockInterval)
	v.SetDefault(RetryDelayKey, monitor.DefaultRetryDelay)
	v.SetDefault(GasPriceTTLKey, service.DefaultGasPriceTTL)
	v.SetDefault(ReceiptCacheSizeKey, service.DefaultReceiptCacheSize)
}

// BuildConfig constructs the config using Viper. Flags take precedence over
// the environment, which takes precedence over the config file.
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	// A comma separated environment value arrives as a single element
	cfg.Tokens = splitList(v.GetStringSlice(TokensKey))
	return cfg, nil
}

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
