// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"

	// Top-level configuration keys
	RPCURLKey           = "rpc-url"
	ChannelManagerKey   = "channel-manager"
	TokensKey           = "tokens"
	StorageDirKey       = "storage-dir"
	APIPortKey          = "api-port"
	MetricsPortKey      = "metrics-port"
	BlockIntervalKey    = "block-interval"
	RetryDelayKey       = "retry-delay"
	GasPriceTTLKey      = "gas-price-ttl"
	ReceiptCacheSizeKey = "receipt-cache-size"
)
