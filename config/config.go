// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/paychan/monitor"
	"github.com/luxfi/paychan/service"
)

const (
	defaultAPIPort     = uint16(8080)
	defaultMetricsPort = uint16(9090)
)

var (
	errMissingRPCURL         = errors.New("rpc-url must be set")
	errInvalidChannelManager = errors.New("channel-manager must be a hex address")
	errInvalidToken          = errors.New("tokens must be hex addresses")
	errPortCollision         = errors.New("api-port and metrics-port must differ")
)

// Config is the node configuration. Durations accept Go duration strings
// such as "5s".
type Config struct {
	RPCURL           string        `mapstructure:"rpc-url" json:"rpc-url"`
	ChannelManager   string        `mapstructure:"channel-manager" json:"channel-manager"`
	Tokens           []string      `mapstructure:"tokens" json:"tokens"`
	StorageDir       string        `mapstructure:"storage-dir" json:"storage-dir"`
	APIPort          uint16        `mapstructure:"api-port" json:"api-port"`
	MetricsPort      uint16        `mapstructure:"metrics-port" json:"metrics-port"`
	BlockInterval    time.Duration `mapstructure:"block-interval" json:"block-interval"`
	RetryDelay       time.Duration `mapstructure:"retry-delay" json:"retry-delay"`
	GasPriceTTL      time.Duration `mapstructure:"gas-price-ttl" json:"gas-price-ttl"`
	ReceiptCacheSize int           `mapstructure:"receipt-cache-size" json:"receipt-cache-size"`

	// Initialized by Validate
	channelManager common.Address
	tokens         []common.Address
}

// Validate checks the configuration and parses the addresses
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return errMissingRPCURL
	}
	if _, err := url.ParseRequestURI(c.RPCURL); err != nil {
		return fmt.Errorf("invalid rpc-url: %w", err)
	}
	if !common.IsHexAddress(c.ChannelManager) {
		return fmt.Errorf("%w: %q", errInvalidChannelManager, c.ChannelManager)
	}
	c.channelManager = common.HexToAddress(c.ChannelManager)
	if c.channelManager == (common.Address{}) {
		return fmt.Errorf("%w: zero address", errInvalidChannelManager)
	}

	c.tokens = make([]common.Address, 0, len(c.Tokens))
	for _, token := range c.Tokens {
		if !common.IsHexAddress(token) {
			return fmt.Errorf("%w: %q", errInvalidToken, token)
		}
		c.tokens = append(c.tokens, common.HexToAddress(token))
	}

	if c.APIPort == c.MetricsPort {
		return errPortCollision
	}
	if c.BlockInterval <= 0 || c.RetryDelay <= 0 || c.GasPriceTTL <= 0 {
		return errors.New("block-interval, retry-delay and gas-price-ttl must be positive")
	}
	if c.ReceiptCacheSize <= 0 {
		return fmt.Errorf("invalid receipt-cache-size %d", c.ReceiptCacheSize)
	}
	return nil
}

func (c *Config) GetChannelManager() common.Address {
	return c.channelManager
}

func (c *Config) GetTokens() []common.Address {
	return c.tokens
}

// ServiceConfig maps the configuration onto the service. The caller fills
// in the client, storage, logger and registerer.
func (c *Config) ServiceConfig() service.Config {
	return service.Config{
		Monitor: monitor.Config{
			Primary:       c.channelManager,
			Tokens:        c.tokens,
			BlockInterval: c.BlockInterval,
			RetryDelay:    c.RetryDelay,
		},
		GasPriceTTL:      c.GasPriceTTL,
		ReceiptCacheSize: c.ReceiptCacheSize,
	}
}
