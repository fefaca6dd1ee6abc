// Package config loads and validates the service configuration from
// YAML files and MEVSHIELD_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// ServerConfig is the HTTP server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig selects the trade-history backend
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig enables the protect-endpoint rate limiter when an
// address is configured
type RedisConfig struct {
	Address       string `mapstructure:"address"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

// KafkaConfig enables the audit-event publisher when brokers are
// configured
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ScoringConfig locates the external ML scoring API
type ScoringConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ProtocolConfig holds the on-ledger protocol parameters
type ProtocolConfig struct {
	Owner               string   `mapstructure:"owner"`
	RouterAddress       string   `mapstructure:"router_address"`
	VaultAddress        string   `mapstructure:"vault_address"`
	Threshold           uint8    `mapstructure:"threshold"`
	FeeBps              int64    `mapstructure:"fee_bps"`
	DefaultDelaySeconds int64    `mapstructure:"default_delay_seconds"`
	SimOutputBps        int64    `mapstructure:"sim_output_bps"`
	ReferencePriceUSD   float64  `mapstructure:"reference_price_usd"`
	Reporters           []string `mapstructure:"reporters"`
	// Assets lists the asset addresses registered at startup. Each gets
	// an in-memory token with the router's execution inventory premined.
	Assets []string `mapstructure:"assets"`
}

// Config is the full service configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
	Scoring     ScoringConfig  `mapstructure:"scoring"`
	Protocol    ProtocolConfig `mapstructure:"protocol"`
}

// LoadConfig reads configuration from the optional file path and the
// environment, applies defaults, and validates the result
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MEVSHIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "mevshield.db")
	v.SetDefault("redis.rate_per_minute", 60)
	v.SetDefault("kafka.topic", "mevshield.audit")
	v.SetDefault("scoring.url", "http://localhost:8001")
	v.SetDefault("scoring.timeout_seconds", 5)
	v.SetDefault("protocol.owner", "0x0000000000000000000000000000000000000001")
	v.SetDefault("protocol.router_address", "0x0000000000000000000000000000000000000010")
	v.SetDefault("protocol.vault_address", "0x0000000000000000000000000000000000000011")
	v.SetDefault("protocol.threshold", 70)
	v.SetDefault("protocol.fee_bps", 10)
	v.SetDefault("protocol.default_delay_seconds", 60)
	v.SetDefault("protocol.sim_output_bps", 9900)
	v.SetDefault("protocol.reference_price_usd", 2000)
	v.SetDefault("protocol.assets", []string{
		"0x0000000000000000000000000000000000000101",
		"0x0000000000000000000000000000000000000102",
	})
}

// Validate checks the configured protocol parameters
func (c *Config) Validate() error {
	if c.Protocol.Threshold > 100 {
		return fmt.Errorf("protocol.threshold %d out of range [0,100]", c.Protocol.Threshold)
	}
	if c.Protocol.FeeBps < 0 || c.Protocol.FeeBps > 100 {
		return fmt.Errorf("protocol.fee_bps %d out of range [0,100]", c.Protocol.FeeBps)
	}
	if c.Protocol.DefaultDelaySeconds < 1 || c.Protocol.DefaultDelaySeconds > 3600 {
		return fmt.Errorf("protocol.default_delay_seconds %d out of range [1,3600]", c.Protocol.DefaultDelaySeconds)
	}
	if c.Protocol.SimOutputBps < 0 || c.Protocol.SimOutputBps > 10000 {
		return fmt.Errorf("protocol.sim_output_bps %d out of range [0,10000]", c.Protocol.SimOutputBps)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	for _, addr := range []string{c.Protocol.Owner, c.Protocol.RouterAddress, c.Protocol.VaultAddress} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%q is not a valid address", addr)
		}
	}
	for _, addr := range c.Protocol.Reporters {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("reporter %q is not a valid address", addr)
		}
	}
	if len(c.Protocol.Assets) == 0 {
		return fmt.Errorf("protocol.assets must list at least one asset")
	}
	for _, addr := range c.Protocol.Assets {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("asset %q is not a valid address", addr)
		}
	}
	return nil
}

// OwnerAddress returns the configured owner address
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Protocol.Owner)
}

// RouterAddress returns the router's custody address
func (c *Config) RouterAddress() common.Address {
	return common.HexToAddress(c.Protocol.RouterAddress)
}

// VaultAddress returns the vault's custody address
func (c *Config) VaultAddress() common.Address {
	return common.HexToAddress(c.Protocol.VaultAddress)
}

// AssetAddresses returns the assets to register at startup
func (c *Config) AssetAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Protocol.Assets))
	for _, addr := range c.Protocol.Assets {
		out = append(out, common.HexToAddress(addr))
	}
	return out
}

// ReporterAddresses returns the configured bundle reporters
func (c *Config) ReporterAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Protocol.Reporters))
	for _, addr := range c.Protocol.Reporters {
		out = append(out, common.HexToAddress(addr))
	}
	return out
}
