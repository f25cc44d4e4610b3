// Package config loads service configuration.
//
// Sources, in order of precedence: environment variables (SKYVAULT_*), an
// optional skyvault.yaml in the working directory, then defaults.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Views   ViewConfig    `mapstructure:"views"`
	Pricing PricingConfig `mapstructure:"pricing"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level: debug, info, warn, or error.
	Level string `mapstructure:"level"`
	// Format: json or text.
	Format string `mapstructure:"format"`
}

// ServerConfig carries deployment-facing settings.
type ServerConfig struct {
	// DevMode switches to in-memory stores and env-based secrets.
	DevMode bool `mapstructure:"dev_mode"`
	// FrontendURL is the CORS origin for browser callers.
	FrontendURL string `mapstructure:"frontend_url"`
	// Addr is the listen address for the local server.
	Addr string `mapstructure:"addr"`
}

// StorageConfig names the backing stores and bounds their calls.
type StorageConfig struct {
	Table  string `mapstructure:"table"`
	Bucket string `mapstructure:"bucket"`
	// PresignTTL bounds issued upload/download URLs.
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
	// OpTimeout bounds each store-facing operation.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// AuthConfig controls owner resolution. Authentication itself is external;
// the service only verifies the bearer token signature.
type AuthConfig struct {
	// JWTSecretParam is the SSM parameter holding the signing secret.
	JWTSecretParam string `mapstructure:"jwt_secret_param"`
	// DefaultOwner is used when requests carry no token. Empty disables
	// the fallback.
	DefaultOwner string `mapstructure:"default_owner"`
}

// ViewConfig tunes the projections.
type ViewConfig struct {
	RecentLimit int `mapstructure:"recent_limit"`
}

// PricingConfig overrides the cost-estimate rate table.
type PricingConfig struct {
	StorageGBMonth float64 `mapstructure:"storage_gb_month"`
	PutRequest     float64 `mapstructure:"put_request"`
	GetRequest     float64 `mapstructure:"get_request"`
	TransferGB     float64 `mapstructure:"transfer_gb"`
	FreeTransferGB float64 `mapstructure:"free_transfer_gb"`
}

// Load reads configuration from the environment and optional config file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("storage.table", "FileMetadata")
	v.SetDefault("storage.bucket", "skyvault-files")
	v.SetDefault("storage.presign_ttl", time.Hour)
	v.SetDefault("storage.op_timeout", 10*time.Second)
	v.SetDefault("auth.jwt_secret_param", "/skyvault/jwt-secret")
	v.SetDefault("auth.default_owner", "default-user")
	v.SetDefault("views.recent_limit", 20)
	v.SetDefault("pricing.storage_gb_month", 0.023)
	v.SetDefault("pricing.put_request", 0.005/1000)
	v.SetDefault("pricing.get_request", 0.0004/1000)
	v.SetDefault("pricing.transfer_gb", 0.09)
	v.SetDefault("pricing.free_transfer_gb", 100)

	v.SetEnvPrefix("SKYVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("skyvault")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
