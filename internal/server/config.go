package server

import (
	"fmt"
	"time"

	"github.com/inferloop/contentscore/pkg/constants"
	"github.com/inferloop/contentscore/pkg/errors"
)

// Config contains HTTP server configuration
type Config struct {
	Host            string        `json:"host" yaml:"host" mapstructure:"host"`
	Port            int           `json:"port" yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
	MaxRequestSize  int64         `json:"max_request_size" yaml:"max_request_size" mapstructure:"max_request_size"`
	EnableCORS      bool          `json:"enable_cors" yaml:"enable_cors" mapstructure:"enable_cors"`
	TLSCertFile     string        `json:"tls_cert_file,omitempty" yaml:"tls_cert_file,omitempty" mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `json:"tls_key_file,omitempty" yaml:"tls_key_file,omitempty" mapstructure:"tls_key_file"`

	// CacheTTL bounds how long score and insights reports are served from cache
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
	// LookbackDays is the analysis window used when a request names none
	LookbackDays int `json:"lookback_days" yaml:"lookback_days" mapstructure:"lookback_days"`

	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	Auth      AuthConfig      `json:"auth" yaml:"auth" mapstructure:"auth"`
}

// RateLimitConfig contains per-client rate limiting settings
type RateLimitConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int           `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int           `json:"burst" yaml:"burst" mapstructure:"burst"`
	IdleExpiry        time.Duration `json:"idle_expiry" yaml:"idle_expiry" mapstructure:"idle_expiry"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            constants.DefaultHost,
		Port:            constants.DefaultPort,
		ReadTimeout:     constants.DefaultReadTimeout,
		WriteTimeout:    constants.DefaultWriteTimeout,
		IdleTimeout:     constants.DefaultIdleTimeout,
		ShutdownTimeout: constants.DefaultShutdownTimeout,
		RequestTimeout:  constants.DefaultRequestTimeout,
		MaxRequestSize:  constants.MaxRequestBodySize,
		EnableCORS:      true,
		CacheTTL:        constants.DefaultCacheTTL,
		LookbackDays:    int(constants.DefaultLookback / (24 * time.Hour)),
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: constants.DefaultRateLimit,
			Burst:             constants.DefaultBurstLimit,
			IdleExpiry:        10 * time.Minute,
		},
		Auth: AuthConfig{
			JWTIssuer:     constants.AppName,
			JWTExpiration: 24 * time.Hour,
		},
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	ve := errors.NewValidationErrors()

	if c.Port < 1 || c.Port > 65535 {
		ve.Add("server.port", errors.CodeOutOfRange, "port must be between 1 and 65535", c.Port)
	}
	if c.ReadTimeout <= 0 {
		ve.Add("server.read_timeout", errors.CodeOutOfRange, "read timeout must be positive", c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		ve.Add("server.write_timeout", errors.CodeOutOfRange, "write timeout must be positive", c.WriteTimeout)
	}
	if c.MaxRequestSize <= 0 {
		ve.Add("server.max_request_size", errors.CodeOutOfRange, "max request size must be positive", c.MaxRequestSize)
	}
	if c.LookbackDays <= 0 {
		ve.Add("server.lookback_days", errors.CodeOutOfRange, "lookback days must be positive", c.LookbackDays)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		ve.Add("server.tls_cert_file", errors.CodeMissingField, "TLS needs both a certificate and a key file", nil)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			ve.Add("server.rate_limit.requests_per_minute", errors.CodeOutOfRange,
				"requests per minute must be positive", c.RateLimit.RequestsPerMinute)
		}
		if c.RateLimit.Burst <= 0 {
			ve.Add("server.rate_limit.burst", errors.CodeOutOfRange, "burst must be positive", c.RateLimit.Burst)
		}
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && c.Auth.JWTSecret == "" && !c.Auth.AllowAnonymous {
		ve.Add("server.auth", errors.CodeMissingField, "auth needs API keys, a JWT secret or anonymous access", nil)
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		ve.Add("server.auth.jwt_secret", errors.CodeOutOfRange, "JWT secret must be at least 16 characters", nil)
	}
	for _, key := range c.Auth.APIKeys {
		if len(key) < 8 {
			ve.Add("server.auth.api_keys", errors.CodeOutOfRange, "API keys must be at least 8 characters", nil)
			break
		}
	}

	if ve.HasErrors() {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, "invalid server configuration").WithCause(ve)
	}
	return nil
}

// Address returns the listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
