package core

import (
	"fmt"
	"strings"
	"time"
)

type TokenConfig struct {
	Issuer     string        `koanf:"issuer" mapstructure:"issuer"`
	Audience   string        `koanf:"audience" mapstructure:"audience"`
	Secret     string        `koanf:"secret" mapstructure:"secret"`
	AccessTTL  time.Duration `koanf:"access_ttl" mapstructure:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl" mapstructure:"refresh_ttl"`
	Leeway     time.Duration `koanf:"leeway" mapstructure:"leeway"`
}

type TenancyConfig struct {
	TenantField     string `koanf:"tenant_field" mapstructure:"tenant_field"`
	SoftDeleteField string `koanf:"soft_delete_field" mapstructure:"soft_delete_field"`
	ExemptRole      string `koanf:"exempt_role" mapstructure:"exempt_role"`
}

type PaginationConfig struct {
	DefaultPage  int `koanf:"default_page" mapstructure:"default_page"`
	DefaultLimit int `koanf:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `koanf:"max_limit" mapstructure:"max_limit"`
}

type RetryConfig struct {
	Retries       int           `koanf:"retries" mapstructure:"retries"`
	InitialDelay  time.Duration `koanf:"initial_delay" mapstructure:"initial_delay"`
	BackoffFactor float64       `koanf:"backoff_factor" mapstructure:"backoff_factor"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Tokens      TokenConfig      `koanf:"tokens" mapstructure:"tokens"`
	Tenancy     TenancyConfig    `koanf:"tenancy" mapstructure:"tenancy"`
	Pagination  PaginationConfig `koanf:"pagination" mapstructure:"pagination"`
	Retry       RetryConfig      `koanf:"retry" mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "tenantquery",
		Tokens: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Tenancy: TenancyConfig{
			TenantField:     "tenant_id",
			SoftDeleteField: "is_deleted",
			ExemptRole:      "SUPER_ADMIN",
		},
		Pagination: PaginationConfig{
			DefaultPage:  1,
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Retry: RetryConfig{
			Retries:       2,
			InitialDelay:  100 * time.Millisecond,
			BackoffFactor: 2,
		},
	}
}

// Validate checks structural consistency. Token secrets are checked when the
// verifier is built so configs can be layered before secrets are known.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Tenancy.TenantField) == "" {
		return fmt.Errorf("core: tenancy.tenant_field is required")
	}
	if strings.TrimSpace(c.Tenancy.SoftDeleteField) == "" {
		return fmt.Errorf("core: tenancy.soft_delete_field is required")
	}
	if c.Pagination.MaxLimit < 1 {
		return fmt.Errorf("core: pagination.max_limit must be >= 1")
	}
	if c.Pagination.DefaultLimit < 1 || c.Pagination.DefaultLimit > c.Pagination.MaxLimit {
		return fmt.Errorf("core: pagination.default_limit must be within [1, max_limit]")
	}
	if c.Pagination.DefaultPage < 1 {
		return fmt.Errorf("core: pagination.default_page must be >= 1")
	}
	if c.Tokens.AccessTTL < 0 || c.Tokens.RefreshTTL < 0 || c.Tokens.Leeway < 0 {
		return fmt.Errorf("core: token durations must not be negative")
	}
	if c.Retry.Retries < 0 {
		return fmt.Errorf("core: retry.retries must be >= 0")
	}
	if c.Retry.BackoffFactor < 0 {
		return fmt.Errorf("core: retry.backoff_factor must be >= 0")
	}
	return nil
}

func (c Config) RetryOptions(normalizer *ErrorNormalizer) RetryOptions {
	return RetryOptions{
		Retries:       c.Retry.Retries,
		InitialDelay:  c.Retry.InitialDelay,
		BackoffFactor: c.Retry.BackoffFactor,
		Normalizer:    normalizer,
	}
}
