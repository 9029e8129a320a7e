package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StaticRawConfigLoader serves a fixed raw config map.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded config < runtime overrides.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ResolveConfig loads config through provider and layers runtime on top.
func ResolveConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	tokens := map[string]any{}
	setString(tokens, "issuer", cfg.Tokens.Issuer, includeZero)
	setString(tokens, "audience", cfg.Tokens.Audience, includeZero)
	setString(tokens, "secret", cfg.Tokens.Secret, includeZero)
	if includeZero || cfg.Tokens.AccessTTL > 0 {
		tokens["access_ttl"] = cfg.Tokens.AccessTTL
	}
	if includeZero || cfg.Tokens.RefreshTTL > 0 {
		tokens["refresh_ttl"] = cfg.Tokens.RefreshTTL
	}
	if includeZero || cfg.Tokens.Leeway > 0 {
		tokens["leeway"] = cfg.Tokens.Leeway
	}
	if len(tokens) > 0 {
		layer["tokens"] = tokens
	}

	tenancy := map[string]any{}
	setString(tenancy, "tenant_field", cfg.Tenancy.TenantField, includeZero)
	setString(tenancy, "soft_delete_field", cfg.Tenancy.SoftDeleteField, includeZero)
	setString(tenancy, "exempt_role", cfg.Tenancy.ExemptRole, includeZero)
	if len(tenancy) > 0 {
		layer["tenancy"] = tenancy
	}

	pagination := map[string]any{}
	if includeZero || cfg.Pagination.DefaultPage > 0 {
		pagination["default_page"] = cfg.Pagination.DefaultPage
	}
	if includeZero || cfg.Pagination.DefaultLimit > 0 {
		pagination["default_limit"] = cfg.Pagination.DefaultLimit
	}
	if includeZero || cfg.Pagination.MaxLimit > 0 {
		pagination["max_limit"] = cfg.Pagination.MaxLimit
	}
	if len(pagination) > 0 {
		layer["pagination"] = pagination
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.Retries > 0 {
		retry["retries"] = cfg.Retry.Retries
	}
	if includeZero || cfg.Retry.InitialDelay > 0 {
		retry["initial_delay"] = cfg.Retry.InitialDelay
	}
	if includeZero || cfg.Retry.BackoffFactor > 0 {
		retry["backoff_factor"] = cfg.Retry.BackoffFactor
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}
	return layer
}

func setString(target map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		target[key] = value
	}
}
