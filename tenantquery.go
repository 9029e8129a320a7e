package tenantquery

import (
	"context"
	"fmt"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tenantquery/audit"
	"github.com/goliatone/go-tenantquery/auth"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/listing"
	"github.com/goliatone/go-tenantquery/paging"
	sqlstore "github.com/goliatone/go-tenantquery/store/sql"
	"github.com/goliatone/go-tenantquery/tenancy"
)

type Config = core.Config

type AuthContext = core.AuthContext

type Option func(*builder)

type builder struct {
	runtimeConfig     Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient any
	repositoryFactory *sqlstore.RepositoryFactory
	revocationCache   repositorycache.CacheService
	revocations       auth.RevocationChecker
	subjectResolver   auth.SubjectResolver
	normalizerOptions []core.NormalizerOption
	now               func() time.Time
}

func WithLogger(logger core.Logger) Option {
	return func(b *builder) { b.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *builder) { b.loggerProvider = provider }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *builder) { b.configProvider = provider }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *builder) { b.optionsResolver = resolver }
}

// WithPersistenceClient accepts a *bun.DB or anything exposing DB() *bun.DB,
// such as a go-persistence-bun client.
func WithPersistenceClient(client any) Option {
	return func(b *builder) { b.persistenceClient = client }
}

func WithRepositoryFactory(factory *sqlstore.RepositoryFactory) Option {
	return func(b *builder) { b.repositoryFactory = factory }
}

// WithRevocationCache fronts the revocation store with cacheService. Only
// used when the runtime builds its own repository factory.
func WithRevocationCache(cacheService repositorycache.CacheService) Option {
	return func(b *builder) { b.revocationCache = cacheService }
}

// WithRevocationChecker overrides the checker derived from persistence.
func WithRevocationChecker(checker auth.RevocationChecker) Option {
	return func(b *builder) { b.revocations = checker }
}

func WithSubjectResolver(resolver auth.SubjectResolver) Option {
	return func(b *builder) { b.subjectResolver = resolver }
}

// WithNormalizerOptions registers extra error families after the builtin ones.
func WithNormalizerOptions(opts ...core.NormalizerOption) Option {
	return func(b *builder) { b.normalizerOptions = append(b.normalizerOptions, opts...) }
}

func WithClock(now func() time.Time) Option {
	return func(b *builder) {
		if now != nil {
			b.now = now
		}
	}
}

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Setup resolves configuration and wires the credential verifier, tenant
// enforcer, audit factory and error normalizer shared by every entity.
// cfg is the runtime layer: non zero values override loaded configuration.
func Setup(cfg Config, opts ...Option) (*Runtime, error) {
	b := builder{runtimeConfig: cfg, now: time.Now}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&b)
	}

	logger := core.ResolveLogger("tenantquery", b.loggerProvider, b.logger)

	resolved, err := core.ResolveConfig(context.Background(), b.configProvider, b.optionsResolver, b.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("tenantquery: resolve config: %w", err)
	}

	normalizerOpts := append([]core.NormalizerOption{
		core.WithFamily(core.FamilyCredential, auth.CredentialErrorMapper),
	}, sqlstore.Families()...)
	normalizer := core.NewErrorNormalizer(append(normalizerOpts, b.normalizerOptions...)...)

	repositories := b.repositoryFactory
	if repositories == nil && b.persistenceClient != nil {
		factoryOpts := []sqlstore.FactoryOption{sqlstore.WithFactoryNormalizer(normalizer)}
		if b.revocationCache != nil {
			factoryOpts = append(factoryOpts, sqlstore.WithRevocationCache(b.revocationCache))
		}
		repositories, err = sqlstore.NewRepositoryFactory(b.persistenceClient, factoryOpts...)
		if err != nil {
			return nil, fmt.Errorf("tenantquery: repository factory: %w", err)
		}
	}

	revocations := b.revocations
	if revocations == nil && repositories != nil {
		revocations = repositories.Revocations()
	}

	verifierOpts := []auth.Option{
		auth.WithClock(b.now),
		auth.WithNormalizer(normalizer),
		auth.WithLoggerProvider(b.loggerProvider),
		auth.WithLogger(b.logger),
	}
	if revocations != nil {
		verifierOpts = append(verifierOpts, auth.WithRevocationChecker(revocations))
	}
	if b.subjectResolver != nil {
		verifierOpts = append(verifierOpts, auth.WithSubjectResolver(b.subjectResolver))
	}
	verifier, err := auth.NewVerifier(auth.ConfigFromCore(resolved.Tokens), verifierOpts...)
	if err != nil {
		return nil, fmt.Errorf("tenantquery: credential verifier: %w", err)
	}

	rt := &Runtime{
		config:         resolved,
		logger:         logger,
		loggerProvider: b.loggerProvider,
		normalizer:     normalizer,
		verifier:       verifier,
		enforcer:       tenancy.New(tenancy.ConfigFromCore(resolved.Tenancy)),
		audit:          audit.NewFactory(audit.WithClock(b.now)),
		repositories:   repositories,
	}
	logger.Info("tenantquery runtime ready",
		"service_name", resolved.ServiceName,
		"error_families", normalizer.Families(),
		"persistence", repositories != nil,
		"revocation_checks", revocations != nil,
	)
	return rt, nil
}

type Runtime struct {
	config         Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	normalizer     *core.ErrorNormalizer
	verifier       *auth.Verifier
	enforcer       *tenancy.Enforcer
	audit          *audit.Factory
	repositories   *sqlstore.RepositoryFactory
}

func (r *Runtime) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.config
}

func (r *Runtime) Logger() core.Logger {
	if r == nil {
		return nil
	}
	return r.logger
}

func (r *Runtime) LoggerProvider() core.LoggerProvider {
	if r == nil {
		return nil
	}
	return r.loggerProvider
}

func (r *Runtime) Normalizer() *core.ErrorNormalizer {
	if r == nil {
		return nil
	}
	return r.normalizer
}

func (r *Runtime) Verifier() *auth.Verifier {
	if r == nil {
		return nil
	}
	return r.verifier
}

func (r *Runtime) Enforcer() *tenancy.Enforcer {
	if r == nil {
		return nil
	}
	return r.enforcer
}

func (r *Runtime) Audit() *audit.Factory {
	if r == nil {
		return nil
	}
	return r.audit
}

// Repositories is nil unless a persistence client or factory was supplied.
func (r *Runtime) Repositories() *sqlstore.RepositoryFactory {
	if r == nil {
		return nil
	}
	return r.repositories
}

func (r *Runtime) Pagination() paging.Defaults {
	return paging.DefaultsFromCore(r.Config().Pagination)
}

func (r *Runtime) RetryOptions() core.RetryOptions {
	return r.Config().RetryOptions(r.Normalizer())
}

// ListingOptions carries the runtime logger, normalizer and retry budget into
// a lister.
func (r *Runtime) ListingOptions() []listing.Option {
	return []listing.Option{
		listing.WithLogger(r.Logger()),
		listing.WithLoggerProvider(r.LoggerProvider()),
		listing.WithNormalizer(r.Normalizer()),
		listing.WithRetry(r.RetryOptions()),
	}
}

// Authenticate verifies a raw Authorization header value.
func (r *Runtime) Authenticate(ctx context.Context, header string) (AuthContext, error) {
	if r == nil || r.verifier == nil {
		return AuthContext{}, fmt.Errorf("tenantquery: runtime is not configured")
	}
	return r.verifier.Authenticate(ctx, header)
}

// NewLister builds a lister for cfg, filling the enforcer and pagination
// defaults from the runtime when cfg leaves them unset.
func NewLister[T any](rt *Runtime, cfg listing.Config[T], opts ...listing.Option) (*listing.Lister[T], error) {
	if rt == nil {
		return nil, fmt.Errorf("tenantquery: runtime is required")
	}
	if cfg.Enforcer == nil {
		cfg.Enforcer = rt.Enforcer()
	}
	if cfg.Pagination == (paging.Defaults{}) {
		cfg.Pagination = rt.Pagination()
	}
	return listing.New(cfg, append(rt.ListingOptions(), opts...)...)
}
