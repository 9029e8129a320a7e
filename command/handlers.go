package command

import (
	"context"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tenantquery/audit"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/tenancy"
)

// EntityDeleter is the mutation side of a collection.
type EntityDeleter[T tenancy.Owned] interface {
	GetByID(ctx context.Context, id string) (T, error)
	SoftDelete(ctx context.Context, id string, scope core.Predicate, fragment audit.Fragment) error
}

type SoftDeleteResult struct {
	Entity    string
	ID        string
	DeletedBy string
	DeletedAt time.Time
}

type SoftDeleteEntityCommand[T tenancy.Owned] struct {
	entity   string
	store    EntityDeleter[T]
	enforcer *tenancy.Enforcer
	audit    *audit.Factory
	logger   core.Logger
}

type Option func(*options)

type options struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
}

func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *options) { o.loggerProvider = provider }
}

func NewSoftDeleteEntityCommand[T tenancy.Owned](
	entity string,
	store EntityDeleter[T],
	enforcer *tenancy.Enforcer,
	auditFactory *audit.Factory,
	opts ...Option,
) *SoftDeleteEntityCommand[T] {
	o := options{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	return &SoftDeleteEntityCommand[T]{
		entity:   strings.TrimSpace(entity),
		store:    store,
		enforcer: enforcer,
		audit:    auditFactory,
		logger:   core.ResolveLogger("tenantquery.command", o.loggerProvider, o.logger),
	}
}

// Execute checks ownership before marking the row deleted. The delete itself
// is scoped to the caller's tenant so a concurrent ownership change still
// cannot leak across tenants.
func (c *SoftDeleteEntityCommand[T]) Execute(ctx context.Context, msg SoftDeleteEntityMessage) error {
	if c == nil || c.store == nil || c.enforcer == nil || c.audit == nil {
		return commandDependencyError("command: soft delete dependencies are required")
	}
	// every subscribed command sees the message, only the owner acts on it
	if !c.Serves(msg.Entity) {
		return nil
	}
	id := strings.TrimSpace(msg.ID)

	entity, err := c.store.GetByID(ctx, id)
	if err != nil {
		return c.fail(msg, err)
	}
	if err := c.enforcer.ValidateOwnership(entity, msg.Auth, msg.Policy); err != nil {
		return c.fail(msg, err)
	}
	scope, err := c.enforcer.TenantPredicate(msg.Auth, msg.Policy)
	if err != nil {
		return c.fail(msg, err)
	}
	fragment := c.audit.OnSoftDelete(msg.Auth, msg.ClientIP)
	if err := c.store.SoftDelete(ctx, id, scope, fragment); err != nil {
		return c.fail(msg, err)
	}

	storeResult(ctx, SoftDeleteResult{
		Entity:    c.entity,
		ID:        id,
		DeletedBy: fragment.By(),
		DeletedAt: fragment.At(),
	})
	return nil
}

// Serves reports whether entity names the collection this command deletes from.
func (c *SoftDeleteEntityCommand[T]) Serves(entity string) bool {
	return c != nil && c.entity != "" && strings.EqualFold(strings.TrimSpace(entity), c.entity)
}

func (c *SoftDeleteEntityCommand[T]) Entity() string {
	if c == nil {
		return ""
	}
	return c.entity
}

func (c *SoftDeleteEntityCommand[T]) fail(msg SoftDeleteEntityMessage, err error) error {
	fields := core.AuthFields(msg.Auth)
	fields["entity"] = c.entity
	fields["id"] = msg.ID
	fields["error"] = err.Error()
	core.LogFields(c.logger, "warn", "soft delete rejected", fields)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
