package tenantquery

import (
	"fmt"
	"strings"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-tenantquery/adapters/gocommand"
	"github.com/goliatone/go-tenantquery/command"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/listing"
	"github.com/goliatone/go-tenantquery/query"
	"github.com/goliatone/go-tenantquery/tenancy"
)

// EntityStore is what a collection must offer to be listed and soft deleted.
// *sqlstore.Collection satisfies it.
type EntityStore[T tenancy.Owned] interface {
	core.EntityReader[T]
	command.EntityDeleter[T]
}

// Facade groups the read and delete surfaces of one entity collection.
type Facade[T tenancy.Owned] struct {
	entity     string
	lister     *listing.Lister[T]
	list       *query.ModelListQuery[T]
	softDelete *command.SoftDeleteEntityCommand[T]
}

// NewFacade wires a lister, list query and soft delete command over store.
// cfg.Store is replaced by store.
func NewFacade[T tenancy.Owned](rt *Runtime, store EntityStore[T], cfg listing.Config[T]) (*Facade[T], error) {
	if rt == nil {
		return nil, fmt.Errorf("tenantquery: runtime is required")
	}
	if store == nil {
		return nil, fmt.Errorf("tenantquery: entity store is required")
	}
	cfg.Store = store
	lister, err := NewLister(rt, cfg)
	if err != nil {
		return nil, err
	}
	entity := strings.TrimSpace(cfg.Entity)
	return &Facade[T]{
		entity: entity,
		lister: lister,
		list:   query.NewModelListQuery[T](lister),
		softDelete: command.NewSoftDeleteEntityCommand[T](
			entity,
			store,
			rt.Enforcer(),
			rt.Audit(),
			command.WithLogger(rt.Logger()),
			command.WithLoggerProvider(rt.LoggerProvider()),
		),
	}, nil
}

func (f *Facade[T]) Entity() string {
	if f == nil {
		return ""
	}
	return f.entity
}

func (f *Facade[T]) Lister() *listing.Lister[T] {
	if f == nil {
		return nil
	}
	return f.lister
}

// ListQuery answers query.ListMessage[T] for this facade's entity.
func (f *Facade[T]) ListQuery() *query.ModelListQuery[T] {
	if f == nil {
		return nil
	}
	return f.list
}

func (f *Facade[T]) SoftDeleteCommand() *command.SoftDeleteEntityCommand[T] {
	if f == nil {
		return nil
	}
	return f.softDelete
}

// Register subscribes both handlers on the go-command dispatcher. Callers
// still run adapter.Initialize once every facade is registered.
//
// Facades share one dispatcher: the list query is keyed by query.ListMessage[T]
// and the delete command ignores messages for other entities. Registering two
// facades for the same model type or the same entity name fails.
func (f *Facade[T]) Register(adapter *gocommand.RegistryAdapter) ([]commanddispatcher.Subscription, error) {
	if f == nil {
		return nil, fmt.Errorf("tenantquery: facade is nil")
	}
	if adapter == nil {
		return nil, fmt.Errorf("tenantquery: registry adapter is required")
	}
	queryKey := "query:" + query.ListMessageType[T]()
	commandKey := "command:" + strings.ToLower(f.entity)
	if err := adapter.Claim(queryKey); err != nil {
		return nil, err
	}
	if err := adapter.Claim(commandKey); err != nil {
		adapter.Release(queryKey)
		return nil, err
	}
	release := func() {
		adapter.Release(queryKey)
		adapter.Release(commandKey)
	}

	listSub, err := gocommand.RegisterAndSubscribeQuery[query.ListMessage[T], core.Page[T]](adapter, f.list)
	if err != nil {
		release()
		return nil, err
	}
	deleteSub, err := gocommand.RegisterAndSubscribe[command.SoftDeleteEntityMessage](adapter, f.softDelete)
	if err != nil {
		listSub.Unsubscribe()
		release()
		return nil, err
	}
	return []commanddispatcher.Subscription{listSub, deleteSub}, nil
}
