package query

import (
	"context"
	"net/url"
	"strings"

	"github.com/goliatone/go-tenantquery/core"
)

type EntityLister[T any] interface {
	Entity() string
	List(ctx context.Context, auth core.AuthContext, raw url.Values) (core.Page[T], error)
}

type ListEntitiesQuery[T any] struct {
	lister EntityLister[T]
}

func NewListEntitiesQuery[T any](lister EntityLister[T]) *ListEntitiesQuery[T] {
	return &ListEntitiesQuery[T]{lister: lister}
}

// Query lists the page described by msg. A message addressed to another entity
// is rejected.
func (q *ListEntitiesQuery[T]) Query(ctx context.Context, msg ListEntitiesMessage) (core.Page[T], error) {
	if q == nil || q.lister == nil {
		return core.Page[T]{}, queryDependencyError("query: entity lister is required")
	}
	if !strings.EqualFold(strings.TrimSpace(msg.Entity), q.lister.Entity()) {
		return core.Page[T]{}, queryValidationError("entity", "entity is not served by this query")
	}
	return q.lister.List(ctx, msg.Auth, msg.Params)
}

// ModelListQuery answers ListMessage[T]. Register it instead of
// ListEntitiesQuery when more than one collection shares a dispatcher.
type ModelListQuery[T any] struct {
	inner *ListEntitiesQuery[T]
}

func NewModelListQuery[T any](lister EntityLister[T]) *ModelListQuery[T] {
	return &ModelListQuery[T]{inner: NewListEntitiesQuery[T](lister)}
}

func (q *ModelListQuery[T]) Query(ctx context.Context, msg ListMessage[T]) (core.Page[T], error) {
	if q == nil {
		return core.Page[T]{}, queryDependencyError("query: entity lister is required")
	}
	return q.inner.Query(ctx, msg.ListEntitiesMessage)
}
