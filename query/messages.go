package query

import (
	"net/url"
	"reflect"
	"strings"

	"github.com/goliatone/go-tenantquery/core"
)

const TypeListEntities = "tenantquery.query.entities.list"

// ListEntitiesMessage asks for one page of an entity collection on behalf of
// an already verified caller.
type ListEntitiesMessage struct {
	Entity string
	Auth   core.AuthContext
	Params url.Values
}

func (ListEntitiesMessage) Type() string { return TypeListEntities }

func (m ListEntitiesMessage) Validate() error {
	if strings.TrimSpace(m.Entity) == "" {
		return queryValidationError("entity", "entity is required")
	}
	if strings.TrimSpace(m.Auth.SubjectID) == "" {
		return queryValidationError("auth.subject_id", "authenticated subject is required")
	}
	return nil
}

// ListMessage routes a list request to the query registered for model type T.
// go-command keys query handlers by message type, so each model type needs its
// own message for several collections to share one dispatcher.
type ListMessage[T any] struct {
	ListEntitiesMessage
}

func NewListMessage[T any](entity string, auth core.AuthContext, params url.Values) ListMessage[T] {
	return ListMessage[T]{ListEntitiesMessage: ListEntitiesMessage{Entity: entity, Auth: auth, Params: params}}
}

func (ListMessage[T]) Type() string { return ListMessageType[T]() }

// ListMessageType is TypeListEntities suffixed with the model type name.
func ListMessageType[T any]() string {
	return TypeListEntities + "." + reflect.TypeFor[T]().String()
}
