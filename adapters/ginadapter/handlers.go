package ginadapter

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-tenantquery/command"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/tenancy"
)

type SoftDeleter interface {
	Execute(ctx context.Context, msg command.SoftDeleteEntityMessage) error
}

// ListHandler serves one page of entities for the authenticated caller using
// the raw query string as filter, sort and pagination input.
func ListHandler[T any](lister EntityLister[T], opts ...Option) gin.HandlerFunc {
	o := resolveOptions(opts)
	return func(c *gin.Context) {
		auth, ok := AuthFrom(c)
		if !ok {
			o.writeError(c, core.NewError(core.KindUnauthorized, core.CodeUnauthorized, ""))
			return
		}
		page, err := lister.List(c.Request.Context(), auth, c.Request.URL.Query())
		if err != nil {
			o.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// SoftDeleteHandler marks the entity named by the :id path parameter deleted.
func SoftDeleteHandler(entity string, deleter SoftDeleter, policy tenancy.Policy, opts ...Option) gin.HandlerFunc {
	o := resolveOptions(opts)
	return func(c *gin.Context) {
		auth, ok := AuthFrom(c)
		if !ok {
			o.writeError(c, core.NewError(core.KindUnauthorized, core.CodeUnauthorized, ""))
			return
		}
		msg := command.SoftDeleteEntityMessage{
			Entity:   entity,
			ID:       c.Param("id"),
			Auth:     auth,
			ClientIP: c.ClientIP(),
			Policy:   policy,
		}
		if err := msg.Validate(); err != nil {
			o.writeError(c, err)
			return
		}
		if err := deleter.Execute(c.Request.Context(), msg); err != nil {
			o.writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
