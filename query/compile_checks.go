package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/listing"
)

var (
	_ gocmd.Querier[ListEntitiesMessage, core.Page[map[string]any]]         = (*ListEntitiesQuery[map[string]any])(nil)
	_ gocmd.Querier[ListMessage[map[string]any], core.Page[map[string]any]] = (*ModelListQuery[map[string]any])(nil)
	_ EntityLister[map[string]any]                                          = (*listing.Lister[map[string]any])(nil)
)
