package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tenantquery/tenancy"
)

var _ gocmd.Commander[SoftDeleteEntityMessage] = (*SoftDeleteEntityCommand[tenancy.TenantID])(nil)
