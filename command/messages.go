package command

import (
	"strings"

	"github.com/goliatone/go-tenantquery/core"
	"github.com/goliatone/go-tenantquery/tenancy"
)

const TypeSoftDeleteEntity = "tenantquery.command.entity.soft_delete"

type SoftDeleteEntityMessage struct {
	Entity   string
	ID       string
	Auth     core.AuthContext
	ClientIP string
	Policy   tenancy.Policy
}

func (SoftDeleteEntityMessage) Type() string { return TypeSoftDeleteEntity }

func (m SoftDeleteEntityMessage) Validate() error {
	if strings.TrimSpace(m.Entity) == "" {
		return commandValidationError("entity", "entity is required")
	}
	if strings.TrimSpace(m.ID) == "" {
		return commandValidationError("id", "id is required")
	}
	return nil
}
