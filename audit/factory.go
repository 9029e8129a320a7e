package audit

import (
	"strings"
	"time"

	"github.com/goliatone/go-tenantquery/core"
)

// SystemActor is recorded when a mutation runs without an authenticated
// subject, such as seeding or maintenance jobs.
const SystemActor = "system"

const (
	ColumnCreatedBy = "created_by"
	ColumnCreatedIP = "created_ip"
	ColumnCreatedAt = "created_at"
	ColumnIsActive  = "is_active"
	ColumnIsDeleted = "is_deleted"
	ColumnUpdatedBy = "updated_by"
	ColumnUpdatedIP = "updated_ip"
	ColumnUpdatedAt = "updated_at"
	ColumnDeletedBy = "deleted_by"
	ColumnDeletedAt = "deleted_at"
)

type Option func(*Factory)

func WithClock(now func() time.Time) Option {
	return func(f *Factory) {
		if now != nil {
			f.now = now
		}
	}
}

type Factory struct {
	now func() time.Time
}

func NewFactory(opts ...Option) *Factory {
	f := &Factory{now: time.Now}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(f)
	}
	return f
}

func (f *Factory) OnCreate(auth core.AuthContext, clientIP string) core.AuditStamp {
	return core.AuditStamp{
		CreatedBy: actor(auth),
		CreatedIP: strings.TrimSpace(clientIP),
		CreatedAt: f.now().UTC(),
		IsActive:  true,
		IsDeleted: false,
	}
}

func (f *Factory) OnUpdate(auth core.AuthContext, clientIP string) Fragment {
	return Fragment{
		kind:      fragmentUpdate,
		by:        actor(auth),
		ip:        strings.TrimSpace(clientIP),
		at:        f.now().UTC(),
		isActive:  true,
		isDeleted: false,
	}
}

func (f *Factory) OnSoftDelete(auth core.AuthContext, clientIP string) Fragment {
	return Fragment{
		kind:      fragmentSoftDelete,
		by:        actor(auth),
		ip:        strings.TrimSpace(clientIP),
		at:        f.now().UTC(),
		isActive:  false,
		isDeleted: true,
	}
}

func actor(auth core.AuthContext) string {
	if subject := strings.TrimSpace(auth.SubjectID); subject != "" {
		return subject
	}
	return SystemActor
}
