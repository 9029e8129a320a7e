package sqlstore

import (
	"time"

	"github.com/goliatone/go-tenantquery/audit"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/uptrace/bun"
)

// AuditColumns is embedded by entity models to persist their audit stamp.
// Soft delete is tracked through is_deleted rather than bun's soft_delete tag
// so listing predicates stay explicit.
type AuditColumns struct {
	CreatedBy string     `bun:"created_by,notnull"`
	CreatedIP string     `bun:"created_ip,notnull,default:''"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	IsActive  bool       `bun:"is_active,notnull,default:true"`
	IsDeleted bool       `bun:"is_deleted,notnull,default:false"`
	UpdatedBy *string    `bun:"updated_by"`
	UpdatedIP *string    `bun:"updated_ip"`
	UpdatedAt *time.Time `bun:"updated_at"`
	DeletedBy *string    `bun:"deleted_by"`
	DeletedAt *time.Time `bun:"deleted_at"`
}

func AuditColumnsFrom(stamp core.AuditStamp) AuditColumns {
	return AuditColumns{
		CreatedBy: stamp.CreatedBy,
		CreatedIP: stamp.CreatedIP,
		CreatedAt: stamp.CreatedAt,
		IsActive:  stamp.IsActive,
		IsDeleted: stamp.IsDeleted,
		UpdatedBy: stamp.UpdatedBy,
		UpdatedIP: stamp.UpdatedIP,
		UpdatedAt: stamp.UpdatedAt,
		DeletedBy: stamp.DeletedBy,
		DeletedAt: stamp.DeletedAt,
	}
}

func (a AuditColumns) Stamp() core.AuditStamp {
	return core.AuditStamp{
		CreatedBy: a.CreatedBy,
		CreatedIP: a.CreatedIP,
		CreatedAt: a.CreatedAt,
		IsActive:  a.IsActive,
		IsDeleted: a.IsDeleted,
		UpdatedBy: a.UpdatedBy,
		UpdatedIP: a.UpdatedIP,
		UpdatedAt: a.UpdatedAt,
		DeletedBy: a.DeletedBy,
		DeletedAt: a.DeletedAt,
	}
}

// Extend applies an update or soft delete fragment in place.
func (a *AuditColumns) Extend(fragment audit.Fragment) {
	*a = AuditColumnsFrom(audit.Extend(a.Stamp(), fragment))
}

type revocationRecord struct {
	bun.BaseModel `bun:"table:token_revocations,alias:trv"`

	ID        string     `bun:"id,pk"`
	TokenID   string     `bun:"token_id,notnull"`
	SubjectID string     `bun:"subject_id,notnull"`
	TenantID  string     `bun:"tenant_id,notnull,default:''"`
	Reason    string     `bun:"reason,notnull,default:''"`
	RevokedAt time.Time  `bun:"revoked_at,nullzero,notnull,default:current_timestamp"`
	ExpiresAt *time.Time `bun:"expires_at"`
}
