package audit

import (
	"time"

	"github.com/goliatone/go-tenantquery/core"
)

type fragmentKind int

const (
	fragmentUpdate fragmentKind = iota + 1
	fragmentSoftDelete
)

// Fragment is the set of audit columns touched by an update or soft delete.
type Fragment struct {
	kind      fragmentKind
	by        string
	ip        string
	at        time.Time
	isActive  bool
	isDeleted bool
}

func (f Fragment) IsSoftDelete() bool { return f.kind == fragmentSoftDelete }

func (f Fragment) At() time.Time { return f.at }

func (f Fragment) By() string { return f.by }

// Values returns the columns to persist for this fragment. Creation columns
// are never part of it.
func (f Fragment) Values() map[string]any {
	values := map[string]any{
		ColumnUpdatedBy: f.by,
		ColumnUpdatedIP: f.ip,
		ColumnUpdatedAt: f.at,
	}
	if f.kind == fragmentSoftDelete {
		values[ColumnIsActive] = f.isActive
		values[ColumnIsDeleted] = f.isDeleted
		values[ColumnDeletedBy] = f.by
		values[ColumnDeletedAt] = f.at
	}
	return values
}

// Extend applies fragment on top of existing. Creation fields and an earlier
// deletion are kept as they are.
func Extend(existing core.AuditStamp, fragment Fragment) core.AuditStamp {
	out := existing
	if fragment.kind == 0 {
		return out
	}
	by, ip, at := fragment.by, fragment.ip, fragment.at
	out.UpdatedBy = &by
	out.UpdatedIP = &ip
	out.UpdatedAt = &at
	if fragment.kind != fragmentSoftDelete || existing.IsDeleted {
		return out
	}
	out.IsActive = false
	out.IsDeleted = true
	out.DeletedBy = &by
	out.DeletedAt = &at
	return out
}
