package tenancy

import (
	"strings"

	"github.com/goliatone/go-tenantquery/core"
)

const (
	DefaultTenantField     = "tenant_id"
	DefaultSoftDeleteField = "is_deleted"
	DefaultExemptRole      = "SUPER_ADMIN"
)

type Config struct {
	TenantField     string
	SoftDeleteField string
	ExemptRole      string
}

func ConfigFromCore(cfg core.TenancyConfig) Config {
	return Config{
		TenantField:     cfg.TenantField,
		SoftDeleteField: cfg.SoftDeleteField,
		ExemptRole:      cfg.ExemptRole,
	}
}

// Policy tunes isolation for a single entity or call.
type Policy struct {
	// ForceIsolation applies the tenant constraint even for the exempt role.
	ForceIsolation bool
	// OverrideTenantID scopes the query to this tenant regardless of role.
	OverrideTenantID string
	// IncludeDeleted drops the soft delete constraint.
	IncludeDeleted bool
}

// Owned is implemented by entities bound to a single tenant.
type Owned interface {
	OwnerTenantID() string
}

type Enforcer struct {
	cfg Config
}

func New(cfg Config) *Enforcer {
	if strings.TrimSpace(cfg.TenantField) == "" {
		cfg.TenantField = DefaultTenantField
	}
	if strings.TrimSpace(cfg.SoftDeleteField) == "" {
		cfg.SoftDeleteField = DefaultSoftDeleteField
	}
	if strings.TrimSpace(cfg.ExemptRole) == "" {
		cfg.ExemptRole = DefaultExemptRole
	}
	return &Enforcer{cfg: cfg}
}

func (e *Enforcer) Config() Config {
	return e.cfg
}

// CanBypassIsolation is true only for the exempt role when the policy neither
// forces isolation nor pins an override tenant.
func (e *Enforcer) CanBypassIsolation(auth core.AuthContext, policy Policy) bool {
	if auth.Role != e.cfg.ExemptRole {
		return false
	}
	if policy.ForceIsolation {
		return false
	}
	return strings.TrimSpace(policy.OverrideTenantID) == ""
}

func (e *Enforcer) TenantPredicate(auth core.AuthContext, policy Policy) (core.Predicate, error) {
	if override := strings.TrimSpace(policy.OverrideTenantID); override != "" {
		return core.Where(core.Eq(e.cfg.TenantField, override)), nil
	}
	if e.CanBypassIsolation(auth, policy) {
		return core.Predicate{}, nil
	}
	tenantID := strings.TrimSpace(auth.TenantID)
	if tenantID == "" {
		return core.Predicate{}, missingTenantError(auth)
	}
	return core.Where(core.Eq(e.cfg.TenantField, tenantID)), nil
}

// BasePredicate is the tenant constraint plus the soft delete exclusion.
func (e *Enforcer) BasePredicate(auth core.AuthContext, policy Policy) (core.Predicate, error) {
	predicate, err := e.TenantPredicate(auth, policy)
	if err != nil {
		return core.Predicate{}, err
	}
	if policy.IncludeDeleted {
		return predicate, nil
	}
	return predicate.And(core.Where(core.Eq(e.cfg.SoftDeleteField, false))), nil
}

func (e *Enforcer) ValidateOwnership(entity Owned, auth core.AuthContext, policy Policy) error {
	if entity == nil {
		return core.NewError(core.KindNotFound, core.CodeNotFound, "")
	}
	if e.CanBypassIsolation(auth, policy) {
		return nil
	}
	expected := strings.TrimSpace(policy.OverrideTenantID)
	if expected == "" {
		expected = strings.TrimSpace(auth.TenantID)
	}
	if expected == "" {
		return missingTenantError(auth)
	}
	if entity.OwnerTenantID() != expected {
		return core.NewError(core.KindForbidden, core.CodeTenantMismatch, "Resource belongs to another tenant").
			WithContext(map[string]any{
				"tenant_id":       expected,
				"owner_tenant_id": entity.OwnerTenantID(),
				"subject_id":      auth.SubjectID,
			})
	}
	return nil
}

func missingTenantError(auth core.AuthContext) *core.ApplicationError {
	return core.NewError(core.KindForbidden, core.CodeTenantContextMissing, "Tenant context is required").
		WithContext(map[string]any{"subject_id": auth.SubjectID, "role": auth.Role})
}

// TenantID adapts a plain tenant id into an Owned value.
type TenantID string

func (t TenantID) OwnerTenantID() string { return string(t) }
