package core

import (
	"context"
	"slices"
	"strings"
	"time"
)

// AuthContext holds the verified identity facts derived from a request
// credential. It is request scoped and never persisted.
type AuthContext struct {
	SubjectID   string
	TenantID    string
	Role        string
	Permissions []string
	SessionID   string
}

// IsCrossTenant reports whether the context carries no tenant binding.
func (a AuthContext) IsCrossTenant() bool {
	return strings.TrimSpace(a.TenantID) == ""
}

func (a AuthContext) HasPermission(permission string) bool {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return false
	}
	return slices.Contains(a.Permissions, permission)
}

// Clone returns a copy that shares no slices with the receiver.
func (a AuthContext) Clone() AuthContext {
	out := a
	out.Permissions = append([]string(nil), a.Permissions...)
	return out
}

type authContextKey struct{}

func WithAuthContext(ctx context.Context, auth AuthContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, authContextKey{}, auth.Clone())
}

func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	if ctx == nil {
		return AuthContext{}, false
	}
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	if !ok {
		return AuthContext{}, false
	}
	return auth.Clone(), true
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection returns the direction for raw input and false when the
// value is not a recognized direction.
func ParseSortDirection(raw string) (SortDirection, bool) {
	switch SortDirection(strings.ToLower(strings.TrimSpace(raw))) {
	case SortAsc:
		return SortAsc, true
	case SortDesc:
		return SortDesc, true
	default:
		return "", false
	}
}

type PaginationSpec struct {
	Page  int
	Limit int
	Skip  int
}

type SortSpec struct {
	Field     string
	Direction SortDirection
}

type QueryOptions struct {
	Predicate Predicate
	Skip      int
	Take      int
	OrderBy   []SortSpec
	Includes  []string
}

type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

type Page[T any] struct {
	Items      []T            `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// AuditStamp is persisted with a row at creation time and later extended by
// update and soft delete fragments.
type AuditStamp struct {
	CreatedBy string
	CreatedIP string
	CreatedAt time.Time
	IsActive  bool
	IsDeleted bool
	UpdatedBy *string
	UpdatedIP *string
	UpdatedAt *time.Time
	DeletedBy *string
	DeletedAt *time.Time
}

// EntityReader is the read side of a datastore collection.
type EntityReader[T any] interface {
	Find(ctx context.Context, opts QueryOptions) ([]T, error)
	Count(ctx context.Context, predicate Predicate) (int, error)
}
