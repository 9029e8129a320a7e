package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-tenantquery/core"
)

const DefaultSearchParam = "search"

var ErrInvalidSchema = errors.New("filter: invalid schema")

// reserved parameters drive pagination and sorting and are never filters.
var reserved = map[string]struct{}{
	"page":   {},
	"limit":  {},
	"sortBy": {},
	"order":  {},
}

func IsReserved(param string) bool {
	_, ok := reserved[param]
	return ok
}

// Field declares one accepted filter parameter. Op defaults to equality;
// range filters use gte or lte on a number field.
type Field struct {
	Kind   Kind
	Column string
	Op     core.Operator
	Enum   []string
}

// RelatedSearch searches columns of a related collection one level deep.
type RelatedSearch struct {
	Relation core.Relation
	Columns  []string
}

type SearchSpec struct {
	Param     string
	Columns   []string
	Related   []RelatedSearch
	MinLength int
}

func (s SearchSpec) enabled() bool {
	return len(s.Columns) > 0 || len(s.Related) > 0
}

func (s SearchSpec) param() string {
	if p := strings.TrimSpace(s.Param); p != "" {
		return p
	}
	return DefaultSearchParam
}

// Schema maps request parameter names to their declared filters.
type Schema struct {
	Fields map[string]Field
	Search SearchSpec
}

func (f Field) op() core.Operator {
	if f.Op == "" {
		return core.OpEqual
	}
	return f.Op
}

// Validate reports declaration mistakes. These are programmer errors and are
// never silently dropped like bad request input.
func (s Schema) Validate() error {
	for param, field := range s.Fields {
		if strings.TrimSpace(param) == "" {
			return fmt.Errorf("%w: empty parameter name", ErrInvalidSchema)
		}
		if IsReserved(param) || param == s.Search.param() {
			return fmt.Errorf("%w: parameter %q is reserved", ErrInvalidSchema, param)
		}
		if !field.Kind.Valid() {
			return fmt.Errorf("%w: parameter %q has unknown kind %q", ErrInvalidSchema, param, field.Kind)
		}
		if strings.TrimSpace(field.Column) == "" {
			return fmt.Errorf("%w: parameter %q has no column", ErrInvalidSchema, param)
		}
		switch field.op() {
		case core.OpEqual:
		case core.OpGte, core.OpLte:
			if field.Kind != KindNumber && field.Kind != KindString {
				return fmt.Errorf("%w: range parameter %q must be number or string", ErrInvalidSchema, param)
			}
		default:
			return fmt.Errorf("%w: parameter %q uses unsupported operator %q", ErrInvalidSchema, param, field.Op)
		}
		if field.Kind == KindEnum && len(field.Enum) == 0 {
			return fmt.Errorf("%w: enum parameter %q has no members", ErrInvalidSchema, param)
		}
	}
	for _, related := range s.Search.Related {
		if strings.TrimSpace(related.Relation.Table) == "" || strings.TrimSpace(related.Relation.ForeignKey) == "" {
			return fmt.Errorf("%w: related search needs table and foreign key", ErrInvalidSchema)
		}
		if len(related.Columns) == 0 {
			return fmt.Errorf("%w: related search on %q has no columns", ErrInvalidSchema, related.Relation.Table)
		}
	}
	return nil
}
