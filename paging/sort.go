package paging

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/goliatone/go-tenantquery/core"
)

var ErrInvalidSortRules = errors.New("paging: invalid sort rules")

// FieldMap maps API field names to storage columns.
type FieldMap map[string]string

// ToStorage returns the column for field. Unmapped fields pass through.
func (m FieldMap) ToStorage(field string) string {
	if column, ok := m[field]; ok && column != "" {
		return column
	}
	return field
}

// Reverse maps storage columns back to API fields. When two fields share a
// column the lexically smallest field wins.
func (m FieldMap) Reverse() FieldMap {
	out := make(FieldMap, len(m))
	for field, column := range m {
		if existing, ok := out[column]; ok && existing < field {
			continue
		}
		out[column] = field
	}
	return out
}

func MapSortField(field string, fieldMap FieldMap) string {
	return fieldMap.ToStorage(field)
}

type SortRules struct {
	DefaultField     string
	DefaultDirection core.SortDirection
	// AllowList holds the API field names that may be sorted on.
	AllowList []string
	FieldMap  FieldMap
}

func (r SortRules) Validate() error {
	if strings.TrimSpace(r.DefaultField) == "" {
		return fmt.Errorf("%w: default field is required", ErrInvalidSortRules)
	}
	if len(r.AllowList) > 0 && !slices.Contains(r.AllowList, r.DefaultField) {
		return fmt.Errorf("%w: default field %q is not in the allow list", ErrInvalidSortRules, r.DefaultField)
	}
	if r.DefaultDirection != "" {
		if _, ok := core.ParseSortDirection(string(r.DefaultDirection)); !ok {
			return fmt.Errorf("%w: default direction %q", ErrInvalidSortRules, r.DefaultDirection)
		}
	}
	return nil
}

// ParseSort accepts "field" or "field:direction" in rawSortBy, with rawOrder
// as the fallback direction. An unknown direction sorts descending and a
// field outside the allow list is replaced by the default field.
func ParseSort(rawSortBy string, rawOrder string, rules SortRules) core.SortSpec {
	field, inlineDirection, hasInline := strings.Cut(strings.TrimSpace(rawSortBy), ":")
	field = strings.TrimSpace(field)
	if field == "" || !slices.Contains(rules.AllowList, field) {
		field = rules.DefaultField
	}

	rawDirection := strings.TrimSpace(rawOrder)
	if hasInline {
		rawDirection = strings.TrimSpace(inlineDirection)
	}
	direction := rules.defaultDirection()
	if rawDirection != "" {
		parsed, ok := core.ParseSortDirection(rawDirection)
		if !ok {
			parsed = core.SortDesc
		}
		direction = parsed
	}
	return core.SortSpec{Field: MapSortField(field, rules.FieldMap), Direction: direction}
}

func (r SortRules) defaultDirection() core.SortDirection {
	if direction, ok := core.ParseSortDirection(string(r.DefaultDirection)); ok {
		return direction
	}
	return core.SortDesc
}
