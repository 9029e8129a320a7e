package filter

import (
	"sort"

	"github.com/goliatone/go-tenantquery/core"
)

// PredicateBuilder produces the entity specific part of a listing predicate.
// The base predicate is passed for inspection; the result is ANDed with it.
type PredicateBuilder func(dto DTO, base core.Predicate) core.Predicate

// Builder composes predicate fragments from a DTO. Helpers ignore parameters
// that are absent or declared with a different kind.
type Builder struct {
	schema    Schema
	dto       DTO
	predicate core.Predicate
}

func NewBuilder(schema Schema, dto DTO) *Builder {
	return &Builder{schema: schema, dto: dto}
}

func (b *Builder) Equality(params ...string) *Builder {
	for _, param := range params {
		field, value, ok := b.lookup(param)
		if !ok || field.op() != core.OpEqual {
			continue
		}
		b.add(core.Eq(field.Column, value.Any()))
	}
	return b
}

func (b *Builder) Range(params ...string) *Builder {
	for _, param := range params {
		field, value, ok := b.lookup(param)
		if !ok {
			continue
		}
		switch field.op() {
		case core.OpGte:
			b.add(core.Gte(field.Column, value.Any()))
		case core.OpLte:
			b.add(core.Lte(field.Column, value.Any()))
		}
	}
	return b
}

func (b *Builder) Enum(params ...string) *Builder {
	for _, param := range params {
		field, value, ok := b.lookup(param)
		if !ok || field.Kind != KindEnum {
			continue
		}
		b.add(core.Eq(field.Column, value.Any()))
	}
	return b
}

func (b *Builder) Boolean(params ...string) *Builder {
	for _, param := range params {
		field, value, ok := b.lookup(param)
		if !ok || field.Kind != KindBoolean {
			continue
		}
		b.add(core.Eq(field.Column, value.Any()))
	}
	return b
}

// TextSearch adds one OR group with a case insensitive contains condition per
// searchable column, direct and related.
func (b *Builder) TextSearch() *Builder {
	if b.dto.Search == "" {
		return b
	}
	b.predicate = b.predicate.Or(SearchConditions(b.schema.Search, b.dto.Search)...)
	return b
}

func (b *Builder) Where(conditions ...core.Condition) *Builder {
	b.add(conditions...)
	return b
}

func (b *Builder) Predicate() core.Predicate {
	return core.MergePredicates(b.predicate)
}

func (b *Builder) lookup(param string) (Field, Value, bool) {
	field, ok := b.schema.Fields[param]
	if !ok {
		return Field{}, Value{}, false
	}
	value, ok := b.dto.Get(param)
	if !ok || value.Kind() != field.Kind {
		return Field{}, Value{}, false
	}
	return field, value, true
}

func (b *Builder) add(conditions ...core.Condition) {
	b.predicate = b.predicate.And(core.Where(conditions...))
}

func SearchConditions(spec SearchSpec, term string) []core.Condition {
	if term == "" {
		return nil
	}
	out := make([]core.Condition, 0, len(spec.Columns))
	for _, column := range spec.Columns {
		out = append(out, core.Contains(column, term))
	}
	for _, related := range spec.Related {
		for _, column := range related.Columns {
			out = append(out, core.RelatedContains(related.Relation, column, term))
		}
	}
	return out
}

// DefaultPredicate applies every declared field by its kind plus the text
// search. Fields are applied in parameter order so predicates are stable.
func DefaultPredicate(schema Schema) PredicateBuilder {
	params := make([]string, 0, len(schema.Fields))
	for param := range schema.Fields {
		params = append(params, param)
	}
	sort.Strings(params)
	return func(dto DTO, _ core.Predicate) core.Predicate {
		b := NewBuilder(schema, dto)
		for _, param := range params {
			if schema.Fields[param].op() == core.OpEqual {
				b.Equality(param)
				continue
			}
			b.Range(param)
		}
		return b.TextSearch().Predicate()
	}
}

// ToPredicate ANDs the entity predicate built from dto onto base.
func ToPredicate(dto DTO, base core.Predicate, build PredicateBuilder) core.Predicate {
	if build == nil {
		return core.MergePredicates(base)
	}
	return core.MergePredicates(base, build(dto, base))
}
