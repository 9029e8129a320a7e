package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-tenantquery/core"
	"github.com/uptrace/bun"
)

// likeEscape is portable across postgres, sqlite and mysql string literals.
const likeEscape = "!"

var ErrUnsupportedPredicate = errors.New("sqlstore: unsupported predicate")

type compiler struct {
	// parent prefixes top level columns, "?TableAlias" for selects and empty
	// for statements where the table is not aliased.
	parent   string
	args     []any
	relation int
}

// CompilePredicate renders predicate as a bun WHERE fragment. Columns are
// passed as bun.Ident so values never reach the SQL text.
func CompilePredicate(predicate core.Predicate, parent string) (string, []any, error) {
	c := &compiler{parent: parent}
	parts := make([]string, 0, len(predicate.Conditions)+len(predicate.AnyOf))
	for _, condition := range predicate.Conditions {
		part, err := c.condition(condition)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, part)
	}
	for _, group := range predicate.AnyOf {
		if len(group) == 0 {
			continue
		}
		alternatives := make([]string, 0, len(group))
		for _, condition := range group {
			part, err := c.condition(condition)
			if err != nil {
				return "", nil, err
			}
			alternatives = append(alternatives, part)
		}
		parts = append(parts, "("+strings.Join(alternatives, " OR ")+")")
	}
	if len(parts) == 0 {
		return "", nil, nil
	}
	return strings.Join(parts, " AND "), c.args, nil
}

func (c *compiler) condition(condition core.Condition) (string, error) {
	if strings.TrimSpace(condition.Column) == "" {
		return "", fmt.Errorf("%w: condition without column", ErrUnsupportedPredicate)
	}
	if condition.Relation != nil {
		return c.related(condition)
	}
	return c.comparison(c.column(c.parent, condition.Column), condition)
}

func (c *compiler) column(prefix string, column string) string {
	c.args = append(c.args, bun.Ident(column))
	if prefix == "" {
		return "?"
	}
	return prefix + ".?"
}

func (c *compiler) comparison(column string, condition core.Condition) (string, error) {
	switch condition.Op {
	case core.OpEqual:
		if condition.Value == nil {
			return column + " IS NULL", nil
		}
		c.args = append(c.args, condition.Value)
		return column + " = ?", nil
	case core.OpNotEqual:
		if condition.Value == nil {
			return column + " IS NOT NULL", nil
		}
		c.args = append(c.args, condition.Value)
		return column + " <> ?", nil
	case core.OpGte:
		c.args = append(c.args, condition.Value)
		return column + " >= ?", nil
	case core.OpLte:
		c.args = append(c.args, condition.Value)
		return column + " <= ?", nil
	case core.OpIn:
		values, _ := condition.Value.([]any)
		if len(values) == 0 {
			// drop the column ident, the constant has no placeholder
			c.args = c.args[:len(c.args)-1]
			return "1 = 0", nil
		}
		c.args = append(c.args, bun.In(values))
		return column + " IN (?)", nil
	case core.OpContains:
		text, ok := condition.Value.(string)
		if !ok {
			return "", fmt.Errorf("%w: contains on %q needs a string", ErrUnsupportedPredicate, condition.Column)
		}
		c.args = append(c.args, "%"+escapeLike(strings.ToLower(text))+"%")
		return "LOWER(" + column + ") LIKE ? ESCAPE '" + likeEscape + "'", nil
	case core.OpIsNull:
		return column + " IS NULL", nil
	case core.OpIsNotNull:
		return column + " IS NOT NULL", nil
	default:
		return "", fmt.Errorf("%w: operator %q", ErrUnsupportedPredicate, condition.Op)
	}
}

// related renders an EXISTS subquery against one level of related rows,
// skipping soft deleted ones.
func (c *compiler) related(condition core.Condition) (string, error) {
	if c.parent == "" {
		return "", fmt.Errorf("%w: related conditions need an aliased parent", ErrUnsupportedPredicate)
	}
	rel := *condition.Relation
	if strings.TrimSpace(rel.Table) == "" || strings.TrimSpace(rel.ForeignKey) == "" {
		return "", fmt.Errorf("%w: relation needs table and foreign key", ErrUnsupportedPredicate)
	}
	localKey := rel.LocalKey
	if strings.TrimSpace(localKey) == "" {
		localKey = "id"
	}
	c.relation++
	alias := fmt.Sprintf("rel%d", c.relation)

	c.args = append(c.args, bun.Ident(rel.Table))
	var b strings.Builder
	b.WriteString("EXISTS (SELECT 1 FROM ? AS " + alias + " WHERE ")
	b.WriteString(c.column(alias, rel.ForeignKey))
	b.WriteString(" = ")
	b.WriteString(c.column(c.parent, localKey))
	if rel.SoftDeleteColumn != "" {
		b.WriteString(" AND ")
		b.WriteString(c.column(alias, rel.SoftDeleteColumn))
		b.WriteString(" = ?")
		c.args = append(c.args, false)
	}
	inner := condition
	inner.Relation = nil
	part, err := c.comparison(c.column(alias, inner.Column), inner)
	if err != nil {
		return "", err
	}
	b.WriteString(" AND ")
	b.WriteString(part)
	b.WriteString(")")
	return b.String(), nil
}

func escapeLike(text string) string {
	replacer := strings.NewReplacer(
		likeEscape, likeEscape+likeEscape,
		"%", likeEscape+"%",
		"_", likeEscape+"_",
	)
	return replacer.Replace(text)
}
