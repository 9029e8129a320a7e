package core

import "strings"

type Operator string

const (
	OpEqual     Operator = "eq"
	OpNotEqual  Operator = "neq"
	OpGte       Operator = "gte"
	OpLte       Operator = "lte"
	OpIn        Operator = "in"
	OpContains  Operator = "contains"
	OpIsNull    Operator = "is_null"
	OpIsNotNull Operator = "is_not_null"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEqual, OpNotEqual, OpGte, OpLte, OpIn, OpContains, OpIsNull, OpIsNotNull:
		return true
	default:
		return false
	}
}

// Relation describes a one level related collection. A condition bound to a
// relation matches when at least one non deleted related row satisfies it.
type Relation struct {
	Table            string
	ForeignKey       string
	LocalKey         string
	SoftDeleteColumn string
}

type Condition struct {
	Column   string
	Op       Operator
	Value    any
	Relation *Relation
}

func Eq(column string, value any) Condition {
	return Condition{Column: column, Op: OpEqual, Value: value}
}

func Gte(column string, value any) Condition {
	return Condition{Column: column, Op: OpGte, Value: value}
}

func Lte(column string, value any) Condition {
	return Condition{Column: column, Op: OpLte, Value: value}
}

func In(column string, values ...any) Condition {
	return Condition{Column: column, Op: OpIn, Value: append([]any(nil), values...)}
}

// Contains is a case-insensitive substring match.
func Contains(column string, text string) Condition {
	return Condition{Column: column, Op: OpContains, Value: text}
}

// RelatedContains matches parents with a related, non deleted row whose
// column contains text.
func RelatedContains(rel Relation, column string, text string) Condition {
	cond := Contains(column, text)
	relCopy := rel
	cond.Relation = &relCopy
	return cond
}

// Predicate is a structured filter: every entry of Conditions must hold and,
// for every group in AnyOf, at least one of its conditions must hold.
type Predicate struct {
	Conditions []Condition
	AnyOf      [][]Condition
}

func Where(conditions ...Condition) Predicate {
	return Predicate{Conditions: append([]Condition(nil), conditions...)}
}

func (p Predicate) IsEmpty() bool {
	return len(p.Conditions) == 0 && len(p.AnyOf) == 0
}

// And returns a new predicate requiring p and every other predicate.
func (p Predicate) And(others ...Predicate) Predicate {
	return MergePredicates(append([]Predicate{p}, others...)...)
}

// Or returns a new predicate adding a group that matches when any of the
// given conditions hold. Empty groups are ignored.
func (p Predicate) Or(conditions ...Condition) Predicate {
	out := p.clone()
	if len(conditions) == 0 {
		return out
	}
	out.AnyOf = append(out.AnyOf, append([]Condition(nil), conditions...))
	return out
}

// MergePredicates AND-combines predicates. A later predicate can add
// constraints on a column already constrained by an earlier one but can never
// replace them.
func MergePredicates(predicates ...Predicate) Predicate {
	out := Predicate{}
	for _, predicate := range predicates {
		out.Conditions = append(out.Conditions, predicate.Conditions...)
		for _, group := range predicate.AnyOf {
			if len(group) == 0 {
				continue
			}
			out.AnyOf = append(out.AnyOf, append([]Condition(nil), group...))
		}
	}
	return out
}

// Lookup returns the first top level condition for column using op.
func (p Predicate) Lookup(column string, op Operator) (Condition, bool) {
	column = strings.TrimSpace(column)
	for _, condition := range p.Conditions {
		if condition.Column == column && condition.Op == op && condition.Relation == nil {
			return condition, true
		}
	}
	return Condition{}, false
}

// Equalities flattens top level equality conditions into a column map. When a
// column is constrained more than once the first value is reported.
func (p Predicate) Equalities() map[string]any {
	out := map[string]any{}
	for _, condition := range p.Conditions {
		if condition.Op != OpEqual || condition.Relation != nil {
			continue
		}
		if _, exists := out[condition.Column]; exists {
			continue
		}
		out[condition.Column] = condition.Value
	}
	return out
}

func (p Predicate) clone() Predicate {
	out := Predicate{Conditions: append([]Condition(nil), p.Conditions...)}
	for _, group := range p.AnyOf {
		out.AnyOf = append(out.AnyOf, append([]Condition(nil), group...))
	}
	return out
}
