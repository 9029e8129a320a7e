package filter

import (
	"math"
	"strconv"
	"strings"
)

type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindEnum    Kind = "enum"
)

func (k Kind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindBoolean, KindEnum:
		return true
	default:
		return false
	}
}

// Value is one accepted filter input. Only the accessor matching Kind
// reports ok.
type Value struct {
	kind    Kind
	text    string
	number  float64
	boolean bool
}

func StringValue(s string) Value { return Value{kind: KindString, text: s} }

func NumberValue(n float64) Value { return Value{kind: KindNumber, number: n} }

func BooleanValue(b bool) Value { return Value{kind: KindBoolean, boolean: b} }

func EnumValue(member string) Value { return Value{kind: KindEnum, text: member} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsZero() bool { return v.kind == "" }

func (v Value) Text() (string, bool) {
	if v.kind != KindString && v.kind != KindEnum {
		return "", false
	}
	return v.text, true
}

func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.number, true
}

func (v Value) Bool() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}
	return v.boolean, true
}

// Any returns the value in the shape handed to the datastore. Integral
// numbers are returned as int64.
func (v Value) Any() any {
	switch v.kind {
	case KindString, KindEnum:
		return v.text
	case KindNumber:
		if v.number == math.Trunc(v.number) && math.Abs(v.number) < 1<<53 {
			return int64(v.number)
		}
		return v.number
	case KindBoolean:
		return v.boolean
	default:
		return nil
	}
}

func coerce(field Field, raw string) (Value, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Value{}, false
	}
	switch field.Kind {
	case KindString:
		return StringValue(raw), true
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return Value{}, false
		}
		return NumberValue(n), true
	case KindBoolean:
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return BooleanValue(true), true
		case "false", "0", "no":
			return BooleanValue(false), true
		}
		return Value{}, false
	case KindEnum:
		for _, member := range field.Enum {
			if strings.EqualFold(member, raw) {
				return EnumValue(member), true
			}
		}
		return Value{}, false
	default:
		return Value{}, false
	}
}
