package filter

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// DTO is the validated bag of filter inputs for one request.
type DTO struct {
	Values map[string]Value
	Search string
}

func (d DTO) Get(param string) (Value, bool) {
	v, ok := d.Values[param]
	return v, ok
}

func (d DTO) Len() int {
	return len(d.Values)
}

// Convert coerces raw parameters against schema. Unknown parameters and
// values that fail coercion are dropped.
func Convert(raw url.Values, schema Schema) DTO {
	dto := DTO{Values: map[string]Value{}}
	for param, field := range schema.Fields {
		if IsReserved(param) {
			continue
		}
		value, ok := coerce(field, firstNonEmpty(raw[param]))
		if !ok {
			continue
		}
		dto.Values[param] = value
	}
	if schema.Search.enabled() {
		term := strings.TrimSpace(raw.Get(schema.Search.param()))
		if term != "" && utf8.RuneCountInString(term) >= schema.Search.MinLength {
			dto.Search = term
		}
	}
	return dto
}

func firstNonEmpty(values []string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
