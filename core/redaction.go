package core

import (
	"net/url"
	"strings"
)

const RedactedValue = "[REDACTED]"

// sensitiveKeyParts mark a field as secret when they appear anywhere in its
// lowercased key.
var sensitiveKeyParts = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"jwt",
	"bearer",
	"authorization",
	"cookie",
	"api_key",
	"apikey",
	"access_key",
	"private_key",
	"refresh",
	"credential",
	"signature",
}

// traceKeys stay visible even when they contain a sensitive part, so a
// rejected request can still be tied to its tenant, caller and token.
var traceKeys = map[string]struct{}{
	"tenant_id":      {},
	"subject_id":     {},
	"session_id":     {},
	"token_id":       {},
	"entity":         {},
	"request_id":     {},
	"correlation_id": {},
	"trace_id":       {},
}

// AuthFields is the log view of a caller. Permissions are reduced to a count.
func AuthFields(auth AuthContext) map[string]any {
	fields := map[string]any{
		"subject_id":       auth.SubjectID,
		"tenant_id":        auth.TenantID,
		"role":             auth.Role,
		"permission_count": len(auth.Permissions),
	}
	if auth.SessionID != "" {
		fields["session_id"] = auth.SessionID
	}
	return fields
}

// RedactSensitiveMap returns a copy of metadata safe to log. Values under
// secret looking keys and bearer credentials are replaced. Auth contexts and
// request parameters are flattened first.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactMap(metadata)
}

func redactMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if isSensitiveKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactValue(value)
	}
	return target
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case string:
		if looksLikeBearer(typed) {
			return RedactedValue
		}
		return typed
	case AuthContext:
		return redactMap(AuthFields(typed))
	case *AuthContext:
		if typed == nil {
			return nil
		}
		return redactMap(AuthFields(*typed))
	case url.Values:
		return redactMultiValue(typed)
	case map[string][]string:
		return redactMultiValue(typed)
	case map[string]any:
		return redactMap(typed)
	case map[string]string:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = item
		}
		return redactMap(out)
	case []map[string]any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactMap(typed[i])
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactValue(typed[i])
		}
		return out
	default:
		return value
	}
}

// redactMultiValue flattens single values so listing params read naturally.
func redactMultiValue(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for key, items := range values {
		if len(items) == 1 {
			out[key] = items[0]
			continue
		}
		copied := make([]any, len(items))
		for i, item := range items {
			copied[i] = item
		}
		out[key] = copied
	}
	return redactMap(out)
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := traceKeys[key]; ok {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func looksLikeBearer(value string) bool {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(value), " ")
	return ok && strings.EqualFold(scheme, "bearer") && strings.TrimSpace(rest) != ""
}
