package auth

import (
	"strings"

	"github.com/goliatone/go-tenantquery/core"
)

const bearerScheme = "bearer"

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", core.NewError(core.KindUnauthorized, core.CodeNoHeader, "Authorization header is missing")
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(strings.TrimSpace(scheme), bearerScheme) {
		return "", core.NewError(core.KindUnauthorized, core.CodeInvalidScheme, "Authorization scheme must be Bearer")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", core.NewError(core.KindUnauthorized, core.CodeEmptyToken, "Bearer token is empty")
	}
	return token, nil
}
