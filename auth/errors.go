package auth

import (
	"errors"

	"github.com/goliatone/go-tenantquery/core"
	"github.com/golang-jwt/jwt/v5"
)

const (
	SubKindExpired     = "EXPIRED"
	SubKindNotYetValid = "NOT_YET_VALID"
	SubKindMalformed   = "MALFORMED"
	SubKindWrongType   = "WRONG_TYPE"
	SubKindInvalid     = "INVALID"
	SubKindRevoked     = "REVOKED"
)

// CredentialErrorMapper classifies errors raised by the token library. It is
// registered with the normalizer under core.FamilyCredential.
func CredentialErrorMapper(err error) (*core.ApplicationError, bool) {
	if err == nil {
		return nil, false
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return credentialError(core.CodeTokenExpired, SubKindExpired, "Token has expired", err), true
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return credentialError(core.CodeTokenNotYetValid, SubKindNotYetValid, "Token is not valid yet", err), true
	case errors.Is(err, jwt.ErrTokenMalformed):
		return credentialError(core.CodeTokenMalformed, SubKindMalformed, "Token is malformed", err), true
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidSubject),
		errors.Is(err, jwt.ErrTokenInvalidId),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenInvalidClaims),
		errors.Is(err, jwt.ErrInvalidKey),
		errors.Is(err, jwt.ErrInvalidKeyType),
		errors.Is(err, jwt.ErrHashUnavailable):
		return credentialError(core.CodeTokenInvalid, SubKindInvalid, "Token is invalid", err), true
	default:
		return nil, false
	}
}

func credentialError(code string, subKind string, message string, cause error) *core.ApplicationError {
	out := core.NewError(core.KindUnauthorized, code, message).
		WithContext(map[string]any{"credential_error": subKind})
	if cause != nil {
		out.WithCause(cause)
	}
	return out
}

func wrongTypeError(expected TokenType, got TokenType) *core.ApplicationError {
	return credentialError(core.CodeTokenWrongType, SubKindWrongType, "Token type is not accepted here", nil).
		WithContext(map[string]any{"expected_type": string(expected), "token_type": string(got)})
}

func revokedError(tokenID string) *core.ApplicationError {
	return credentialError(core.CodeTokenRevoked, SubKindRevoked, "Token has been revoked", nil).
		WithContext(map[string]any{"token_id": tokenID})
}

func invalidClaimsError(message string) *core.ApplicationError {
	return credentialError(core.CodeTokenInvalid, SubKindInvalid, message, nil)
}
