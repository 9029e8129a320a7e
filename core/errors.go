package core

import (
	"errors"
	"maps"
	"net/http"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind is the closed taxonomy every failure leaving this module maps to.
type ErrorKind string

const (
	KindValidation         ErrorKind = "VALIDATION"
	KindBadRequest         ErrorKind = "BAD_REQUEST"
	KindUnauthorized       ErrorKind = "UNAUTHORIZED"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindConflict           ErrorKind = "CONFLICT"
	KindServiceUnavailable ErrorKind = "SERVICE_UNAVAILABLE"
	KindExternalService    ErrorKind = "EXTERNAL_SERVICE"
	KindInternal           ErrorKind = "INTERNAL"
)

const (
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeNoHeader             = "NO_HEADER"
	CodeInvalidScheme        = "INVALID_SCHEME"
	CodeEmptyToken           = "EMPTY_TOKEN"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeTokenMalformed       = "TOKEN_MALFORMED"
	CodeTokenWrongType       = "TOKEN_WRONG_TYPE"
	CodeTokenNotYetValid     = "TOKEN_NOT_YET_VALID"
	CodeTokenInvalid         = "TOKEN_INVALID"
	CodeTokenRevoked         = "TOKEN_REVOKED"
	CodeForbidden            = "FORBIDDEN"
	CodeTenantMismatch       = "TENANT_MISMATCH"
	CodeTenantContextMissing = "TENANT_CONTEXT_MISSING"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeUniqueViolation      = "UNIQUE_VIOLATION"
	CodeForeignKeyViolation  = "FOREIGN_KEY_VIOLATION"
	CodeNotNullViolation     = "NOT_NULL_VIOLATION"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeExternalService      = "EXTERNAL_SERVICE_ERROR"
	CodeSchemaMismatch       = "SCHEMA_MISMATCH"
	CodeDatastoreError       = "DATASTORE_ERROR"
	CodeInternal             = "INTERNAL_ERROR"
)

const defaultInternalMessage = "An unexpected error occurred"

func (k ErrorKind) Valid() bool {
	switch k {
	case KindValidation, KindBadRequest, KindUnauthorized, KindForbidden, KindNotFound,
		KindConflict, KindServiceUnavailable, KindExternalService, KindInternal:
		return true
	default:
		return false
	}
}

func (k ErrorKind) Status() int {
	switch k {
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (k ErrorKind) DefaultCode() string {
	switch k {
	case KindValidation:
		return CodeValidationFailed
	case KindBadRequest:
		return CodeBadRequest
	case KindUnauthorized:
		return CodeUnauthorized
	case KindForbidden:
		return CodeForbidden
	case KindNotFound:
		return CodeNotFound
	case KindConflict:
		return CodeConflict
	case KindServiceUnavailable:
		return CodeServiceUnavailable
	case KindExternalService:
		return CodeExternalService
	default:
		return CodeInternal
	}
}

func (k ErrorKind) Category() goerrors.Category {
	switch k {
	case KindValidation:
		return goerrors.CategoryValidation
	case KindBadRequest:
		return goerrors.CategoryBadInput
	case KindUnauthorized:
		return goerrors.CategoryAuth
	case KindForbidden:
		return goerrors.CategoryAuthz
	case KindNotFound:
		return goerrors.CategoryNotFound
	case KindConflict:
		return goerrors.CategoryConflict
	case KindServiceUnavailable, KindExternalService:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryInternal
	}
}

// ApplicationError is the normalized failure shape. Code is the stable machine
// readable identifier, Message is for humans.
type ApplicationError struct {
	Kind      ErrorKind
	Status    int
	Code      string
	Message   string
	Details   map[string][]string
	Context   map[string]any
	Cause     error
	Retryable bool
	Attempts  int
}

func NewError(kind ErrorKind, code string, message string) *ApplicationError {
	if !kind.Valid() {
		kind = KindInternal
	}
	code = strings.TrimSpace(code)
	if code == "" {
		code = kind.DefaultCode()
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = defaultMessage(kind)
	}
	return &ApplicationError{
		Kind:      kind,
		Status:    kind.Status(),
		Code:      code,
		Message:   message,
		Retryable: kind == KindServiceUnavailable,
	}
}

func (e *ApplicationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *ApplicationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *ApplicationError) WithCause(cause error) *ApplicationError {
	e.Cause = cause
	return e
}

func (e *ApplicationError) WithStatus(status int) *ApplicationError {
	if status > 0 {
		e.Status = status
	}
	return e
}

func (e *ApplicationError) WithRetryable(retryable bool) *ApplicationError {
	e.Retryable = retryable
	return e
}

func (e *ApplicationError) WithDetail(field string, messages ...string) *ApplicationError {
	if e.Details == nil {
		e.Details = map[string][]string{}
	}
	e.Details[field] = append(e.Details[field], messages...)
	return e
}

func (e *ApplicationError) WithContext(values map[string]any) *ApplicationError {
	if len(values) == 0 {
		return e
	}
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	maps.Copy(e.Context, values)
	return e
}

// Clone returns a deep enough copy to annotate without mutating the original.
func (e *ApplicationError) Clone() *ApplicationError {
	if e == nil {
		return nil
	}
	out := *e
	if e.Details != nil {
		out.Details = make(map[string][]string, len(e.Details))
		for key, values := range e.Details {
			out.Details[key] = append([]string(nil), values...)
		}
	}
	if e.Context != nil {
		out.Context = maps.Clone(e.Context)
	}
	return &out
}

// Rich converts the error into a go-errors envelope.
func (e *ApplicationError) Rich() *goerrors.Error {
	if e == nil {
		return nil
	}
	var rich *goerrors.Error
	if e.Kind == KindValidation && len(e.Details) > 0 {
		rich = goerrors.NewValidation(e.Message, e.fieldErrors()...)
	} else if e.Cause != nil {
		rich = goerrors.Wrap(e.Cause, e.Kind.Category(), e.Message)
	} else {
		rich = goerrors.New(e.Message, e.Kind.Category())
	}
	rich = rich.WithCode(e.Status).WithTextCode(e.Code)
	metadata := map[string]any{
		"kind":      string(e.Kind),
		"retryable": e.Retryable,
	}
	if e.Attempts > 0 {
		metadata["attempts"] = e.Attempts
	}
	if len(e.Details) > 0 {
		metadata["details"] = e.Clone().Details
	}
	for key, value := range RedactSensitiveMap(e.Context) {
		metadata[key] = value
	}
	rich.WithMetadata(metadata)
	return rich
}

func (e *ApplicationError) fieldErrors() []goerrors.FieldError {
	fields := make([]string, 0, len(e.Details))
	for field := range e.Details {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	out := make([]goerrors.FieldError, 0, len(fields))
	for _, field := range fields {
		for _, message := range e.Details[field] {
			out = append(out, goerrors.FieldError{Field: field, Message: message})
		}
	}
	return out
}

// ErrorEnvelope is the wire shape of a failed request.
type ErrorEnvelope struct {
	Success       bool                `json:"success"`
	StatusCode    int                 `json:"statusCode"`
	Message       string              `json:"message"`
	ErrorCode     string              `json:"errorCode"`
	Details       map[string][]string `json:"details,omitempty"`
	Timestamp     string              `json:"timestamp"`
	CorrelationID string              `json:"correlationId,omitempty"`
	Path          string              `json:"path,omitempty"`
}

func (e *ApplicationError) Envelope(at time.Time, correlationID string, path string) ErrorEnvelope {
	if at.IsZero() {
		at = time.Now()
	}
	env := ErrorEnvelope{
		Success:       false,
		StatusCode:    e.Status,
		Message:       e.Message,
		ErrorCode:     e.Code,
		Timestamp:     at.UTC().Format(time.RFC3339Nano),
		CorrelationID: strings.TrimSpace(correlationID),
		Path:          strings.TrimSpace(path),
	}
	if len(e.Details) > 0 {
		env.Details = e.Clone().Details
	}
	return env
}

// AsApplicationError reports whether err is or wraps an *ApplicationError.
func AsApplicationError(err error) (*ApplicationError, bool) {
	var appErr *ApplicationError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

func HasCode(err error, code string) bool {
	appErr, ok := AsApplicationError(err)
	return ok && appErr.Code == code
}

func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := AsApplicationError(err)
	return ok && appErr.Kind == kind
}

func defaultMessage(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return "Validation failed"
	case KindBadRequest:
		return "Bad request"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "Resource not found"
	case KindConflict:
		return "Resource conflict"
	case KindServiceUnavailable:
		return "Service temporarily unavailable"
	case KindExternalService:
		return "Upstream service failure"
	default:
		return defaultInternalMessage
	}
}
