package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"regexp"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Mapper classifies err when it belongs to a known error family. It reports
// false for errors it does not recognize.
type Mapper func(err error) (*ApplicationError, bool)

// ClassifyFunc always produces a normalized error for a non nil input.
type ClassifyFunc func(err error) *ApplicationError

const (
	FamilyCredential = "credential"
	FamilyPostgres   = "postgres"
	FamilySQLite     = "sqlite"
	FamilyMySQL      = "mysql"
)

type errorFamily struct {
	name   string
	mapper Mapper
}

type ErrorNormalizer struct {
	families []errorFamily
	cache    *MapperCache
}

type NormalizerOption func(*ErrorNormalizer)

// WithFamily registers a mapper under name. Registering a name twice replaces
// the earlier mapper while keeping its position.
func WithFamily(name string, mapper Mapper) NormalizerOption {
	return func(n *ErrorNormalizer) {
		name = normalizeFamilyName(name)
		if name == "" || mapper == nil {
			return
		}
		for i := range n.families {
			if n.families[i].name == name {
				n.families[i].mapper = mapper
				return
			}
		}
		n.families = append(n.families, errorFamily{name: name, mapper: mapper})
	}
}

func NewErrorNormalizer(opts ...NormalizerOption) *ErrorNormalizer {
	n := &ErrorNormalizer{cache: NewMapperCache()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(n)
	}
	return n
}

// Families returns the registered family names in evaluation order.
func (n *ErrorNormalizer) Families() []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.families))
	for _, family := range n.families {
		out = append(out, family.name)
	}
	return out
}

// Classify normalizes err using every registered family.
func (n *ErrorNormalizer) Classify(err error) *ApplicationError {
	if err == nil {
		return nil
	}
	return n.Mapper(n.Families()...)(err)
}

// Mapper returns a classifier restricted to the named families plus the
// builtin rules. Classifiers are built once per distinct family set.
func (n *ErrorNormalizer) Mapper(names ...string) ClassifyFunc {
	if n == nil {
		return classifyWith(nil)
	}
	key := familySetKey(names)
	if n.cache == nil {
		return n.build(key)
	}
	return n.cache.Load(key, func() ClassifyFunc {
		return n.build(key)
	})
}

func (n *ErrorNormalizer) build(key string) ClassifyFunc {
	wanted := strings.Split(key, ",")
	selected := make([]Mapper, 0, len(n.families))
	for _, family := range n.families {
		if slices.Contains(wanted, family.name) {
			selected = append(selected, family.mapper)
		}
	}
	return classifyWith(selected)
}

func classifyWith(mappers []Mapper) ClassifyFunc {
	return func(err error) *ApplicationError {
		if err == nil {
			return nil
		}
		if appErr, ok := AsApplicationError(err); ok {
			return appErr
		}
		// families run first so driver errors wrapped by repository
		// layers keep their specific classification
		for _, mapper := range mappers {
			if appErr, ok := mapper(err); ok && appErr != nil {
				return appErr
			}
		}
		var retryable *goerrors.RetryableError
		if goerrors.As(err, &retryable) && retryable != nil && retryable.BaseError != nil {
			return fromRetryableError(retryable, mappers, err)
		}
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich != nil {
			return fromRichError(rich, err)
		}
		return classifyGeneric(err)
	}
}

// Repository layers return *goerrors.RetryableError, which does not unwrap.
// A driver error kept in Source still goes through the families.
func fromRetryableError(retryable *goerrors.RetryableError, mappers []Mapper, source error) *ApplicationError {
	base := retryable.BaseError
	if base.Source != nil {
		for _, mapper := range mappers {
			if appErr, ok := mapper(base.Source); ok && appErr != nil {
				return appErr
			}
		}
	}

	switch {
	case base.Category == categoryDatabaseDuplicate || base.TextCode == textCodeDuplicateKey:
		return NewUniqueViolation(duplicateColumns(base.Metadata), source)
	case base.Category == categoryDatabaseNotFound,
		base.Category == categoryDatabaseExpectedCount && metadataInt(base.Metadata, "actual") == 0:
		return NewError(KindNotFound, CodeNotFound, "Resource not found").WithCause(source)
	case base.Category == categoryDatabaseConnection,
		base.Category == categoryDatabaseTimeout,
		base.Category == categoryDatabaseLock,
		base.TextCode == "DATABASE_TIMEOUT",
		base.TextCode == "DATABASE_LOCKED",
		base.TextCode == "TABLE_LOCKED",
		base.TextCode == "DEADLOCK_DETECTED",
		base.TextCode == "SERIALIZATION_FAILURE":
		return NewDatastoreUnavailable(source)
	case base.Category == categoryDatabaseConstraint:
		switch base.TextCode {
		case "FOREIGN_KEY_VIOLATION":
			return NewForeignKeyViolation(metadataString(base.Metadata, "constraint"), source)
		case "NOT_NULL_VIOLATION":
			return NewNotNullViolation(metadataString(base.Metadata, "column"), source)
		}
		return NewError(KindBadRequest, CodeBadRequest, base.Message).WithCause(source)
	}

	if base.Source != nil {
		if generic := classifyGeneric(base.Source); generic.Kind != KindInternal {
			return generic
		}
	}
	out := fromRichError(base, source)
	if out.Kind == KindInternal {
		out.Retryable = retryable.IsRetryable() && base.Category != categoryDatabase
	}
	return out
}

// Categories raised by go-repository-bun error mappers.
const (
	categoryDatabase              = goerrors.Category("database")
	categoryDatabaseNotFound      = goerrors.Category("database_not-found")
	categoryDatabaseConstraint    = goerrors.Category("database_constraint")
	categoryDatabaseDuplicate     = goerrors.Category("database_duplicate")
	categoryDatabaseConnection    = goerrors.Category("database_connection")
	categoryDatabaseTimeout       = goerrors.Category("database_timeout")
	categoryDatabaseLock          = goerrors.Category("database_lock")
	categoryDatabaseExpectedCount = goerrors.Category("database_expected-count")
	textCodeDuplicateKey          = "DUPLICATE_KEY"
)

var keyDetailColumns = regexp.MustCompile(`Key \(([^)]+)\)=`)

// duplicateColumns reads the columns from a postgres style detail, falling
// back to the constraint name.
func duplicateColumns(metadata map[string]any) []string {
	if match := keyDetailColumns.FindStringSubmatch(metadataString(metadata, "detail")); len(match) == 2 {
		return strings.Split(match[1], ",")
	}
	if constraint := metadataString(metadata, "constraint"); constraint != "" {
		return []string{constraint}
	}
	return nil
}

func metadataInt(metadata map[string]any, key string) int64 {
	switch value := metadata[key].(type) {
	case int64:
		return value
	case int:
		return int64(value)
	}
	return -1
}

func metadataString(metadata map[string]any, key string) string {
	value, _ := metadata[key].(string)
	return strings.TrimSpace(value)
}

func fromRichError(rich *goerrors.Error, source error) *ApplicationError {
	kind := kindFromCategory(rich.Category)
	if kind == KindExternalService && (rich.Code == http.StatusServiceUnavailable || rich.TextCode == CodeServiceUnavailable) {
		kind = KindServiceUnavailable
	}
	out := NewError(kind, rich.TextCode, rich.Message).
		WithStatus(rich.Code).
		WithCause(source)
	for _, fieldErr := range rich.AllValidationErrors() {
		out.WithDetail(fieldErr.Field, fieldErr.Message)
	}
	if kind == KindExternalService {
		out.Retryable = out.Status >= http.StatusInternalServerError || out.Status == http.StatusTooManyRequests
	}
	if rich.Category == goerrors.CategoryRateLimit {
		out.Retryable = true
	}
	return out
}

func kindFromCategory(category goerrors.Category) ErrorKind {
	switch category {
	case goerrors.CategoryValidation:
		return KindValidation
	case goerrors.CategoryBadInput:
		return KindBadRequest
	case goerrors.CategoryAuth:
		return KindUnauthorized
	case goerrors.CategoryAuthz:
		return KindForbidden
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryConflict:
		return KindConflict
	case goerrors.CategoryRateLimit:
		return KindServiceUnavailable
	case goerrors.CategoryExternal:
		return KindExternalService
	default:
		return KindInternal
	}
}

type statusCoder interface {
	StatusCode() int
}

type httpStatusCoder interface {
	HTTPStatus() int
}

func classifyGeneric(err error) *ApplicationError {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return NewError(KindNotFound, CodeNotFound, "Resource not found").WithCause(err)
	case errors.Is(err, context.Canceled):
		return NewError(KindServiceUnavailable, CodeServiceUnavailable, "Request was canceled").
			WithCause(err).
			WithRetryable(false)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, driver.ErrBadConn):
		return NewDatastoreUnavailable(err)
	}

	if status, ok := upstreamStatus(err); ok {
		return NewUpstreamError(status, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewDatastoreUnavailable(err)
	}

	if isInputShaped(err) {
		return NewError(KindBadRequest, CodeBadRequest, err.Error()).WithCause(err)
	}

	var runtimeErr runtime.Error
	if errors.As(err, &runtimeErr) {
		return NewError(KindInternal, CodeInternal, defaultInternalMessage).
			WithCause(err).
			WithContext(map[string]any{"error": err.Error(), "programmer_error": true})
	}

	return NewError(KindInternal, CodeInternal, defaultInternalMessage).
		WithCause(err).
		WithContext(map[string]any{"error": err.Error()})
}

func upstreamStatus(err error) (int, bool) {
	var coder statusCoder
	if errors.As(err, &coder) {
		return coder.StatusCode(), true
	}
	var httpCoder httpStatusCoder
	if errors.As(err, &httpCoder) {
		return httpCoder.HTTPStatus(), true
	}
	return 0, false
}

func isInputShaped(err error) bool {
	var numErr *strconv.NumError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var timeErr *time.ParseError
	return errors.As(err, &numErr) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &timeErr)
}

// NewUpstreamError keeps the upstream status when it is an HTTP error status.
func NewUpstreamError(status int, cause error) *ApplicationError {
	out := NewError(KindExternalService, CodeExternalService, "Upstream service failure").WithCause(cause)
	if status >= http.StatusBadRequest && status <= 599 {
		out.Status = status
	}
	out.Retryable = out.Status >= http.StatusInternalServerError || out.Status == http.StatusTooManyRequests
	if cause != nil {
		out.WithContext(map[string]any{"upstream_status": status, "error": cause.Error()})
	}
	return out
}

// NewUniqueViolation builds the conflict raised by a unique constraint over
// columns. Details are keyed by the joined column list.
func NewUniqueViolation(columns []string, cause error) *ApplicationError {
	out := NewError(KindConflict, CodeUniqueViolation, "Resource already exists").WithCause(cause)
	key := strings.Join(trimAll(columns), ", ")
	if key != "" {
		out.WithDetail(key, "Must be unique")
	}
	return out
}

func NewForeignKeyViolation(reference string, cause error) *ApplicationError {
	out := NewError(KindBadRequest, CodeForeignKeyViolation, "Referenced resource does not exist").WithCause(cause)
	if reference = strings.TrimSpace(reference); reference != "" {
		out.WithDetail(reference, "Must reference an existing record")
	}
	return out
}

func NewNotNullViolation(column string, cause error) *ApplicationError {
	out := NewError(KindBadRequest, CodeNotNullViolation, "Required value is missing").WithCause(cause)
	if column = strings.TrimSpace(column); column != "" {
		out.WithDetail(column, "Is required")
	}
	return out
}

func NewDatastoreUnavailable(cause error) *ApplicationError {
	return NewError(KindServiceUnavailable, CodeServiceUnavailable, "Datastore temporarily unavailable").
		WithCause(cause).
		WithRetryable(true)
}

func NewSchemaMismatch(rawCode string, cause error) *ApplicationError {
	out := NewError(KindInternal, CodeSchemaMismatch, defaultInternalMessage).WithCause(cause)
	ctx := map[string]any{"datastore_code": rawCode}
	if cause != nil {
		ctx["error"] = cause.Error()
	}
	return out.WithContext(ctx)
}

// NewUnrecognizedDatastoreError keeps the provider code for diagnostics.
func NewUnrecognizedDatastoreError(rawCode string, cause error) *ApplicationError {
	out := NewError(KindInternal, CodeDatastoreError, defaultInternalMessage).WithCause(cause)
	ctx := map[string]any{"datastore_code": rawCode}
	if cause != nil {
		ctx["error"] = cause.Error()
	}
	return out.WithContext(ctx)
}

// MapperCache memoizes composed classifiers by family set. Entries are never
// invalidated since family registrations are fixed after construction.
type MapperCache struct {
	mu      sync.RWMutex
	entries map[string]ClassifyFunc
}

func NewMapperCache() *MapperCache {
	return &MapperCache{entries: map[string]ClassifyFunc{}}
}

func (c *MapperCache) Load(key string, build func() ClassifyFunc) ClassifyFunc {
	c.mu.RLock()
	fn, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return fn
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if fn, ok := c.entries[key]; ok {
		return fn
	}
	fn = build()
	c.entries[key] = fn
	return fn
}

func (c *MapperCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func familySetKey(names []string) string {
	set := make([]string, 0, len(names))
	for _, name := range names {
		name = normalizeFamilyName(name)
		if name == "" || slices.Contains(set, name) {
			continue
		}
		set = append(set, name)
	}
	sort.Strings(set)
	return strings.Join(set, ",")
}

func normalizeFamilyName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
