// Package ginadapter exposes the credential check, listing and soft delete
// flows as gin handlers that answer with the standard error envelope.
package ginadapter

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-tenantquery/core"
)

const (
	ContextKeyAuth           = "tenantquery.auth"
	DefaultCorrelationHeader = "X-Request-ID"
)

type Authenticator interface {
	Authenticate(ctx context.Context, header string) (core.AuthContext, error)
}

type EntityLister[T any] interface {
	List(ctx context.Context, auth core.AuthContext, raw url.Values) (core.Page[T], error)
}

type Option func(*options)

type options struct {
	normalizer        *core.ErrorNormalizer
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	now               func() time.Time
	correlationHeader string
}

func WithNormalizer(normalizer *core.ErrorNormalizer) Option {
	return func(o *options) {
		if normalizer != nil {
			o.normalizer = normalizer
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *options) { o.loggerProvider = provider }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithCorrelationHeader(header string) Option {
	return func(o *options) {
		if header = strings.TrimSpace(header); header != "" {
			o.correlationHeader = header
		}
	}
}

func resolveOptions(opts []Option) options {
	o := options{
		normalizer:        core.NewErrorNormalizer(),
		now:               time.Now,
		correlationHeader: DefaultCorrelationHeader,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	o.logger = core.ResolveLogger("tenantquery.http", o.loggerProvider, o.logger)
	return o
}

// RequireAuth verifies the Authorization header and stores the resulting
// AuthContext on both the gin context and the request context.
func RequireAuth(authenticator Authenticator, opts ...Option) gin.HandlerFunc {
	o := resolveOptions(opts)
	return func(c *gin.Context) {
		if authenticator == nil {
			o.writeError(c, core.NewError(core.KindInternal, core.CodeInternal, "").
				WithContext(map[string]any{"error": "authenticator is not configured"}))
			return
		}
		auth, err := authenticator.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			o.writeError(c, err)
			return
		}
		c.Set(ContextKeyAuth, auth)
		c.Request = c.Request.WithContext(core.WithAuthContext(c.Request.Context(), auth))
		c.Next()
	}
}

// AuthFrom returns the AuthContext stored by RequireAuth.
func AuthFrom(c *gin.Context) (core.AuthContext, bool) {
	if c == nil {
		return core.AuthContext{}, false
	}
	if value, ok := c.Get(ContextKeyAuth); ok {
		if auth, ok := value.(core.AuthContext); ok {
			return auth.Clone(), true
		}
	}
	if c.Request != nil {
		return core.AuthFromContext(c.Request.Context())
	}
	return core.AuthContext{}, false
}

// WriteError normalizes err and aborts with the error envelope.
func WriteError(c *gin.Context, err error, opts ...Option) {
	resolveOptions(opts).writeError(c, err)
}

func (o options) writeError(c *gin.Context, err error) {
	appErr := o.normalizer.Classify(err)
	if appErr == nil {
		appErr = core.NewError(core.KindInternal, core.CodeInternal, "")
	}
	path := ""
	if c.Request != nil && c.Request.URL != nil {
		path = c.Request.URL.Path
	}
	correlationID := c.GetHeader(o.correlationHeader)
	envelope := appErr.Envelope(o.now(), correlationID, path)

	level := "warn"
	if appErr.Status >= http.StatusInternalServerError {
		level = "error"
	}
	fields := map[string]any{
		"status":         appErr.Status,
		"code":           appErr.Code,
		"path":           path,
		"correlation_id": correlationID,
	}
	for key, value := range appErr.Context {
		fields[key] = value
	}
	core.LogFields(o.logger, level, "request failed", fields)

	c.AbortWithStatusJSON(envelope.StatusCode, envelope)
}
