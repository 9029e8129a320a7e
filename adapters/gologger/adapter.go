package gologger

import (
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tenantquery/core"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// Named returns the logger a component registered under name should use.
func Named(name string, provider glog.LoggerProvider, logger glog.Logger) glog.Logger {
	return core.ResolveLogger(name, provider, logger)
}

// WithRequest attaches redacted request identity fields when logger supports
// structured fields. Credentials never reach the sink.
func WithRequest(logger glog.Logger, auth core.AuthContext, fields map[string]any) glog.Logger {
	logger = glog.Ensure(logger)
	fieldsLogger, ok := logger.(glog.FieldsLogger)
	if !ok {
		return logger
	}
	merged := core.AuthFields(auth)
	for key, value := range fields {
		merged[key] = value
	}
	return fieldsLogger.WithFields(core.RedactSensitiveMap(merged))
}
