package core

import (
	"sort"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// LogFields emits message at level with fields redacted. Loggers that take
// structured fields get them once through WithFields; others get sorted
// key/value args.
func LogFields(logger Logger, level string, message string, fields map[string]any) {
	if logger == nil {
		return
	}
	redacted := RedactSensitiveMap(fields)
	var args []any
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(redacted)
	} else {
		keys := make([]string, 0, len(redacted))
		for key := range redacted {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		args = make([]any, 0, len(keys)*2)
		for _, key := range keys {
			args = append(args, key, redacted[key])
		}
	}
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

// ResolveLogger picks the named logger from provider, then logger, then a nop.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) Logger {
	provider, logger = glog.Resolve(name, provider, logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			logger = glog.Ensure(named)
		}
	}
	return logger
}
