package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger prefers the request scoped logger installed by RequestLogger
// so handler lines carry the request id, and tags them with the matched
// route template.
func handlerLogger(r *http.Request, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(r.Context())
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := make([]any, 0, 6+len(attrs))
	pairs = append(pairs, "handler", handlerName, "operation", operation)
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			pairs = append(pairs, "route", tpl)
		}
	}
	return logger.With(append(pairs, attrs...)...)
}
