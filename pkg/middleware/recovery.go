package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/utafrali/StorefrontGo/pkg/logger"
)

// panicEnvelope mirrors the error envelope the storefront backend answers
// with, so every JSON error a consumer of the ops surface sees has one shape.
type panicEnvelope struct {
	Error panicDetail `json:"error"`
}

type panicDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Recovery turns a panic in an ops handler into a 500 response. The panic is
// logged through the request-scoped logger installed by RequestLogger, so the
// entry carries the request's correlation ID; base is the fallback when no
// request scope exists.
func Recovery(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				l := logger.FromContext(r.Context())
				if l == slog.Default() {
					l = base
				}
				l.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				envelope := panicEnvelope{Error: panicDetail{
					Code:    "INTERNAL_ERROR",
					Message: "an internal error occurred",
				}}
				if err := json.NewEncoder(w).Encode(envelope); err != nil {
					l.Error("failed to encode response", slog.String("error", err.Error()))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
