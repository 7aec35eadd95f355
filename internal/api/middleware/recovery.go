package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/imgjobs/internal/api/response"
)

// Recovery turns a handler panic into a 500 envelope. Session stream
// requests get no body: once upgraded, the connection no longer speaks HTTP.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			principal, _ := GetPrincipal(r)
			slog.Error("handler panicked",
				"panic", rec,
				"request_id", chimw.GetReqID(r.Context()),
				"principal", principal,
				"route", r.Method+" "+r.URL.Path,
				"stack", string(debug.Stack()),
			)

			if isStreamUpgrade(r) {
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}

func isStreamUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
