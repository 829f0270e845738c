package api

import (
	"log"
	"net/http"

	"github.com/strefethen/yamaha-remote-go/internal/apperrors"
)

// Handler is a route handler that reports failures by returning an error,
// which is rendered with WriteError.
type Handler func(w http.ResponseWriter, r *http.Request) error

func (handler Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := handler(w, r)
	if err == nil {
		return
	}
	WriteError(w, r, err)
}

// RecovererMiddleware converts panics into 500 responses. The panic is logged
// with the request ID so it can be matched to the command history.
func RecovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Printf("panic recovered (request %s, %s %s): %v", GetRequestID(r), r.Method, r.URL.Path, recovered)
				WriteError(w, r, apperrors.NewInternalError("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
