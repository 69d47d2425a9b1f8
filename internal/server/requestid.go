package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID is the correlation header read from requests and set on
// every response.
const HeaderRequestID = "x-request-id"

// ctxKey is the private context key type for request-scoped values.
type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFromContext returns the request id attached by [RequestID], or
// the empty string when the middleware did not run.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// RequestID echoes the incoming x-request-id header, generating a fresh id
// when the header is absent. The id is attached to the request context and
// written to the response before the downstream handler runs, so it is
// present even on streamed responses.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
