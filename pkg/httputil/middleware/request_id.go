package middleware

import (
	"context"
	"net/http"

	"github.com/edgeflare/pgrest/pkg/httputil"
	"github.com/google/uuid"
)

// RequestID stores a request ID in the context and echoes it in the
// X-Request-Id response header. An ID already in the context or sent by the
// client is kept; otherwise a new one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
		if !ok || reqID == "" {
			reqID = r.Header.Get(httputil.RequestIDHeader)
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		w.Header().Set(httputil.RequestIDHeader, reqID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
