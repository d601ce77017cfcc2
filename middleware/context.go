package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

// RequestIDKey is the context key for a request ID set outside chi's RequestID middleware
const RequestIDKey contextKey = "request_id"

// GetRequestIDFromContext retrieves the request ID from context, preferring
// the one assigned by chi's RequestID middleware.
func GetRequestIDFromContext(ctx context.Context) string {
	if id := chimiddleware.GetReqID(ctx); id != "" {
		return id
	}
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
