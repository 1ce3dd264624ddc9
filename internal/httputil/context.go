package httputil

import (
	"context"
	"net/http"
)

type userIDKey struct{}

// WithUserID returns the request with the authenticated user id on its
// context. Only the auth middleware calls this, after JWT verification;
// SSE endpoints carry the token as a query parameter instead of a
// header, but the verified identity lands here the same way.
func WithUserID(r *http.Request, userID string) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey{}, userID)
	return r.WithContext(ctx)
}

// GetUserID returns the authenticated user id, or "" when the request
// never passed the auth middleware.
func GetUserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey{}).(string)
	return userID
}
