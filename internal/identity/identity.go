// Package identity resolves the caller of a request from the bearer token
// issued by the hosted auth provider.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// Identity is the resolved caller principal for one request.
type Identity struct {
	UserID   string   `json:"userId"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	Plan     string   `json:"plan,omitempty"`
	Features []string `json:"features,omitempty"`
}

// HasPlan reports whether the caller is subscribed to plan.
func (i *Identity) HasPlan(plan string) bool {
	return i != nil && plan != "" && strings.EqualFold(i.Plan, plan)
}

// HasFeature reports whether the caller's plan grants feature.
func (i *Identity) HasFeature(feature string) bool {
	if i == nil {
		return false
	}
	for _, f := range i.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Provider resolves the current caller. A nil Identity with a nil error means
// the request is anonymous.
type Provider interface {
	CurrentUser(ctx context.Context) (*Identity, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (*Identity, error)

// CurrentUser calls f(ctx).
func (f ProviderFunc) CurrentUser(ctx context.Context) (*Identity, error) {
	return f(ctx)
}

type contextKey int

const tokenContextKey contextKey = iota

// SessionCookie is the cookie the web client stores its session token in.
const SessionCookie = "__session"

// WithToken stores a raw bearer token in ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// TokenFromContext returns the bearer token stored by WithToken, if any.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// Middleware copies the request's bearer token (Authorization header first,
// then the session cookie) into the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := extractToken(r); token != "" {
			r = r.WithContext(WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
