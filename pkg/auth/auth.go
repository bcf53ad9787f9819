// Package auth carries the caller identity established upstream (gateway or
// token validator) through request contexts, and forwards the caller's
// bearer credential on outbound calls.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// PrincipalHeader is set by the component that validated the credential.
const PrincipalHeader = "X-Authenticated-User"

type ctxKey int

const (
	principalKey ctxKey = iota
	credentialKey
)

func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// Principal returns the authenticated user name, or "" when absent.
func Principal(ctx context.Context) string {
	p, _ := ctx.Value(principalKey).(string)
	return p
}

// WithCredential stores the raw Authorization header value.
func WithCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialKey, credential)
}

func Credential(ctx context.Context) string {
	c, _ := ctx.Value(credentialKey).(string)
	return c
}

// Middleware rejects requests without an authenticated principal and stores
// the principal and the opaque credential on the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := strings.TrimSpace(r.Header.Get(PrincipalHeader))
		if principal == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "unauthorized",
				"message": "missing user authentication",
			})
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		if c := r.Header.Get("Authorization"); c != "" {
			ctx = WithCredential(ctx, c)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ForwardingTransport copies the caller's credential and principal from the
// request context onto outbound requests.
type ForwardingTransport struct {
	Base http.RoundTripper
}

func (t ForwardingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	credential := Credential(req.Context())
	principal := Principal(req.Context())
	if credential == "" && principal == "" {
		return base.RoundTrip(req)
	}

	out := req.Clone(req.Context())
	if credential != "" && out.Header.Get("Authorization") == "" {
		out.Header.Set("Authorization", credential)
	}
	if principal != "" && out.Header.Get(PrincipalHeader) == "" {
		out.Header.Set(PrincipalHeader, principal)
	}
	return base.RoundTrip(out)
}
