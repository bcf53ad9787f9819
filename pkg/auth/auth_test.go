package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RejectsAnonymous(t *testing.T) {
	called := false
	h := Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestMiddleware_StoresIdentity(t *testing.T) {
	var gotPrincipal, gotCredential string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotPrincipal = Principal(r.Context())
		gotCredential = Credential(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set(PrincipalHeader, "alice")
	req.Header.Set("Authorization", "Bearer token-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "alice", gotPrincipal)
	assert.Equal(t, "Bearer token-1", gotCredential)
}

func TestForwardingTransport(t *testing.T) {
	var gotAuth, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.Header.Get(PrincipalHeader)
	}))
	defer srv.Close()

	client := &http.Client{Transport: ForwardingTransport{}}
	ctx := WithCredential(WithPrincipal(context.Background(), "bob"), "Bearer abc")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, "bob", gotUser)
}
