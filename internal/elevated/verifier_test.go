package elevated

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrenchbay/wrenchbay/internal/auth"
)

func TestLocalVerifier(t *testing.T) {
	tokens := newTestTokens()
	v := NewLocalVerifier(tokens)

	token, err := tokens.Issue("sa-1", auth.RoleSuperAdmin)
	require.NoError(t, err)

	ok, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), "garbage")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalVerifier_CancelledContext(t *testing.T) {
	tokens := newTestTokens()
	token, err := tokens.Issue("sa-1", auth.RoleSuperAdmin)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := NewLocalVerifier(tokens).Verify(ctx, token)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestRemoteVerifier_AgainstVerifyEndpoint(t *testing.T) {
	tokens := newTestTokens()
	h := NewHandler(nil, tokens)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleVerify))
	defer srv.Close()

	v := NewRemoteVerifier(srv.URL, srv.Client())

	token, err := tokens.Issue("sa-1", auth.RoleSuperUser)
	require.NoError(t, err)

	ok, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), "forged")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoteVerifier_SendsBearer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"verified":true}`))
	}))
	defer srv.Close()

	_, err := NewRemoteVerifier(srv.URL, nil).Verify(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", got)
}

func TestRemoteVerifier_ErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"verified":true}`},
		{"unauthorized", http.StatusUnauthorized, ``},
		{"missing field", http.StatusOK, `{}`},
		{"malformed body", http.StatusOK, `{"verified":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ok, err := NewRemoteVerifier(srv.URL, srv.Client()).Verify(context.Background(), "tok")
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRemoteVerifier_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ok, err := NewRemoteVerifier(url, &http.Client{Timeout: time.Second}).Verify(context.Background(), "tok")
	assert.Error(t, err)
	assert.False(t, ok)
}
