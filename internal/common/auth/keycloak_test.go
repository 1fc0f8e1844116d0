package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntrospectionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realms/autoapply/protocol/openid-connect/token/introspect", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "access_token", r.PostForm.Get("token_type_hint"))
		assert.Equal(t, "api", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestResolveActor(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     models.Actor
		wantCode errors.ErrorCode
	}{
		{
			name:   "regular user",
			status: http.StatusOK,
			body:   `{"active": true, "sub": "user-1", "realm_access": {"roles": ["offline_access"]}}`,
			want:   models.Actor{ID: "user-1", Role: models.RoleUser},
		},
		{
			name:   "admin role",
			status: http.StatusOK,
			body:   `{"active": true, "sub": "ops-1", "realm_access": {"roles": ["platform-admin"]}}`,
			want:   models.Actor{ID: "ops-1", Role: models.RoleAdmin},
		},
		{
			name:     "inactive token",
			status:   http.StatusOK,
			body:     `{"active": false}`,
			wantCode: errors.ErrCodeUnauthenticated,
		},
		{
			name:     "missing subject",
			status:   http.StatusOK,
			body:     `{"active": true}`,
			wantCode: errors.ErrCodeUnauthenticated,
		},
		{
			name:     "keycloak unavailable",
			status:   http.StatusServiceUnavailable,
			body:     `{}`,
			wantCode: errors.ErrCodeUpstreamFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newIntrospectionServer(t, tt.status, tt.body)
			defer srv.Close()

			kc := NewKeycloakClient(srv.URL+"/", "autoapply", "api", "secret", "platform-admin")
			actor, err := kc.ResolveActor(context.Background(), "token")
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, actor)
		})
	}
}

func TestValidateToken_TransientStatusIsRetryable(t *testing.T) {
	srv := newIntrospectionServer(t, http.StatusBadGateway, "bad gateway")
	defer srv.Close()

	_, err := NewKeycloakClient(srv.URL, "autoapply", "api", "secret", "").ValidateToken(context.Background(), "t")
	require.Error(t, err)
	assert.True(t, errors.Normalize(err).Retryable)
}
