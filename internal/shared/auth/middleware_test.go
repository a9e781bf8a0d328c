package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imis-health/casetracker/internal/shared/config"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestMiddleware(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, JWTSecret: testSecret, Issuer: "casetracker"}

	var seen *User
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "casetracker",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		InstitutionID:   "0b3d2c52-2d1c-4a5e-9d1e-6c1f8d7f4e11",
		InstitutionType: "LABORATORY",
		Roles:           []string{"ROLE_LABORATORY"},
	}, testSecret)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad signature", "Bearer " + signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "casetracker"}}, "other"), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere"}}, testSecret), http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, "user-1", seen.ID.String())
	assert.Equal(t, "LABORATORY", seen.InstitutionType)
	assert.True(t, seen.HasRole("ROLE_LABORATORY"))
}

func TestRequireInstitutionTypes(t *testing.T) {
	handler := RequireInstitutionTypes("LABORATORY")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &User{InstitutionType: "DOCTORS_OFFICE"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/", nil)
	req = req.WithContext(WithUser(req.Context(), &User{InstitutionType: "LABORATORY"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
