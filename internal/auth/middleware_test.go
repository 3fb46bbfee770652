package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"searchsync/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	issuer   = "https://id.example.com/realms/site"
	clientID = "searchsync"
)

func signer(t *testing.T) (*rsa.PrivateKey, *auth.Authenticator) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key, auth.NewStaticAuthenticator(issuer, clientID, "search-admin", &key.PublicKey)
}

func token(t *testing.T, key *rsa.PrivateKey, mutate func(*auth.KeycloakClaims)) string {
	t.Helper()
	claims := auth.KeycloakClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "3f1c",
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		PreferredUsername: "ops",
	}
	claims.RealmAccess.Roles = []string{"search-admin"}
	if mutate != nil {
		mutate(&claims)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func call(a *auth.Authenticator, header string) (*httptest.ResponseRecorder, *auth.Operator) {
	var seen *auth.Operator
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, err := auth.GetOperator(r.Context())
		if err == nil {
			seen = &op
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/indices/site", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddleware_AcceptsAdminToken(t *testing.T) {
	key, a := signer(t)

	rec, op := call(a, "Bearer "+token(t, key, nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, op)
	assert.Equal(t, "3f1c", op.ID)
	assert.Equal(t, "ops", op.Username)
}

func TestMiddleware_Rejections(t *testing.T) {
	key, a := signer(t)
	other, _ := rsa.GenerateKey(rand.Reader, 2048)

	cases := map[string]struct {
		header string
		status int
	}{
		"missing header": {"", http.StatusUnauthorized},
		"wrong scheme":   {"Basic b3BzOnNlY3JldA==", http.StatusUnauthorized},
		"foreign key":    {"Bearer " + token(t, other, nil), http.StatusUnauthorized},
		"expired":        {"Bearer " + token(t, key, func(c *auth.KeycloakClaims) { c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour)) }), http.StatusUnauthorized},
		"wrong audience": {"Bearer " + token(t, key, func(c *auth.KeycloakClaims) { c.Audience = jwt.ClaimStrings{"frontend"} }), http.StatusUnauthorized},
		"missing role":   {"Bearer " + token(t, key, func(c *auth.KeycloakClaims) { c.RealmAccess.Roles = []string{"editor"} }), http.StatusForbidden},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec, op := call(a, tc.header)
			assert.Equal(t, tc.status, rec.Code)
			assert.Nil(t, op)
		})
	}
}
