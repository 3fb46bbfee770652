// Package auth guards the admin API with OIDC bearer tokens.
package auth

import (
	"context"
	"crypto"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	apperrors "searchsync/internal/errors"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const operatorContextKey contextKey = "operator"

// Authenticator verifies bearer tokens and requires a realm role.
type Authenticator struct {
	verifier *oidc.IDTokenVerifier
	role     string
}

// NewAuthenticator discovers the issuer's keys. Tokens must be issued for
// clientID; an empty role admits any valid token.
func NewAuthenticator(ctx context.Context, issuerURL, clientID, role string) (*Authenticator, error) {
	// Discovery: Hits {issuer}/.well-known/openid-configuration
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		role:     role,
	}, nil
}

// NewStaticAuthenticator verifies tokens against fixed public keys instead
// of the issuer's discovery document.
func NewStaticAuthenticator(issuerURL, clientID, role string, keys ...crypto.PublicKey) *Authenticator {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &Authenticator{
		verifier: oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: clientID}),
		role:     role,
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		scheme, rawToken, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || scheme != "Bearer" || rawToken == "" {
			apperrors.RespondError(w, r, apperrors.New(apperrors.ErrUnauthorized, "A bearer token is required", nil))
			return
		}

		// Verify Token (Signature, Exp, Aud)
		idToken, err := a.verifier.Verify(ctx, rawToken)
		if err != nil {
			apperrors.RespondError(w, r, apperrors.New(apperrors.ErrUnauthorized, "Invalid or expired token", err))
			return
		}

		var claims KeycloakClaims
		if err := idToken.Claims(&claims); err != nil {
			apperrors.RespondError(w, r, apperrors.New(apperrors.ErrUnauthorized, "Unreadable token claims", err))
			return
		}

		op := Operator{
			ID:       claims.Subject,
			Username: claims.PreferredUsername,
			Roles:    claims.RealmAccess.Roles,
		}
		if a.role != "" && !slices.Contains(op.Roles, a.role) {
			apperrors.RespondError(w, r, apperrors.Newf(apperrors.ErrForbidden, nil, "Role %s is required", a.role))
			return
		}

		slog.DebugContext(ctx, "Admin request authenticated", "operator", op.Username, "sub", op.ID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, operatorContextKey, op)))
	})
}

// GetOperator retrieves the caller from context
func GetOperator(ctx context.Context) (Operator, error) {
	if op, ok := ctx.Value(operatorContextKey).(Operator); ok {
		return op, nil
	}
	return Operator{}, errors.New("no operator found in context")
}
