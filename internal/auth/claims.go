package auth

import "github.com/golang-jwt/jwt/v5"

// KeycloakClaims extracts the specific data we need from the JWT
type KeycloakClaims struct {
	// Standard OIDC claims (sub, exp, iat, etc.)
	jwt.RegisteredClaims

	PreferredUsername string `json:"preferred_username"`
	Azp               string `json:"azp"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// Operator is the authenticated caller of the admin API.
type Operator struct {
	ID       string // The 'sub' field
	Username string
	Roles    []string
}
