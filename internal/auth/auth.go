// Package auth verifies caller identity and issues the short-lived tickets
// that open a voice dialog.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized covers missing, malformed, expired or forged credentials.
var ErrUnauthorized = errors.New("auth: unauthorized")

// TicketTTL is how long a voice ticket stays valid.
const TicketTTL = 60 * time.Second

// Identity is the verified caller.
type Identity struct {
	Subject string
	Role    string
}

type supabaseClaims struct {
	jwt.RegisteredClaims
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata"`
}

// Verifier checks Supabase-issued HS256 access tokens.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewVerifier returns a verifier for tokens signed with secret. Empty issuer
// or audience are not checked.
func NewVerifier(secret, issuer, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(header[7:])
	return tok, tok != ""
}

// Verify parses raw and returns the caller identity.
func (v *Verifier) Verify(raw string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: verifier has no secret", ErrUnauthorized)
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &supabaseClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || tok == nil || !tok.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}

	role := "user"
	if s, ok := claims.AppMetadata["role"].(string); ok && s != "" {
		role = s
	}
	return Identity{Subject: claims.Subject, Role: role}, nil
}
