package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ticketAudience = "ecocleans-voice"

// Tickets issues and redeems single-use voice tickets. A ticket lets a
// browser open the dialog websocket without putting its access token in a URL.
// Redeemed ticket IDs are remembered until the ticket would have expired.
type Tickets struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu   sync.Mutex
	used map[string]time.Time
}

// NewTickets signs tickets with secret.
func NewTickets(secret string) *Tickets {
	return &Tickets{secret: []byte(secret), ttl: TicketTTL, now: time.Now, used: make(map[string]time.Time)}
}

// Issue returns a ticket for subject and its expiry.
func (t *Tickets) Issue(subject string) (string, time.Time, error) {
	if len(t.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("ticket secret not configured")
	}
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{ticketAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign ticket: %w", err)
	}
	return signed, exp, nil
}

// Redeem validates a ticket and returns its subject.
func (t *Tickets) Redeem(raw string) (string, error) {
	if raw == "" || len(t.secret) == 0 {
		return "", ErrUnauthorized
	}
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(ticketAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !tok.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.ID == "" {
		return "", fmt.Errorf("%w: ticket has no id", ErrUnauthorized)
	}
	if !t.claim(claims.ID, claims.ExpiresAt.Time) {
		return "", fmt.Errorf("%w: ticket already redeemed", ErrUnauthorized)
	}
	return claims.Subject, nil
}

// claim records id as redeemed, reporting false if it already was. Entries
// past their expiry are dropped first.
func (t *Tickets) claim(id string, exp time.Time) bool {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.used == nil {
		t.used = make(map[string]time.Time)
	}
	for k, e := range t.used {
		if now.After(e) {
			delete(t.used, k)
		}
	}
	if _, ok := t.used[id]; ok {
		return false
	}
	t.used[id] = exp
	return true
}
