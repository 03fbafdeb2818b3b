package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ecocleans/booking-agent/internal/auth"
)

func run(mw echo.MiddlewareFunc, req *http.Request, h echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := mw(h)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestSignedBody(t *testing.T) {
	secret := "s"
	body := `{"customerName":"Jane"}`
	mw := SignedBody(func() string { return secret })

	var seen string
	h := func(c echo.Context) error {
		b, _ := io.ReadAll(c.Request().Body)
		seen = string(b)
		return c.NoContent(http.StatusAccepted)
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/notifications/booking", strings.NewReader(body))
	req.Header.Set(SignatureHeader, Sign(secret, []byte(body)))
	if rec := run(mw, req, h); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if seen != body {
		t.Fatalf("body not restored for handler: %q", seen)
	}

	cases := map[string]string{
		"missing": "",
		"wrong":   Sign("other", []byte(body)),
		"garbage": "zz",
	}
	for name, sig := range cases {
		seen = ""
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if sig != "" {
			req.Header.Set(SignatureHeader, sig)
		}
		if rec := run(mw, req, h); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
		if seen != "" {
			t.Fatalf("%s: handler must not run", name)
		}
	}

	unconfigured := SignedBody(func() string { return "" })
	if rec := run(unconfigured, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), h); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without secret, got %d", rec.Code)
	}
}

type stubVerifier struct{}

func (stubVerifier) Verify(raw string) (auth.Identity, error) {
	if raw == "good" {
		return auth.Identity{Subject: "u1", Role: "user"}, nil
	}
	return auth.Identity{}, auth.ErrUnauthorized
}

func TestBearerAuth(t *testing.T) {
	mw := BearerAuth(stubVerifier{})
	var got auth.Identity
	h := func(c echo.Context) error {
		got, _ = Identity(c)
		return c.NoContent(http.StatusOK)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	if rec := run(mw, req, h); rec.Code != http.StatusOK || got.Subject != "u1" {
		t.Fatalf("expected pass with identity, got %d %+v", rec.Code, got)
	}
	for _, hdr := range []string{"", "Bearer bad", "Token good"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		if rec := run(mw, req, h); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", hdr, rec.Code)
		}
	}
}

type stubLimiter struct {
	ok    bool
	retry time.Duration
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.ok, s.retry, s.err
}

func TestRateLimit(t *testing.T) {
	l := &stubLimiter{ok: false, retry: 2500 * time.Millisecond}
	rec := run(RateLimit(l, KeyByIdentityOrIP, nil), httptest.NewRequest(http.MethodPost, "/", nil), okHandler)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "3" {
		t.Fatalf("expected 429 with Retry-After 3, got %d %q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if !strings.HasPrefix(l.keys[0], "ip:") {
		t.Fatalf("anonymous request should key on ip, got %q", l.keys[0])
	}

	open := &stubLimiter{err: errors.New("redis down")}
	if rec := run(RateLimit(open, KeyByIdentityOrIP, nil), httptest.NewRequest(http.MethodPost, "/", nil), okHandler); rec.Code != http.StatusOK {
		t.Fatalf("limiter errors should fail open, got %d", rec.Code)
	}

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.Set(identityKey, auth.Identity{Subject: "abc"})
	if k := KeyByIdentityOrIP(c); k != "user:abc" {
		t.Fatalf("expected user key, got %q", k)
	}
}
