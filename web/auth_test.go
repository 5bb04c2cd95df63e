package web

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthenticatorTokens(t *testing.T) {
	a, err := NewAuthenticator("admin", "s3cret", []byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	token, err := a.Issue("admin")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	claims, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Username != "admin" || claims.Issuer != tokenIssuer {
		t.Errorf("claims = %+v", claims)
	}

	rotated, err := NewAuthenticator("admin", "s3cret", []byte("rotated"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rotated.Verify(token); err == nil {
		t.Error("token signed with the old secret verified")
	}

	a.now = func() time.Time { return time.Now().Add(tokenLifetime + time.Minute) }
	if _, err := a.Verify(token); err == nil {
		t.Error("expired token verified")
	}
}

func TestAuthenticatorRejectsForeignTokens(t *testing.T) {
	a, err := NewAuthenticator("admin", "s3cret", []byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		claims jwt.RegisteredClaims
	}{
		{"no expiry", jwt.RegisteredClaims{Issuer: tokenIssuer}},
		{"other issuer", jwt.RegisteredClaims{Issuer: "someone-else", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Username: "admin", RegisteredClaims: tt.claims}).SignedString([]byte("test-secret"))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := a.Verify(token); err == nil {
				t.Error("token verified")
			}
		})
	}
}

func TestAuthenticatorCheck(t *testing.T) {
	a, err := NewAuthenticator("admin", "s3cret", []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		user, pass string
		want       bool
	}{
		{"admin", "s3cret", true},
		{"admin", "wrong", false},
		{"root", "s3cret", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := a.Check(tt.user, tt.pass); got != tt.want {
			t.Errorf("Check(%q, %q) = %v, want %v", tt.user, tt.pass, got, tt.want)
		}
	}

	open, err := NewAuthenticator("", "", []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if open.Enabled() || open.Check("", "") {
		t.Error("credential-less authenticator should be disabled")
	}
	var none *Authenticator
	if none.Enabled() {
		t.Error("nil Authenticator reports enabled")
	}
	if _, err := NewAuthenticator("admin", "x", nil); err == nil {
		t.Error("empty secret accepted")
	}
}

func TestLoginAndGuardedRoutes(t *testing.T) {
	s := newTestServer(t, Options{Username: "admin", Password: "s3cret", JWTSecret: "fixed"})
	h := s.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/probe/status", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/probe/status", "", map[string]string{"Authorization": "Token abc"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad scheme status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/auth/login", `{"username":"admin","password":"nope"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/auth/login", `{"username":"admin","password":"s3cret"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Token string `json:"token"`
	}
	decode(t, rec, &body)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/probe/status", "", map[string]string{"Authorization": "Bearer " + body.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/api/v1/probe/status?token="+body.Token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query token status = %d", rec.Code)
	}

	// probe endpoints stay public
	rec = doRequest(t, h, http.MethodGet, "/api/ping", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ping status = %d", rec.Code)
	}
}

func TestLoginWithoutAuth(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/auth/login", `{"username":"a","password":"b"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	rec = doRequest(t, s.Handler(), http.MethodGet, "/api/v1/probe/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("open status = %d", rec.Code)
	}
}

func TestNewServerRejectsHalfCredentials(t *testing.T) {
	if _, err := NewServer(Options{Username: "admin"}); err == nil {
		t.Error("expected error")
	}
}
