package web

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is lowered by tests.
var bcryptCost = 14

const (
	tokenIssuer   = "vnetscan"
	tokenLifetime = 24 * time.Hour
)

var errInvalidToken = errors.New("invalid token")

// Claims are carried by control API tokens.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator checks dashboard credentials and issues the HS256 tokens the
// control API expects. A nil or credential-less Authenticator lets everything
// through.
type Authenticator struct {
	username     string
	passwordHash []byte
	secret       []byte
	lifetime     time.Duration
	now          func() time.Time
}

// NewAuthenticator hashes password up front. An empty username disables auth
// but still signs tokens with secret.
func NewAuthenticator(username, password string, secret []byte) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	a := &Authenticator{
		username: username,
		secret:   secret,
		lifetime: tokenLifetime,
		now:      time.Now,
	}
	if username == "" {
		return a, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	a.passwordHash = hash
	return a, nil
}

// Enabled reports whether the control API requires a token.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.username != ""
}

// Check compares credentials against the configured pair.
func (a *Authenticator) Check(username, password string) bool {
	if !a.Enabled() || a.passwordHash == nil {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// always run bcrypt so a wrong username costs the same as a wrong password
	passOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// Issue signs a token for username.
func (a *Authenticator) Issue(username string) (string, error) {
	now := a.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.lifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses tokenStr and returns its claims when the signature, issuer
// and expiry check out.
func (a *Authenticator) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}
