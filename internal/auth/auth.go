// Package auth is the reference identity provider: bcrypt-checked logins
// that issue HS256 tokens carrying the user id, role and class.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examhall/internal/model"
)

const issuer = "examhall"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrMissingToken       = errors.New("missing bearer token")
)

// Claims is the token payload.
type Claims struct {
	Role  model.UserRole `json:"role"`
	Class string         `json:"class,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() (model.Identity, error) {
	if strings.TrimSpace(c.Subject) == "" {
		return model.Identity{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return model.Identity{UserID: c.Subject, Role: c.Role, ClassID: c.Class}, nil
}

// Tokens issues and verifies identity tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the identity.
func (t *Tokens) Issue(id model.Identity) (string, error) {
	now := t.now()
	claims := &Claims{
		Role:  id.Role,
		Class: id.ClassID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies the signature and expiry and returns the identity.
func (t *Tokens) Parse(token string) (model.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.identity()
}

// PeekIdentity reads the identity from a token without verifying its
// signature. Clients use it to resolve who they are before submitting; the
// server always verifies.
func PeekIdentity(token string) (model.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Identity{}, ErrMissingToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return model.Identity{}, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	return claims.identity()
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", ErrMissingToken
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// UserLookup finds users by username.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

// Authenticator checks credentials against the user table.
type Authenticator struct {
	users  UserLookup
	tokens *Tokens
}

func NewAuthenticator(users UserLookup, tokens *Tokens) *Authenticator {
	return &Authenticator{users: users, tokens: tokens}
}

// Login returns a signed token for valid, active credentials.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, model.Identity, error) {
	u, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", model.Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || !u.Active {
		return "", model.Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", model.Identity{}, ErrInvalidCredentials
	}
	id := model.Identity{UserID: u.ID, Role: u.Role, ClassID: u.ClassID}
	tok, err := a.tokens.Issue(id)
	if err != nil {
		return "", model.Identity{}, fmt.Errorf("issue token: %w", err)
	}
	return tok, id, nil
}
