package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/issue-service/internal/domain"
)

// IdentityVerifier turns a bearer token into a verified identity.
type IdentityVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// TokenManager issues and validates HS256 identity tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret, issuer string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    time.Duration(ttlMinutes) * time.Minute,
		now:    time.Now,
	}
}

// Claims describes JWT payload.
type Claims struct {
	Email string `json:"email"`
	UID   string `json:"uid"`
	jwt.RegisteredClaims
}

var errInvalidClaims = errors.New("invalid token claims")

// GenerateToken builds and signs a JWT for the identity.
func (tm *TokenManager) GenerateToken(identity domain.Identity) (string, time.Time, error) {
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := &Claims{
		Email: identity.Email,
		UID:   identity.UID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UID,
			Issuer:    tm.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errInvalidClaims
	}
	return claims, nil
}

// Verify implements IdentityVerifier. Emails are compared case-insensitively
// everywhere, so they are normalized here once.
func (tm *TokenManager) Verify(token string) (domain.Identity, error) {
	claims, err := tm.ParseToken(token)
	if err != nil {
		return domain.Identity{}, err
	}
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return domain.Identity{}, errInvalidClaims
	}
	return domain.Identity{Email: email, UID: claims.UID}, nil
}
