package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind tells access tokens apart from refresh tokens. The kind is
// signed into the token so one can never be used where the other is
// expected.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, unexpected
	// algorithms and tokens of the wrong kind.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for well-formed tokens past their exp.
	ErrExpiredToken = errors.New("token expired")
)

// Claims are the JWT claims issued by TokenCodec. The subject (sub)
// holds the user id as a decimal string, ID (jti) a random UUID.
type Claims struct {
	Kind TokenKind `json:"kind"`
	Role string    `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into a user id.
func (c Claims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Expiry returns the exp claim as a time (zero when absent).
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedToken is a signed token string along with the claims that were
// signed into it.
type IssuedToken struct {
	Token  string
	Claims Claims
}

// Exp is shorthand for the token's expiration time.
func (t IssuedToken) Exp() time.Time { return t.Claims.Expiry() }

// TokenCodec signs and verifies HS256 tokens. Access and refresh tokens
// use separate secrets.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

// NewTokenCodec builds a codec. An empty refreshSecret falls back to the
// access secret.
func NewTokenCodec(accessSecret, refreshSecret string) *TokenCodec {
	if refreshSecret == "" {
		refreshSecret = accessSecret
	}
	return &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (c *TokenCodec) secretFor(kind TokenKind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return c.accessSecret, nil
	case KindRefresh:
		return c.refreshSecret, nil
	}
	return nil, ErrInvalidToken
}

// Issue builds and signs a token for a user. The JWT includes the
// subject (sub), kind, role, a random jti, issued-at (iat) and
// expiration (exp).
func (c *TokenCodec) Issue(userID uint64, kind TokenKind, role string, ttl time.Duration) (IssuedToken, error) {
	key, err := c.secretFor(kind)
	if err != nil {
		return IssuedToken{}, err
	}
	now := c.now()
	claims := Claims{
		Kind: kind,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: signed, Claims: claims}, nil
}

// Decode verifies a token and returns its claims. The signing key is
// picked from the kind claim, so a token whose kind was altered fails
// signature verification.
func (c *TokenCodec) Decode(raw string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		cl, ok := t.Claims.(*Claims)
		if !ok {
			return nil, ErrInvalidToken
		}
		return c.secretFor(cl.Kind)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// DecodeKind is Decode plus a check that the token is of the expected kind.
func (c *TokenCodec) DecodeKind(raw string, kind TokenKind) (Claims, error) {
	claims, err := c.Decode(raw)
	if err != nil {
		return Claims{}, err
	}
	if claims.Kind != kind {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
