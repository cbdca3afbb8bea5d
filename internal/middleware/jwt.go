package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/online-cinema/internal/utils"
)

// Blacklist reports whether an access token id was revoked by logout.
type Blacklist interface {
	Contains(ctx context.Context, jti string) (bool, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the caller into the request context.  Handlers read the values via
// UserID, Role and AccessClaims.  A nil blacklist disables the logout check.
func JWTAuth(codec *utils.TokenCodec, blacklist Blacklist) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if reason := authenticate(c, codec, blacklist); reason != "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": reason})
			}
			return next(c)
		}
	}
}

// OptionalJWTAuth is JWTAuth for routes that also serve guests.  A valid
// access token identifies the caller; a missing, expired or otherwise
// unusable one leaves the request anonymous instead of rejecting it.
func OptionalJWTAuth(codec *utils.TokenCodec, blacklist Blacklist) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_ = authenticate(c, codec, blacklist)
			return next(c)
		}
	}
}

// authenticate stores the caller of a valid access token on c.  It returns
// why the token was rejected, or "" when it was accepted.
func authenticate(c echo.Context, codec *utils.TokenCodec, blacklist Blacklist) string {
	raw, ok := bearer(c)
	if !ok {
		return "missing bearer token"
	}

	claims, err := codec.DecodeKind(raw, utils.KindAccess)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return "token expired"
		}
		return "invalid token"
	}
	uid, err := claims.UserID()
	if err != nil {
		return "invalid claims"
	}

	// lookup errors fail open
	if blacklist != nil && claims.ID != "" {
		if hit, err := blacklist.Contains(c.Request().Context(), claims.ID); err == nil && hit {
			return "token revoked"
		}
	}

	c.Set(ctxUserID, uid)
	c.Set(ctxRole, claims.Role)
	c.Set(ctxClaims, &claims)
	return ""
}

// bearer extracts the token of an "Authorization: Bearer <token>" header.
func bearer(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(auth[7:])
	return raw, raw != ""
}
