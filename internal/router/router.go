package router

import (
	"context"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/handler"
	"github.com/iliyamo/online-cinema/internal/middleware"
	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/utils"
)

// Auth bundles what the protected groups need to authenticate a request.
type Auth struct {
	Codec     *utils.TokenCodec
	Blacklist middleware.Blacklist
}

func (a Auth) required() echo.MiddlewareFunc { return middleware.JWTAuth(a.Codec, a.Blacklist) }
func (a Auth) optional() echo.MiddlewareFunc {
	return middleware.OptionalJWTAuth(a.Codec, a.Blacklist)
}

// New returns an Echo instance with the validator and the middleware every
// route shares: panic recovery, request ids and the access log.
func New(logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	return e
}

// RegisterRoutes registers the probes.  checks feeds /readyz.
func RegisterRoutes(e *echo.Echo, checks map[string]func(ctx context.Context) error) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(checks))
}

// RegisterAccounts registers /accounts and /profiles.  limit, when not
// nil, throttles the unauthenticated endpoints.
func RegisterAccounts(e *echo.Echo, a *handler.AccountHandler, p *handler.ProfileHandler, auth Auth, limit echo.MiddlewareFunc) {
	open := e.Group("/accounts")
	if limit != nil {
		open.Use(limit)
	}
	open.POST("/register", a.Register)
	open.POST("/activate", a.Activate)
	open.GET("/activate", a.Activate) // link from the activation email
	open.POST("/activate/resend", a.ResendActivation)
	open.POST("/login", a.Login)
	open.POST("/refresh", a.Refresh)
	open.POST("/password-reset/request", a.RequestPasswordReset)
	open.POST("/password-reset/complete", a.CompletePasswordReset)
	// the access token is optional on logout; when present it is revoked too
	open.POST("/logout", a.Logout, auth.optional())

	me := e.Group("/accounts", auth.required())
	me.GET("/me", a.Me)
	me.POST("/password/change", a.ChangePassword)

	prof := e.Group("/profiles", auth.required(), middleware.RequireCapability(model.CapManageProfile))
	prof.GET("/me", p.Get)
	prof.PUT("/me", p.Update)
}
