package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/online-cinema/internal/handler"
	"github.com/iliyamo/online-cinema/internal/middleware"
	"github.com/iliyamo/online-cinema/internal/model"
)

// RegisterCatalog registers the public catalog.  Guests may browse; cache,
// when not nil, serves repeated anonymous reads from Redis.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, cache echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if cache != nil {
		mw = append(mw, cache)
	}
	e.GET("/movies", h.List, mw...)
	e.GET("/movies/:id", h.Get, mw...)
	e.GET("/genres", h.Genres, mw...)
	e.GET("/stars", h.Stars, mw...)
	e.GET("/directors", h.Directors, mw...)
}

// RegisterCustomer registers the cart, order and payment endpoints of the
// signed in user.  All of them need the purchase capability.
func RegisterCustomer(e *echo.Echo, o *handler.OrderHandler, p *handler.PaymentHandler, auth Auth) {
	mw := []echo.MiddlewareFunc{auth.required(), middleware.RequireCapability(model.CapPurchase)}
	g := &routes{e: e, mw: mw}

	g.GET("/cart", o.Cart)
	g.POST("/cart/items", o.AddToCart)
	g.DELETE("/cart/items/:movie_id", o.RemoveFromCart)
	g.DELETE("/cart", o.ClearCart)

	g.POST("/orders", o.PlaceOrder)
	g.GET("/orders", o.List)
	g.GET("/orders/:id", o.Get)
	g.POST("/orders/:id/cancel", o.Cancel)
	g.POST("/orders/:id/checkout", o.Checkout)

	g.GET("/payments", p.List)
	g.GET("/purchases", p.Purchases)
}

// RegisterPayments registers the gateway-facing endpoints.  The webhook is
// authenticated by its signature, not by a token.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler) {
	e.POST("/payments/webhook", p.Webhook)
	e.GET("/payments/success", p.Success)
	e.GET("/payments/cancel", p.Cancelled)
}

// routes registers paths on the root with a shared middleware chain.
type routes struct {
	e  *echo.Echo
	mw []echo.MiddlewareFunc
}

func (r *routes) GET(path string, h echo.HandlerFunc)    { r.e.GET(path, h, r.mw...) }
func (r *routes) POST(path string, h echo.HandlerFunc)   { r.e.POST(path, h, r.mw...) }
func (r *routes) DELETE(path string, h echo.HandlerFunc) { r.e.DELETE(path, h, r.mw...) }
