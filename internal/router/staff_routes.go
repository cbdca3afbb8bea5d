package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/online-cinema/internal/handler"
	"github.com/iliyamo/online-cinema/internal/middleware"
	"github.com/iliyamo/online-cinema/internal/model"
)

// RegisterStaff registers moderator and admin endpoints.  Each route
// checks its own capability so the role table in model decides access.
func RegisterStaff(e *echo.Echo, c *handler.CatalogHandler, a *handler.AdminHandler, p *handler.PaymentHandler, auth Auth) {
	manage := middleware.RequireCapability(model.CapManageCatalog)
	e.POST("/movies", c.Create, auth.required(), manage)
	e.PUT("/movies/:id", c.Update, auth.required(), manage)
	e.DELETE("/movies/:id", c.Delete, auth.required(), manage)

	e.POST("/payments/:id/refund", p.Refund,
		auth.required(), middleware.RequireCapability(model.CapRefundPayments))

	g := e.Group("/admin", auth.required())
	g.GET("/orders", a.ListOrders, middleware.RequireCapability(model.CapViewAllOrders))
	users := middleware.RequireCapability(model.CapManageUsers)
	g.POST("/users/activate", a.ActivateUser, users)
	g.POST("/users/role", a.SetRole, users)
}
