package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/service"
)

// UserAdmin is the account management staff can do.
type UserAdmin interface {
	ActivateByEmail(ctx context.Context, email string) error
	SetRole(ctx context.Context, actorID uint64, email, role string) error
}

// OrderBrowser lists every order; *service.Orders implements it.
type OrderBrowser interface {
	AllOrders(ctx context.Context, f model.OrderFilter) (service.OrderPage, error)
}

// AdminHandler serves /admin.
type AdminHandler struct {
	Users  UserAdmin
	Orders OrderBrowser
}

func NewAdminHandler(users UserAdmin, orders OrderBrowser) *AdminHandler {
	return &AdminHandler{Users: users, Orders: orders}
}

type setRoleReq struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=USER MODERATOR ADMIN"`
}

type orderFilterReq struct {
	UserID   uint64 `query:"user_id"`
	Status   string `query:"status" validate:"omitempty,oneof=PENDING PAID CANCELLED"`
	From     string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

func (h *AdminHandler) ActivateUser(c echo.Context) error {
	var req emailReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.ActivateByEmail(ctx, req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account activated"})
}

// SetRole changes another user's role.
func (h *AdminHandler) SetRole(c echo.Context) error {
	actor, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var req setRoleReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.SetRole(ctx, actor, req.Email, req.Role); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"email": req.Email, "role": req.Role})
}

// ListOrders lists all orders.  "to" is inclusive of the whole day.
func (h *AdminHandler) ListOrders(c echo.Context) error {
	var req orderFilterReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	f := model.OrderFilter{UserID: req.UserID, Status: req.Status}
	f.Page, f.PageSize = clampPage(req.Page, req.PageSize)
	if req.From != "" {
		f.From, _ = time.Parse("2006-01-02", req.From)
	}
	if req.To != "" {
		to, _ := time.Parse("2006-01-02", req.To)
		f.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "to is before from"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Orders.AllOrders(ctx, f)
	if err != nil {
		return respondError(c, err)
	}
	if out.Orders == nil {
		out.Orders = []model.Order{}
	}
	return c.JSON(http.StatusOK, out)
}
