package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/online-cinema/internal/middleware"
	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/service"
	"github.com/iliyamo/online-cinema/internal/utils"
)

// Accounts is the account lifecycle the handler drives; *service.Sessions
// implements it.
type Accounts interface {
	Register(ctx context.Context, email, password string) (model.User, error)
	ResendActivation(ctx context.Context, email string) error
	Activate(ctx context.Context, email, token string) error
	Login(ctx context.Context, email, password string) (service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (service.TokenPair, error)
	Logout(ctx context.Context, refreshToken string, access *utils.Claims) error
	RequestPasswordReset(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, email, token, password string) error
	ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error
	Me(ctx context.Context, userID uint64) (model.User, error)
}

// AccountHandler serves /accounts.
type AccountHandler struct {
	Accounts Accounts
}

func NewAccountHandler(a Accounts) *AccountHandler {
	return &AccountHandler{Accounts: a}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}
type registerReq struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,password"`
}
type emailReq struct {
	Email string `json:"email" validate:"required,email"`
}
type activateReq struct {
	Email string `json:"email" query:"email" validate:"omitempty,email"`
	Token string `json:"token" query:"token" validate:"required"`
}
type resetCompleteReq struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
type changePasswordReq struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,password"`
}

type userResp struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResp(u model.User) userResp {
	return userResp{ID: u.ID, Email: u.Email, Role: u.Role, IsActive: u.IsActive, CreatedAt: u.CreatedAt}
}

// Register creates an inactive account and mails the activation link.
func (h *AccountHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Accounts.Register(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"user":    toUserResp(u),
		"message": "check your email to activate the account",
	})
}

// ResendActivation always answers 202 so the endpoint cannot be used to
// probe for registered addresses.
func (h *AccountHandler) ResendActivation(c echo.Context) error {
	var req emailReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.ResendActivation(ctx, req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "if the account exists and is inactive, a new link was sent"})
}

// Activate accepts the token as JSON or, for links opened from the email,
// as query parameters.
func (h *AccountHandler) Activate(c echo.Context) error {
	var req activateReq
	if err := bindValid(c, &req); err != nil {
		return respondFormError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.Activate(ctx, req.Email, req.Token); err != nil {
		return respondFormError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "account activated"})
}

func (h *AccountHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Refresh returns a new access token; the refresh token is not rotated.
func (h *AccountHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Accounts.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout revokes the refresh token from the body.  When the request also
// carries an access token it is blacklisted until it expires.
func (h *AccountHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.Logout(ctx, req.RefreshToken, middleware.AccessClaims(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RequestPasswordReset answers 202 whether or not the address is known.
func (h *AccountHandler) RequestPasswordReset(c echo.Context) error {
	var req emailReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.RequestPasswordReset(ctx, req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "if the account exists, a reset link was sent"})
}

func (h *AccountHandler) CompletePasswordReset(c echo.Context) error {
	var req resetCompleteReq
	if err := bindValid(c, &req); err != nil {
		return respondFormError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.CompletePasswordReset(ctx, req.Email, req.Token, req.Password); err != nil {
		return respondFormError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

func (h *AccountHandler) ChangePassword(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var req changePasswordReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Accounts.ChangePassword(ctx, uid, req.OldPassword, req.NewPassword); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed, sign in again on other devices"})
}

func (h *AccountHandler) Me(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Accounts.Me(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}
