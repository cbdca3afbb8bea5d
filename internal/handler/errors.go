package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/repository"
	"github.com/iliyamo/online-cinema/internal/service"
)

type errorStatus struct {
	err    error
	status int
	msg    string
}

// errorTable maps workflow failures to responses.  Order matters only for
// errors that wrap each other.
var errorTable = []errorStatus{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{service.ErrInactiveAccount, http.StatusForbidden, "account is not active"},
	{service.ErrDuplicateToken, http.StatusConflict, "token already issued, retry"},
	{service.ErrEmptyCart, http.StatusBadRequest, "cart is empty"},
	{service.ErrAlreadyPurchased, http.StatusConflict, "movie already purchased"},
	{service.ErrOrderNotPending, http.StatusConflict, "order is not pending"},
	{service.ErrGatewayUnavailable, http.StatusServiceUnavailable, "payment gateway unavailable"},
	{service.ErrInvalidSignature, http.StatusBadRequest, "invalid signature"},
	{service.ErrNotFound, http.StatusNotFound, "not found"},
	{service.ErrAlreadyInCart, http.StatusConflict, "movie already in cart"},
	{service.ErrPendingOrderExists, http.StatusConflict, "movie already in a pending order"},
	{service.ErrPaymentNotRefundable, http.StatusConflict, "payment is not refundable"},
	{service.ErrSamePassword, http.StatusConflict, "new password must differ from the current one"},
	{service.ErrEmailTaken, http.StatusConflict, "email already registered"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{repository.ErrNotFound, http.StatusNotFound, "not found"},
	{repository.ErrConflict, http.StatusConflict, "resource is in use"},
	{repository.ErrDuplicate, http.StatusConflict, "already exists"},
	{errNoUser, http.StatusUnauthorized, "unauthorized"},
}

// respondError writes the response for err.  A rejected token is a 401
// here; see respondFormError.
func respondError(c echo.Context, err error) error {
	return writeError(c, err, http.StatusUnauthorized)
}

// respondFormError is respondError for activation and password reset,
// where the token is a form field and a bad one is a 400.
func respondFormError(c echo.Context, err error) error {
	return writeError(c, err, http.StatusBadRequest)
}

func writeError(c echo.Context, err error, tokenStatus int) error {
	if errors.Is(err, service.ErrInvalidOrExpiredToken) {
		return c.JSON(tokenStatus, echo.Map{"error": "invalid or expired token"})
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": fieldErrors(verrs)})
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return c.JSON(he.Code, echo.Map{"error": he.Message})
	}
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return c.JSON(e.status, echo.Map{"error": e.msg})
		}
	}
	zap.L().Error("unhandled error",
		zap.String("method", c.Request().Method), zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
