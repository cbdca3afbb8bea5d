package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/online-cinema/internal/model"
)

// Profiles reads and writes user profiles; *service.Profiles implements it.
type Profiles interface {
	Get(ctx context.Context, userID uint64) (model.Profile, error)
	Update(ctx context.Context, p model.Profile) (model.Profile, error)
}

type ProfileHandler struct {
	Profiles Profiles
}

func NewProfileHandler(p Profiles) *ProfileHandler { return &ProfileHandler{Profiles: p} }

type profileReq struct {
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	Gender      string `json:"gender" validate:"omitempty,oneof=man woman"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Info        string `json:"info" validate:"max=2000"`
}

func (h *ProfileHandler) Get(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.Profiles.Get(ctx, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Update replaces the whole profile.
func (h *ProfileHandler) Update(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return respondError(c, err)
	}
	var req profileReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	p := model.Profile{
		UserID:    uid,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Gender:    req.Gender,
		Info:      req.Info,
	}
	if req.DateOfBirth != "" {
		dob, _ := time.Parse("2006-01-02", req.DateOfBirth) // checked by the validator
		if dob.After(time.Now()) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "date_of_birth is in the future"})
		}
		p.DateOfBirth = &dob
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := h.Profiles.Update(ctx, p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
