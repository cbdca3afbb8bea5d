package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/repository"
)

// Catalog is the movie store behind the catalog routes;
// *repository.MovieRepo implements it.
type Catalog interface {
	Search(ctx context.Context, q repository.MovieQuery) ([]model.Movie, int64, error)
	GetByID(ctx context.Context, id uint64) (*model.Movie, error)
	Create(ctx context.Context, m *model.Movie) (*model.Movie, error)
	Update(ctx context.Context, id uint64, m *model.Movie) (*model.Movie, error)
	Delete(ctx context.Context, id uint64) error
	Genres(ctx context.Context) ([]model.NamedCount, error)
	Stars(ctx context.Context) ([]model.NamedCount, error)
	Directors(ctx context.Context) ([]model.NamedCount, error)
}

// CatalogHandler serves the public movie catalog and the moderator
// write endpoints.  Invalidate, when set, drops cached catalog responses
// after every write.
type CatalogHandler struct {
	Movies     Catalog
	Invalidate func(ctx context.Context) error
}

func NewCatalogHandler(movies Catalog, invalidate func(ctx context.Context) error) *CatalogHandler {
	return &CatalogHandler{Movies: movies, Invalidate: invalidate}
}

type movieListReq struct {
	Name     string `query:"name" validate:"max=255"`
	Genre    string `query:"genre" validate:"max=100"`
	Star     string `query:"star" validate:"max=100"`
	Director string `query:"director" validate:"max=100"`
	Year     int    `query:"year" validate:"omitempty,min=1888,max=2100"`
	Sort     string `query:"sort"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

type movieReq struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Year        int             `json:"year" validate:"required,min=1888,max=2100"`
	DurationMin int             `json:"duration_min" validate:"min=0,max=1000"`
	IMDb        float64         `json:"imdb" validate:"min=0,max=10"`
	Votes       int             `json:"votes" validate:"min=0"`
	Description string          `json:"description" validate:"max=5000"`
	Price       decimal.Decimal `json:"price"`
	Genres      []string        `json:"genres" validate:"dive,required,max=100"`
	Stars       []string        `json:"stars" validate:"dive,required,max=100"`
	Directors   []string        `json:"directors" validate:"dive,required,max=100"`
}

func (r movieReq) toModel() *model.Movie {
	return &model.Movie{
		Name:        strings.TrimSpace(r.Name),
		Year:        r.Year,
		DurationMin: r.DurationMin,
		IMDb:        r.IMDb,
		Votes:       r.Votes,
		Description: r.Description,
		Price:       r.Price.Round(2),
		Genres:      r.Genres,
		Stars:       r.Stars,
		Directors:   r.Directors,
	}
}

// List searches the catalog.
func (h *CatalogHandler) List(c echo.Context) error {
	var req movieListReq
	if err := bindValid(c, &req); err != nil {
		return respondError(c, err)
	}
	if !repository.ValidMovieSort(req.Sort) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sort must be one of name, year, price, imdb, optionally prefixed with -"})
	}
	p, size := clampPage(req.Page, req.PageSize)

	ctx, cancel := reqCtx(c)
	defer cancel()
	movies, total, err := h.Movies.Search(ctx, repository.MovieQuery{
		Name:     strings.TrimSpace(req.Name),
		Genre:    strings.TrimSpace(req.Genre),
		Star:     strings.TrimSpace(req.Star),
		Director: strings.TrimSpace(req.Director),
		Year:     req.Year,
		Sort:     req.Sort,
		Page:     p,
		PageSize: size,
	})
	if err != nil {
		return respondError(c, err)
	}
	if movies == nil {
		movies = []model.Movie{}
	}
	return c.JSON(http.StatusOK, page[model.Movie]{Items: movies, Total: total, Page: p, PageSize: size})
}

func (h *CatalogHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	m, err := h.Movies.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *CatalogHandler) Genres(c echo.Context) error {
	return h.names(c, h.Movies.Genres)
}

func (h *CatalogHandler) Stars(c echo.Context) error {
	return h.names(c, h.Movies.Stars)
}

func (h *CatalogHandler) Directors(c echo.Context) error {
	return h.names(c, h.Movies.Directors)
}

func (h *CatalogHandler) names(c echo.Context, list func(context.Context) ([]model.NamedCount, error)) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	out, err := list(ctx)
	if err != nil {
		return respondError(c, err)
	}
	if out == nil {
		out = []model.NamedCount{}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) Create(c echo.Context) error {
	var req movieReq
	if err := bindMovie(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	m, err := h.Movies.Create(ctx, req.toModel())
	if err != nil {
		return respondError(c, err)
	}
	h.invalidate(ctx)
	return c.JSON(http.StatusCreated, m)
}

// Update replaces a movie.  Price changes apply to carts at once; orders
// keep the price they were created with.
func (h *CatalogHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req movieReq
	if err := bindMovie(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	m, err := h.Movies.Update(ctx, id, req.toModel())
	if err != nil {
		return respondError(c, err)
	}
	h.invalidate(ctx)
	return c.JSON(http.StatusOK, m)
}

// Delete refuses movies that were ordered or purchased.
func (h *CatalogHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Movies.Delete(ctx, id); err != nil {
		return respondError(c, err)
	}
	h.invalidate(ctx)
	return c.NoContent(http.StatusNoContent)
}

func bindMovie(c echo.Context, req *movieReq) error {
	if err := bindValid(c, req); err != nil {
		return err
	}
	if req.Price.IsNegative() {
		return echo.NewHTTPError(http.StatusBadRequest, "price must not be negative")
	}
	return nil
}

func (h *CatalogHandler) invalidate(ctx context.Context) {
	if h.Invalidate == nil {
		return
	}
	if err := h.Invalidate(ctx); err != nil {
		zap.L().Warn("catalog cache invalidation failed", zap.Error(err))
	}
}
