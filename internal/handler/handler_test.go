package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/online-cinema/internal/middleware"
	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/payment"
	"github.com/iliyamo/online-cinema/internal/repository"
	"github.com/iliyamo/online-cinema/internal/service"
	"github.com/iliyamo/online-cinema/internal/utils"
)

var testCodec = utils.NewTokenCodec("access-secret", "refresh-secret")

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func bearerFor(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := testCodec.Issue(uid, utils.KindAccess, role, time.Minute)
	require.NoError(t, err)
	return tok.Token
}

func do(e *echo.Echo, method, target, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// ----- fakes -----

type fakeAccounts struct {
	err        error
	registered []string
	logoutJTI  string
	loggedOut  []string
}

func (f *fakeAccounts) Register(_ context.Context, email, _ string) (model.User, error) {
	f.registered = append(f.registered, email)
	return model.User{ID: 1, Email: email, Role: model.RoleUser}, f.err
}
func (f *fakeAccounts) ResendActivation(context.Context, string) error { return f.err }
func (f *fakeAccounts) Activate(context.Context, string, string) error { return f.err }
func (f *fakeAccounts) Login(context.Context, string, string) (service.TokenPair, error) {
	return service.TokenPair{AccessToken: "a", RefreshToken: "r"}, f.err
}
func (f *fakeAccounts) Refresh(context.Context, string) (service.TokenPair, error) {
	return service.TokenPair{AccessToken: "a2", RefreshToken: "r"}, f.err
}
func (f *fakeAccounts) Logout(_ context.Context, refresh string, access *utils.Claims) error {
	f.loggedOut = append(f.loggedOut, refresh)
	if access != nil {
		f.logoutJTI = access.ID
	}
	return f.err
}
func (f *fakeAccounts) RequestPasswordReset(context.Context, string) error { return f.err }
func (f *fakeAccounts) CompletePasswordReset(context.Context, string, string, string) error {
	return f.err
}
func (f *fakeAccounts) ChangePassword(context.Context, uint64, string, string) error { return f.err }
func (f *fakeAccounts) Me(_ context.Context, uid uint64) (model.User, error) {
	return model.User{ID: uid, Email: "me@example.com", Role: model.RoleUser, IsActive: true}, f.err
}

type fakeCatalog struct {
	movies  map[uint64]model.Movie
	lastQ   repository.MovieQuery
	deleteE error
}

func (f *fakeCatalog) Search(_ context.Context, q repository.MovieQuery) ([]model.Movie, int64, error) {
	f.lastQ = q
	var out []model.Movie
	for _, m := range f.movies {
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}
func (f *fakeCatalog) GetByID(_ context.Context, id uint64) (*model.Movie, error) {
	m, ok := f.movies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}
func (f *fakeCatalog) Create(_ context.Context, m *model.Movie) (*model.Movie, error) {
	m.ID = uint64(len(f.movies) + 1)
	f.movies[m.ID] = *m
	return m, nil
}
func (f *fakeCatalog) Update(_ context.Context, id uint64, m *model.Movie) (*model.Movie, error) {
	if _, ok := f.movies[id]; !ok {
		return nil, repository.ErrNotFound
	}
	m.ID = id
	f.movies[id] = *m
	return m, nil
}
func (f *fakeCatalog) Delete(_ context.Context, id uint64) error {
	if f.deleteE != nil {
		return f.deleteE
	}
	delete(f.movies, id)
	return nil
}
func (f *fakeCatalog) Genres(context.Context) ([]model.NamedCount, error) {
	return []model.NamedCount{{ID: 1, Name: "Drama", Movies: 2}}, nil
}
func (f *fakeCatalog) Stars(context.Context) ([]model.NamedCount, error)     { return nil, nil }
func (f *fakeCatalog) Directors(context.Context) ([]model.NamedCount, error) { return nil, nil }

type fakeShop struct {
	checkoutErr error
	cartUser    uint64
}

func (f *fakeShop) Cart(_ context.Context, uid uint64) (service.Cart, error) {
	f.cartUser = uid
	return service.Cart{Total: decimal.Zero}, nil
}
func (f *fakeShop) AddToCart(context.Context, uint64, uint64) error      { return nil }
func (f *fakeShop) RemoveFromCart(context.Context, uint64, uint64) error { return nil }
func (f *fakeShop) ClearCart(context.Context, uint64) error              { return nil }
func (f *fakeShop) Checkout(_ context.Context, uid uint64) (model.Order, error) {
	if f.checkoutErr != nil {
		return model.Order{}, f.checkoutErr
	}
	return model.Order{ID: 9, UserID: uid, Status: model.OrderPending, Total: decimal.NewFromInt(10)}, nil
}
func (f *fakeShop) Orders(context.Context, uint64) ([]model.Order, error) { return nil, nil }
func (f *fakeShop) Order(_ context.Context, uid, id uint64) (model.Order, error) {
	if id != 9 {
		return model.Order{}, service.ErrNotFound
	}
	return model.Order{ID: id, UserID: uid, Status: model.OrderPending}, nil
}
func (f *fakeShop) CancelOrder(context.Context, uint64, uint64) (model.Order, error) {
	return model.Order{}, service.ErrOrderNotPending
}

type fakeStarter struct{ err error }

func (f fakeStarter) Initiate(_ context.Context, _, orderID uint64) (payment.Session, error) {
	return payment.Session{ID: "cs_1", URL: "https://pay.test/cs_1"}, f.err
}

type fakeBilling struct {
	payload   string
	signature string
	result    service.CallbackResult
	err       error
}

func (f *fakeBilling) HandleCallback(_ context.Context, payload []byte, sig string) (service.CallbackResult, error) {
	f.payload, f.signature = string(payload), sig
	return f.result, f.err
}
func (f *fakeBilling) Refund(_ context.Context, id uint64) (model.Payment, error) {
	if f.err != nil {
		return model.Payment{}, f.err
	}
	return model.Payment{ID: id, Status: model.PaymentRefunded}, nil
}
func (f *fakeBilling) Payments(context.Context, uint64) ([]model.Payment, error)   { return nil, nil }
func (f *fakeBilling) Purchases(context.Context, uint64) ([]model.Purchase, error) { return nil, nil }

type fakeAdmin struct {
	filter model.OrderFilter
	actor  uint64
}

func (f *fakeAdmin) ActivateByEmail(_ context.Context, email string) error {
	if email == "ghost@example.com" {
		return service.ErrNotFound
	}
	return nil
}
func (f *fakeAdmin) SetRole(_ context.Context, actor uint64, _, _ string) error {
	f.actor = actor
	return nil
}
func (f *fakeAdmin) AllOrders(_ context.Context, flt model.OrderFilter) (service.OrderPage, error) {
	f.filter = flt
	return service.OrderPage{Page: flt.Page, PageSize: flt.PageSize}, nil
}

// ----- tests -----

func TestRegisterValidation(t *testing.T) {
	acc := &fakeAccounts{}
	h := NewAccountHandler(acc)
	e := newEcho()
	e.POST("/accounts/register", h.Register)

	rec := do(e, http.MethodPost, "/accounts/register", `{"email":"a@example.com","password":"weak"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"password"`)
	assert.Empty(t, acc.registered)

	rec = do(e, http.MethodPost, "/accounts/register", `{"email":"not-an-email","password":"Secret@123"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/accounts/register", `{"email":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid body"}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/accounts/register", `{"email":"a@example.com","password":"Secret@123"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"a@example.com"}, acc.registered)

	acc.err = service.ErrEmailTaken
	rec = do(e, http.MethodPost, "/accounts/register", `{"email":"a@example.com","password":"Secret@123"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStrongPassword(t *testing.T) {
	assert.True(t, strongPassword("Secret@123"))
	assert.False(t, strongPassword("Secret123"))
	assert.False(t, strongPassword("secret@123"))
	assert.False(t, strongPassword("S@1a"))
	assert.False(t, strongPassword("Secret@1"+strings.Repeat("x", 30)))
}

func TestTokenErrorStatus(t *testing.T) {
	acc := &fakeAccounts{err: service.ErrInvalidOrExpiredToken}
	h := NewAccountHandler(acc)
	e := newEcho()
	e.POST("/accounts/activate", h.Activate)
	e.GET("/accounts/activate", h.Activate)
	e.POST("/accounts/refresh", h.Refresh)
	e.POST("/accounts/password-reset/complete", h.CompletePasswordReset)

	rec := do(e, http.MethodPost, "/accounts/activate", `{"email":"a@example.com","token":"t"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(e, http.MethodGet, "/accounts/activate?email=a%40example.com&token=t", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(e, http.MethodPost, "/accounts/password-reset/complete",
		`{"email":"a@example.com","token":"t","password":"Secret@123"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/accounts/refresh", `{"refresh_token":"r"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid or expired token"}`, rec.Body.String())

	acc.err = nil
	rec = do(e, http.MethodGet, "/accounts/activate?email=a%40example.com&token=t", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutPassesAccessClaims(t *testing.T) {
	acc := &fakeAccounts{}
	h := NewAccountHandler(acc)
	e := newEcho()
	e.POST("/accounts/logout", h.Logout, middleware.OptionalJWTAuth(testCodec, nil))

	rec := do(e, http.MethodPost, "/accounts/logout", `{"refresh_token":"r"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, acc.logoutJTI)

	tok, err := testCodec.Issue(5, utils.KindAccess, model.RoleUser, time.Minute)
	require.NoError(t, err)
	rec = do(e, http.MethodPost, "/accounts/logout", `{"refresh_token":"r"}`, tok.Token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, tok.Claims.ID, acc.logoutJTI)
}

// A stale access token must not stop the refresh token from being revoked.
func TestLogoutWithExpiredAccessToken(t *testing.T) {
	acc := &fakeAccounts{}
	h := NewAccountHandler(acc)
	e := newEcho()
	e.POST("/accounts/logout", h.Logout, middleware.OptionalJWTAuth(testCodec, nil))

	stale, err := testCodec.Issue(5, utils.KindAccess, model.RoleUser, -time.Minute)
	require.NoError(t, err)
	rec := do(e, http.MethodPost, "/accounts/logout", `{"refresh_token":"r-stale"}`, stale.Token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"r-stale"}, acc.loggedOut)
	assert.Empty(t, acc.logoutJTI)
}

func TestMeRequiresUser(t *testing.T) {
	h := NewAccountHandler(&fakeAccounts{})
	e := newEcho()
	e.GET("/me-unprotected", h.Me)
	e.GET("/me", h.Me, middleware.JWTAuth(testCodec, nil))

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/me-unprotected", "", "").Code)

	rec := do(e, http.MethodGet, "/me", "", bearerFor(t, 3, model.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":3`)
}

func TestCatalogHandler(t *testing.T) {
	cat := &fakeCatalog{movies: map[uint64]model.Movie{
		1: {ID: 1, Name: "Heat", Year: 1995, Price: decimal.NewFromInt(10)},
	}}
	invalidated := 0
	h := NewCatalogHandler(cat, func(context.Context) error { invalidated++; return nil })
	e := newEcho()
	e.GET("/movies", h.List)
	e.GET("/movies/:id", h.Get)
	e.GET("/genres", h.Genres)
	e.POST("/movies", h.Create)
	e.PUT("/movies/:id", h.Update)
	e.DELETE("/movies/:id", h.Delete)

	rec := do(e, http.MethodGet, "/movies?genre=%20Drama%20&sort=-year&page_size=500", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "page_size above the limit")

	rec = do(e, http.MethodGet, "/movies?genre=%20Drama%20&sort=-year", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Drama", cat.lastQ.Genre)
	assert.Equal(t, 20, cat.lastQ.PageSize)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/movies?sort=rating", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/movies/7", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/movies/abc", "", "").Code)
	assert.JSONEq(t, `[{"id":1,"name":"Drama","movies":2}]`, do(e, http.MethodGet, "/genres", "", "").Body.String())

	rec = do(e, http.MethodPost, "/movies", `{"name":"Ran","year":1985,"price":"-1"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, invalidated)

	rec = do(e, http.MethodPost, "/movies", `{"name":"Ran","year":1985,"price":"12.50","genres":["Drama"]}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, invalidated)

	rec = do(e, http.MethodPut, "/movies/1", `{"name":"Heat","year":1995,"price":"20"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, cat.movies[1].Price.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 2, invalidated)

	cat.deleteE = repository.ErrConflict
	assert.Equal(t, http.StatusConflict, do(e, http.MethodDelete, "/movies/1", "", "").Code)
	assert.Equal(t, 2, invalidated)
	cat.deleteE = nil
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/movies/1", "", "").Code)
	assert.Equal(t, 3, invalidated)
}

func TestOrderHandler(t *testing.T) {
	shop := &fakeShop{}
	h := NewOrderHandler(shop, fakeStarter{})
	e := newEcho()
	g := e.Group("", middleware.JWTAuth(testCodec, nil))
	g.GET("/cart", h.Cart)
	g.POST("/cart/items", h.AddToCart)
	g.POST("/orders", h.PlaceOrder)
	g.GET("/orders/:id", h.Get)
	g.POST("/orders/:id/cancel", h.Cancel)
	g.POST("/orders/:id/checkout", h.Checkout)
	tok := bearerFor(t, 4, model.RoleUser)

	rec := do(e, http.MethodGet, "/cart", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[],"total":"0"}`, rec.Body.String())
	assert.Equal(t, uint64(4), shop.cartUser)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/cart/items", `{"movie_id":0}`, tok).Code)
	assert.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/cart/items", `{"movie_id":3}`, tok).Code)

	rec = do(e, http.MethodPost, "/orders", "", tok)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"PENDING"`)

	shop.checkoutErr = service.ErrEmptyCart
	rec = do(e, http.MethodPost, "/orders", "", tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"cart is empty"}`, rec.Body.String())
	shop.checkoutErr = service.ErrAlreadyPurchased
	assert.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/orders", "", tok).Code)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/orders/8", "", tok).Code)
	assert.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/orders/9/cancel", "", tok).Code)

	rec = do(e, http.MethodPost, "/orders/9/checkout", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"order_id":9,"session_id":"cs_1","payment_url":"https://pay.test/cs_1"}`, rec.Body.String())

	h.Payments = fakeStarter{err: service.ErrGatewayUnavailable}
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodPost, "/orders/9/checkout", "", tok).Code)
	h.Payments = fakeStarter{err: service.ErrOrderNotPending}
	assert.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/orders/9/checkout", "", tok).Code)

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/cart", "", "").Code)
}

func TestWebhook(t *testing.T) {
	bill := &fakeBilling{result: service.CallbackResult{Action: service.ActionPaid, OrderID: 9, PaymentID: 2}}
	h := NewPaymentHandler(bill)
	e := newEcho()
	e.POST("/payments/webhook", h.Webhook)

	send := func(body, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(body))
		if sig != "" {
			req.Header.Set(SignatureHeader, sig)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := send(`{"id":"evt_1"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid signature"}`, rec.Body.String())

	rec = send(`{"id":"evt_1"}`, "t=1,v1=abc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"action":"paid","order_id":9,"payment_id":2}`, rec.Body.String())
	assert.Equal(t, `{"id":"evt_1"}`, bill.payload)
	assert.Equal(t, "t=1,v1=abc", bill.signature)

	bill.err = service.ErrInvalidSignature
	assert.Equal(t, http.StatusBadRequest, send(`{}`, "bad").Code)

	rec = send(strings.Repeat("x", maxWebhookBody+1), "t=1")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRefundHandler(t *testing.T) {
	bill := &fakeBilling{}
	h := NewPaymentHandler(bill)
	e := newEcho()
	e.POST("/payments/:id/refund", h.Refund)

	rec := do(e, http.MethodPost, "/payments/5/refund", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"REFUNDED"`)

	bill.err = service.ErrPaymentNotRefundable
	assert.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/payments/5/refund", "", "").Code)
	bill.err = errors.New("boom")
	rec = do(e, http.MethodPost, "/payments/5/refund", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestAdminHandler(t *testing.T) {
	adm := &fakeAdmin{}
	h := NewAdminHandler(adm, adm)
	e := newEcho()
	g := e.Group("/admin", middleware.JWTAuth(testCodec, nil))
	g.POST("/users/activate", h.ActivateUser)
	g.POST("/users/role", h.SetRole)
	g.GET("/orders", h.ListOrders)
	tok := bearerFor(t, 1, model.RoleAdmin)

	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/admin/users/activate", `{"email":"u@example.com"}`, tok).Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/admin/users/activate", `{"email":"ghost@example.com"}`, tok).Code)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/admin/users/role", `{"email":"u@example.com","role":"OWNER"}`, tok).Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/admin/users/role", `{"email":"u@example.com","role":"MODERATOR"}`, tok).Code)
	assert.Equal(t, uint64(1), adm.actor)

	rec := do(e, http.MethodGet, "/admin/orders?user_id=7&status=PAID&from=2024-01-01&to=2024-01-31&page=2", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(7), adm.filter.UserID)
	assert.Equal(t, model.OrderPaid, adm.filter.Status)
	assert.Equal(t, 2, adm.filter.Page)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), adm.filter.From)
	assert.Equal(t, 31, adm.filter.To.Day())
	assert.Equal(t, 23, adm.filter.To.Hour())
	assert.Contains(t, rec.Body.String(), `"orders":[]`)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/admin/orders?status=LOST", "", tok).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/admin/orders?from=2024-02-01&to=2024-01-01", "", tok).Code)
}

func TestProfileRejectsFutureBirthDate(t *testing.T) {
	h := NewProfileHandler(stubProfiles{})
	e := newEcho()
	e.PUT("/profile", h.Update, middleware.JWTAuth(testCodec, nil))
	tok := bearerFor(t, 2, model.RoleUser)

	future := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	rec := do(e, http.MethodPut, "/profile", `{"first_name":"Ann","date_of_birth":"`+future+`"}`, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPut, "/profile", `{"gender":"other"}`, tok).Code)

	rec = do(e, http.MethodPut, "/profile", `{"first_name":"Ann","gender":"woman","date_of_birth":"1990-05-01"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"first_name":"Ann"`)
}

type stubProfiles struct{}

func (stubProfiles) Get(_ context.Context, uid uint64) (model.Profile, error) {
	return model.Profile{UserID: uid}, nil
}
func (stubProfiles) Update(_ context.Context, p model.Profile) (model.Profile, error) { return p, nil }

func TestReady(t *testing.T) {
	e := newEcho()
	e.GET("/ready", Ready(map[string]func(context.Context) error{
		"db":    func(context.Context) error { return nil },
		"redis": nil,
	}))
	e.GET("/ready-bad", Ready(map[string]func(context.Context) error{
		"db": func(context.Context) error { return errors.New("down") },
	}))

	rec := do(e, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"db":"ok"}`, rec.Body.String())
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/ready-bad", "", "").Code)
}
