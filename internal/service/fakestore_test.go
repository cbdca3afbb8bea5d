package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/repository"
)

// memStore is an in-memory repository.Tx backend.  Transactions are
// serialized and roll back by restoring a snapshot, and the unique
// indexes of the schema are enforced the same way MySQL would.
type memStore struct {
	mu  sync.Mutex
	st  *memState
	now func() time.Time
}

type cartEntry struct {
	movieID uint64
	addedAt time.Time
}

type memState struct {
	nextID    uint64
	users     map[uint64]model.User
	profiles  map[uint64]model.Profile
	tokens    map[uint64]model.Token
	movies    map[uint64]model.Movie
	carts     map[uint64]bool // by user id
	cartItems map[uint64][]cartEntry
	orders    map[uint64]model.Order
	payments  map[uint64]model.Payment
	purchases map[[2]uint64]model.Purchase
}

func newMemStore() *memStore {
	return &memStore{
		now: time.Now,
		st: &memState{
			users:     map[uint64]model.User{},
			profiles:  map[uint64]model.Profile{},
			tokens:    map[uint64]model.Token{},
			movies:    map[uint64]model.Movie{},
			carts:     map[uint64]bool{},
			cartItems: map[uint64][]cartEntry{},
			orders:    map[uint64]model.Order{},
			payments:  map[uint64]model.Payment{},
			purchases: map[[2]uint64]model.Purchase{},
		},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:    s.nextID,
		users:     make(map[uint64]model.User, len(s.users)),
		profiles:  make(map[uint64]model.Profile, len(s.profiles)),
		tokens:    make(map[uint64]model.Token, len(s.tokens)),
		movies:    make(map[uint64]model.Movie, len(s.movies)),
		carts:     make(map[uint64]bool, len(s.carts)),
		cartItems: make(map[uint64][]cartEntry, len(s.cartItems)),
		orders:    make(map[uint64]model.Order, len(s.orders)),
		payments:  make(map[uint64]model.Payment, len(s.payments)),
		purchases: make(map[[2]uint64]model.Purchase, len(s.purchases)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.movies {
		c.movies[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = append([]cartEntry(nil), v...)
	}
	for k, v := range s.orders {
		v.Items = append([]model.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.payments {
		v.Items = append([]model.PaymentItem(nil), v.Items...)
		c.payments[k] = v
	}
	for k, v := range s.purchases {
		c.purchases[k] = v
	}
	return c
}

func (s *memState) id() uint64 {
	s.nextID++
	return s.nextID
}

func (m *memStore) WithinTx(ctx context.Context, fn func(repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.st.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.st = snap
		return err
	}
	return nil
}

// addMovie seeds the catalog outside of any transaction.
func (m *memStore) addMovie(name, price string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.st.id()
	m.st.movies[id] = model.Movie{ID: id, Name: name, Year: 2000, Price: decimal.RequireFromString(price)}
	return id
}

func (m *memStore) setPrice(movieID uint64, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv := m.st.movies[movieID]
	mv.Price = decimal.RequireFromString(price)
	m.st.movies[movieID] = mv
}

func (m *memStore) tokensOf(userID uint64, purpose model.Purpose) []model.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Token
	for _, t := range m.st.tokens {
		if t.UserID == userID && t.Purpose == purpose {
			out = append(out, t)
		}
	}
	return out
}

func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.clone()
}

type memTx struct{ m *memStore }

func (t *memTx) s() *memState { return t.m.st }

// ---- users

func (t *memTx) CreateUser(_ context.Context, email, hash, role string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range t.s().users {
		if u.Email == email {
			return model.User{}, repository.ErrEmailExists
		}
	}
	now := t.m.now()
	u := model.User{ID: t.s().id(), Email: email, PasswordHash: hash, Role: role, CreatedAt: now, UpdatedAt: now}
	t.s().users[u.ID] = u
	return u, nil
}

func (t *memTx) UserByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := t.s().users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (t *memTx) UserByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range t.s().users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (t *memTx) updateUser(id uint64, fn func(*model.User)) error {
	u, ok := t.s().users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&u)
	t.s().users[id] = u
	return nil
}

func (t *memTx) SetUserActive(_ context.Context, id uint64, active bool) error {
	return t.updateUser(id, func(u *model.User) { u.IsActive = active })
}

func (t *memTx) SetUserPassword(_ context.Context, id uint64, hash string) error {
	return t.updateUser(id, func(u *model.User) { u.PasswordHash = hash })
}

func (t *memTx) SetUserRole(_ context.Context, id uint64, role string) error {
	return t.updateUser(id, func(u *model.User) { u.Role = role })
}

func (t *memTx) CreateProfile(_ context.Context, userID uint64) error {
	if _, ok := t.s().profiles[userID]; !ok {
		t.s().profiles[userID] = model.Profile{UserID: userID}
	}
	return nil
}

func (t *memTx) ProfileByUser(_ context.Context, userID uint64) (model.Profile, error) {
	p, ok := t.s().profiles[userID]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	return p, nil
}

func (t *memTx) UpdateProfile(_ context.Context, p model.Profile) error {
	p.UpdatedAt = t.m.now()
	t.s().profiles[p.UserID] = p
	return nil
}

// ---- tokens

func (t *memTx) UpsertToken(_ context.Context, tok model.Token) (model.Token, error) {
	for _, x := range t.s().tokens {
		if x.TokenHash == tok.TokenHash && (x.UserID != tok.UserID || x.Purpose != tok.Purpose) {
			return model.Token{}, repository.ErrDuplicate
		}
	}
	tok.ID = 0
	for id, x := range t.s().tokens {
		if x.UserID == tok.UserID && x.Purpose == tok.Purpose {
			tok.ID = id
		}
	}
	if tok.ID == 0 {
		tok.ID = t.s().id()
	}
	tok.RevokedAt = nil
	tok.CreatedAt = t.m.now()
	t.s().tokens[tok.ID] = tok
	return tok, nil
}

func (t *memTx) DeleteUserTokens(_ context.Context, userID uint64, purpose model.Purpose) (int64, error) {
	var n int64
	for id, x := range t.s().tokens {
		if x.UserID == userID && x.Purpose == purpose {
			delete(t.s().tokens, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) TokenByHash(_ context.Context, hash string, purpose model.Purpose) (model.Token, error) {
	for _, x := range t.s().tokens {
		if x.TokenHash == hash && x.Purpose == purpose {
			return x, nil
		}
	}
	return model.Token{}, repository.ErrNotFound
}

func (t *memTx) DeleteToken(_ context.Context, id uint64) error {
	if _, ok := t.s().tokens[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.s().tokens, id)
	return nil
}

func (t *memTx) RevokeToken(_ context.Context, id uint64, at time.Time) (bool, error) {
	x, ok := t.s().tokens[id]
	if !ok || x.RevokedAt != nil {
		return false, nil
	}
	x.RevokedAt = &at
	t.s().tokens[id] = x
	return true, nil
}

func (t *memTx) RevokeUserTokens(_ context.Context, userID uint64, purpose model.Purpose, at time.Time) (int64, error) {
	var n int64
	for id, x := range t.s().tokens {
		if x.UserID == userID && x.Purpose == purpose && x.RevokedAt == nil {
			x.RevokedAt = &at
			t.s().tokens[id] = x
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, x := range t.s().tokens {
		if x.ExpiresAt.Before(now) {
			delete(t.s().tokens, id)
			n++
		}
	}
	return n, nil
}

// ---- cart

func (t *memTx) CreateCart(_ context.Context, userID uint64) error {
	t.s().carts[userID] = true
	return nil
}

func (t *memTx) LockCart(_ context.Context, userID uint64) (uint64, error) {
	if !t.s().carts[userID] {
		return 0, repository.ErrNotFound
	}
	return userID, nil
}

func (t *memTx) CartItems(_ context.Context, userID uint64) ([]model.CartItem, error) {
	out := []model.CartItem{}
	for _, e := range t.s().cartItems[userID] {
		mv := t.s().movies[e.movieID]
		out = append(out, model.CartItem{MovieID: e.movieID, MovieName: mv.Name, Price: mv.Price, AddedAt: e.addedAt})
	}
	return out, nil
}

func (t *memTx) AddCartItem(_ context.Context, userID, movieID uint64) error {
	if !t.s().carts[userID] {
		return repository.ErrNotFound
	}
	for _, e := range t.s().cartItems[userID] {
		if e.movieID == movieID {
			return repository.ErrDuplicate
		}
	}
	t.s().cartItems[userID] = append(t.s().cartItems[userID], cartEntry{movieID: movieID, addedAt: t.m.now()})
	return nil
}

func (t *memTx) RemoveCartItem(ctx context.Context, userID, movieID uint64) error {
	n, _ := t.RemoveCartItems(ctx, userID, []uint64{movieID})
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *memTx) RemoveCartItems(_ context.Context, userID uint64, movieIDs []uint64) (int64, error) {
	drop := map[uint64]bool{}
	for _, id := range movieIDs {
		drop[id] = true
	}
	var (
		kept []cartEntry
		n    int64
	)
	for _, e := range t.s().cartItems[userID] {
		if drop[e.movieID] {
			n++
			continue
		}
		kept = append(kept, e)
	}
	t.s().cartItems[userID] = kept
	return n, nil
}

func (t *memTx) ClearCart(_ context.Context, userID uint64) (int64, error) {
	n := int64(len(t.s().cartItems[userID]))
	delete(t.s().cartItems, userID)
	return n, nil
}

func (t *memTx) MovieByID(_ context.Context, id uint64) (model.Movie, error) {
	mv, ok := t.s().movies[id]
	if !ok {
		return model.Movie{}, repository.ErrNotFound
	}
	return mv, nil
}

// ---- orders

func (t *memTx) CreateOrder(_ context.Context, o model.Order) (model.Order, error) {
	seen := map[uint64]bool{}
	o.ID = t.s().id()
	o.CreatedAt, o.UpdatedAt = t.m.now(), t.m.now()
	o.Items = append([]model.OrderItem(nil), o.Items...)
	for i := range o.Items {
		if seen[o.Items[i].MovieID] {
			return model.Order{}, repository.ErrDuplicate
		}
		seen[o.Items[i].MovieID] = true
		o.Items[i].ID = t.s().id()
		o.Items[i].OrderID = o.ID
	}
	t.s().orders[o.ID] = o
	return t.copyOrder(o), nil
}

func (t *memTx) copyOrder(o model.Order) model.Order {
	o.Items = append([]model.OrderItem(nil), o.Items...)
	return o
}

func (t *memTx) OrderByID(_ context.Context, id uint64, _ bool) (model.Order, error) {
	o, ok := t.s().orders[id]
	if !ok {
		return model.Order{}, repository.ErrNotFound
	}
	return t.copyOrder(o), nil
}

func (t *memTx) PendingOrderMovieIDs(_ context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	for _, o := range t.s().orders {
		if o.UserID == userID && o.Status == model.OrderPending {
			ids = append(ids, o.MovieIDs()...)
		}
	}
	return ids, nil
}

func (t *memTx) SetOrderStatus(_ context.Context, id uint64, status string) error {
	o, ok := t.s().orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = t.m.now()
	t.s().orders[id] = o
	return nil
}

func (t *memTx) AttachCheckoutSession(_ context.Context, id uint64, sessionID, url string) (bool, error) {
	o, ok := t.s().orders[id]
	if !ok || o.Status != model.OrderPending || o.CheckoutSessionID != "" {
		return false, nil
	}
	o.CheckoutSessionID, o.CheckoutURL = sessionID, url
	t.s().orders[id] = o
	return true, nil
}

func (t *memTx) sortedOrders(keep func(model.Order) bool) []model.Order {
	out := []model.Order{}
	for _, o := range t.s().orders {
		if keep(o) {
			out = append(out, t.copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (t *memTx) OrdersByUser(_ context.Context, userID uint64) ([]model.Order, error) {
	return t.sortedOrders(func(o model.Order) bool { return o.UserID == userID }), nil
}

func (t *memTx) Orders(_ context.Context, f model.OrderFilter) ([]model.Order, int64, error) {
	all := t.sortedOrders(func(o model.Order) bool {
		return (f.UserID == 0 || o.UserID == f.UserID) &&
			(f.Status == "" || o.Status == f.Status) &&
			(f.From.IsZero() || !o.CreatedAt.Before(f.From)) &&
			(f.To.IsZero() || o.CreatedAt.Before(f.To))
	})
	start := (f.Page - 1) * f.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

// ---- payments

func (t *memTx) CreatePayment(_ context.Context, p model.Payment) (model.Payment, error) {
	for _, x := range t.s().payments {
		if x.ExternalPaymentID == p.ExternalPaymentID {
			return model.Payment{}, repository.ErrDuplicate
		}
	}
	p.ID = t.s().id()
	p.CreatedAt, p.UpdatedAt = t.m.now(), t.m.now()
	p.Items = append([]model.PaymentItem(nil), p.Items...)
	for i := range p.Items {
		p.Items[i].ID = t.s().id()
		p.Items[i].PaymentID = p.ID
	}
	t.s().payments[p.ID] = p
	return p, nil
}

func (t *memTx) PaymentByID(_ context.Context, id uint64, _ bool) (model.Payment, error) {
	p, ok := t.s().payments[id]
	if !ok {
		return model.Payment{}, repository.ErrNotFound
	}
	return p, nil
}

func (t *memTx) PaymentByExternalID(_ context.Context, ext string) (model.Payment, error) {
	for _, p := range t.s().payments {
		if p.ExternalPaymentID == ext {
			return p, nil
		}
	}
	return model.Payment{}, repository.ErrNotFound
}

func (t *memTx) UpdatePaymentStatus(_ context.Context, id uint64, from, to string) (bool, error) {
	p, ok := t.s().payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	t.s().payments[id] = p
	return true, nil
}

func (t *memTx) PaymentsByUser(_ context.Context, userID uint64) ([]model.Payment, error) {
	out := []model.Payment{}
	for _, p := range t.s().payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (t *memTx) PurchasedMovieIDs(_ context.Context, userID uint64, movieIDs []uint64) ([]uint64, error) {
	out := []uint64{}
	for _, id := range movieIDs {
		if _, ok := t.s().purchases[[2]uint64{userID, id}]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t *memTx) InsertPurchase(_ context.Context, userID, movieID uint64) (bool, error) {
	key := [2]uint64{userID, movieID}
	if _, ok := t.s().purchases[key]; ok {
		return false, nil
	}
	t.s().purchases[key] = model.Purchase{
		ID: t.s().id(), UserID: userID, MovieID: movieID,
		MovieName: t.s().movies[movieID].Name, PurchasedAt: t.m.now(),
	}
	return true, nil
}

func (t *memTx) Purchases(_ context.Context, userID uint64) ([]model.Purchase, error) {
	out := []model.Purchase{}
	for k, p := range t.s().purchases {
		if k[0] == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ repository.Tx = (*memTx)(nil)
