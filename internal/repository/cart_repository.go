package repository

import (
	"context"

	"github.com/iliyamo/online-cinema/internal/model"
)

// CartTx covers carts, cart_items and the movie lookups the cart needs.
type CartTx interface {
	CreateCart(ctx context.Context, userID uint64) error
	LockCart(ctx context.Context, userID uint64) (uint64, error)
	CartItems(ctx context.Context, userID uint64) ([]model.CartItem, error)
	AddCartItem(ctx context.Context, userID, movieID uint64) error
	RemoveCartItem(ctx context.Context, userID, movieID uint64) error
	RemoveCartItems(ctx context.Context, userID uint64, movieIDs []uint64) (int64, error)
	ClearCart(ctx context.Context, userID uint64) (int64, error)
	MovieByID(ctx context.Context, id uint64) (model.Movie, error)
}

// CreateCart creates the user's cart if it does not exist yet.
func (t *sqlTx) CreateCart(ctx context.Context, userID uint64) error {
	_, err := t.tx.ExecContext(ctx, "INSERT IGNORE INTO carts (user_id) VALUES (?)", userID)
	return err
}

// LockCart takes a row lock on the user's cart and returns its id.
// Concurrent checkouts of the same cart serialize on this lock.
func (t *sqlTx) LockCart(ctx context.Context, userID uint64) (uint64, error) {
	var id uint64
	err := t.tx.QueryRowContext(ctx,
		"SELECT id FROM carts WHERE user_id=? FOR UPDATE", userID).Scan(&id)
	return id, notFound(err)
}

// CartItems lists the cart with each movie's current price, oldest first.
func (t *sqlTx) CartItems(ctx context.Context, userID uint64) ([]model.CartItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT ci.movie_id, m.name, m.price, ci.added_at
		  FROM cart_items ci
		  JOIN carts c  ON c.id = ci.cart_id
		  JOIN movies m ON m.id = ci.movie_id
		 WHERE c.user_id = ?
		 ORDER BY ci.added_at, ci.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CartItem{}
	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.MovieID, &it.MovieName, &it.Price, &it.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddCartItem puts a movie in the cart.  A movie already in the cart
// yields ErrDuplicate; a missing cart yields ErrNotFound.
func (t *sqlTx) AddCartItem(ctx context.Context, userID, movieID uint64) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, movie_id)
		SELECT id, ? FROM carts WHERE user_id = ?`, movieID, userID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveCartItem removes one movie; ErrNotFound if it was not in the cart.
func (t *sqlTx) RemoveCartItem(ctx context.Context, userID, movieID uint64) error {
	res, err := t.tx.ExecContext(ctx, `
		DELETE ci FROM cart_items ci
		  JOIN carts c ON c.id = ci.cart_id
		 WHERE c.user_id = ? AND ci.movie_id = ?`, userID, movieID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveCartItems removes the listed movies and ignores the ones that
// are no longer in the cart.
func (t *sqlTx) RemoveCartItems(ctx context.Context, userID uint64, movieIDs []uint64) (int64, error) {
	if len(movieIDs) == 0 {
		return 0, nil
	}
	args := append([]any{userID}, idArgs(movieIDs)...)
	res, err := t.tx.ExecContext(ctx, `
		DELETE ci FROM cart_items ci
		  JOIN carts c ON c.id = ci.cart_id
		 WHERE c.user_id = ? AND ci.movie_id IN (`+placeholders(len(movieIDs))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ClearCart empties the user's cart.
func (t *sqlTx) ClearCart(ctx context.Context, userID uint64) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE ci FROM cart_items ci
		  JOIN carts c ON c.id = ci.cart_id
		 WHERE c.user_id = ?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MovieByID returns the scalar columns of a movie (no genres, stars or
// directors).
func (t *sqlTx) MovieByID(ctx context.Context, id uint64) (model.Movie, error) {
	var m model.Movie
	err := t.tx.QueryRowContext(ctx,
		"SELECT id, uuid, name, year, price FROM movies WHERE id=?", id).
		Scan(&m.ID, &m.UUID, &m.Name, &m.Year, &m.Price)
	return m, notFound(err)
}
