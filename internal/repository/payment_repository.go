package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/online-cinema/internal/model"
)

// PaymentTx persists payments, payment items and the purchases they grant.
type PaymentTx interface {
	CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error)
	PaymentByID(ctx context.Context, id uint64, forUpdate bool) (model.Payment, error)
	PaymentByExternalID(ctx context.Context, externalID string) (model.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id uint64, from, to string) (bool, error)
	PaymentsByUser(ctx context.Context, userID uint64) ([]model.Payment, error)

	PurchasedMovieIDs(ctx context.Context, userID uint64, movieIDs []uint64) ([]uint64, error)
	InsertPurchase(ctx context.Context, userID, movieID uint64) (bool, error)
	Purchases(ctx context.Context, userID uint64) ([]model.Purchase, error)
}

const paymentColumns = "id, user_id, order_id, status, amount, external_payment_id, created_at, updated_at"

// CreatePayment inserts the payment and its items.  A reused external
// payment id yields ErrDuplicate, which is how duplicate gateway
// callbacks are detected.
func (t *sqlTx) CreatePayment(ctx context.Context, p model.Payment) (model.Payment, error) {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO payments (user_id, order_id, status, amount, external_payment_id) VALUES (?,?,?,?,?)",
		p.UserID, p.OrderID, p.Status, p.Amount, p.ExternalPaymentID)
	if err != nil {
		if isDuplicate(err) {
			return model.Payment{}, ErrDuplicate
		}
		return model.Payment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Payment{}, err
	}
	p.ID = uint64(id)

	for i := range p.Items {
		it := &p.Items[i]
		it.PaymentID = p.ID
		res, err := t.tx.ExecContext(ctx,
			"INSERT INTO payment_items (payment_id, order_item_id, price_at_payment) VALUES (?,?,?)",
			p.ID, it.OrderItemID, it.PriceAtPayment)
		if err != nil {
			return model.Payment{}, err
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return model.Payment{}, err
		}
		it.ID = uint64(itemID)
	}
	return p, nil
}

// PaymentByID loads a payment with its items.
func (t *sqlTx) PaymentByID(ctx context.Context, id uint64, forUpdate bool) (model.Payment, error) {
	q := "SELECT " + paymentColumns + " FROM payments WHERE id=?"
	if forUpdate {
		q += " FOR UPDATE"
	}
	return t.loadPayment(ctx, t.tx.QueryRowContext(ctx, q, id))
}

// PaymentByExternalID looks a payment up by the gateway's id.
func (t *sqlTx) PaymentByExternalID(ctx context.Context, externalID string) (model.Payment, error) {
	return t.loadPayment(ctx, t.tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE external_payment_id=?", externalID))
}

func (t *sqlTx) loadPayment(ctx context.Context, row *sql.Row) (model.Payment, error) {
	var p model.Payment
	if err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.Status, &p.Amount, &p.ExternalPaymentID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Payment{}, notFound(err)
	}
	rows, err := t.tx.QueryContext(ctx,
		"SELECT id, payment_id, order_item_id, price_at_payment FROM payment_items WHERE payment_id=? ORDER BY id", p.ID)
	if err != nil {
		return model.Payment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it model.PaymentItem
		if err := rows.Scan(&it.ID, &it.PaymentID, &it.OrderItemID, &it.PriceAtPayment); err != nil {
			return model.Payment{}, err
		}
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

// UpdatePaymentStatus moves a payment from one status to another.  It
// reports false when the payment was not in status from.
func (t *sqlTx) UpdatePaymentStatus(ctx context.Context, id uint64, from, to string) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE payments SET status=? WHERE id=? AND status=?", to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PaymentsByUser lists the user's payments, newest first, without items.
func (t *sqlTx) PaymentsByUser(ctx context.Context, userID uint64) ([]model.Payment, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE user_id=? ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Payment{}
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.UserID, &p.OrderID, &p.Status, &p.Amount, &p.ExternalPaymentID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PurchasedMovieIDs returns the subset of movieIDs the user already owns.
func (t *sqlTx) PurchasedMovieIDs(ctx context.Context, userID uint64, movieIDs []uint64) ([]uint64, error) {
	if len(movieIDs) == 0 {
		return []uint64{}, nil
	}
	args := append([]any{userID}, idArgs(movieIDs)...)
	rows, err := t.tx.QueryContext(ctx,
		"SELECT movie_id FROM purchases WHERE user_id=? AND movie_id IN ("+placeholders(len(movieIDs))+")",
		args...)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// InsertPurchase grants the movie to the user.  It reports false when the
// user already owned it.
func (t *sqlTx) InsertPurchase(ctx context.Context, userID, movieID uint64) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"INSERT IGNORE INTO purchases (user_id, movie_id) VALUES (?,?)", userID, movieID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Purchases lists the movies the user owns, newest first.
func (t *sqlTx) Purchases(ctx context.Context, userID uint64) ([]model.Purchase, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT p.id, p.user_id, p.movie_id, m.name, p.purchased_at
		  FROM purchases p
		  JOIN movies m ON m.id = p.movie_id
		 WHERE p.user_id = ?
		 ORDER BY p.purchased_at DESC, p.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Purchase{}
	for rows.Next() {
		var p model.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.MovieID, &p.MovieName, &p.PurchasedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
