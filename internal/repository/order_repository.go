package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/online-cinema/internal/model"
)

// OrderTx persists orders and their item snapshots.
type OrderTx interface {
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	OrderByID(ctx context.Context, id uint64, forUpdate bool) (model.Order, error)
	PendingOrderMovieIDs(ctx context.Context, userID uint64) ([]uint64, error)
	SetOrderStatus(ctx context.Context, id uint64, status string) error
	AttachCheckoutSession(ctx context.Context, id uint64, sessionID, url string) (bool, error)
	OrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error)
	Orders(ctx context.Context, f model.OrderFilter) ([]model.Order, int64, error)
}

const orderColumns = "id, user_id, status, total_amount, created_at, updated_at, " +
	"COALESCE(checkout_session_id, ''), COALESCE(checkout_url, '')"

// CreateOrder inserts the order row and one order_items row per item.
// The returned order carries the generated ids.
func (t *sqlTx) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO orders (user_id, status, total_amount) VALUES (?,?,?)",
		o.UserID, o.Status, o.Total)
	if err != nil {
		return model.Order{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Order{}, err
	}
	o.ID = uint64(id)

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		res, err := t.tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, movie_id, price) VALUES (?,?,?)",
			o.ID, it.MovieID, it.Price)
		if err != nil {
			if isDuplicate(err) {
				return model.Order{}, ErrDuplicate
			}
			return model.Order{}, err
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return model.Order{}, err
		}
		it.ID = uint64(itemID)
	}
	return t.OrderByID(ctx, o.ID, false)
}

// OrderByID loads an order with its items.  forUpdate locks the order row
// until the transaction ends.
func (t *sqlTx) OrderByID(ctx context.Context, id uint64, forUpdate bool) (model.Order, error) {
	q := "SELECT " + orderColumns + " FROM orders WHERE id=?"
	if forUpdate {
		q += " FOR UPDATE"
	}
	var o model.Order
	err := t.tx.QueryRowContext(ctx, q, id).Scan(orderDest(&o)...)
	if err != nil {
		return model.Order{}, notFound(err)
	}
	items, err := t.orderItems(ctx, []uint64{o.ID})
	if err != nil {
		return model.Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

// PendingOrderMovieIDs returns the movies sitting in any PENDING order of
// the user.
func (t *sqlTx) PendingOrderMovieIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT DISTINCT oi.movie_id
		  FROM order_items oi
		  JOIN orders o ON o.id = oi.order_id
		 WHERE o.user_id = ? AND o.status = ?`, userID, model.OrderPending)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// SetOrderStatus updates the order status; ErrNotFound if the order is gone.
func (t *sqlTx) SetOrderStatus(ctx context.Context, id uint64, status string) error {
	res, err := t.tx.ExecContext(ctx, "UPDATE orders SET status=? WHERE id=?", status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists uint64
	return notFound(t.tx.QueryRowContext(ctx, "SELECT id FROM orders WHERE id=?", id).Scan(&exists))
}

// AttachCheckoutSession records the gateway checkout of a PENDING order
// that has none yet.  It reports false when the order already carries a
// session or is no longer pending.
func (t *sqlTx) AttachCheckoutSession(ctx context.Context, id uint64, sessionID, url string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET checkout_session_id=?, checkout_url=?
		 WHERE id=? AND status=? AND checkout_session_id IS NULL`,
		sessionID, url, id, model.OrderPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// OrdersByUser lists the user's orders, newest first.
func (t *sqlTx) OrdersByUser(ctx context.Context, userID uint64) ([]model.Order, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id=? ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	return t.collectOrders(ctx, rows)
}

// Orders is the filtered, paginated listing for staff.  It returns the
// page and the total number of matching orders.
func (t *sqlTx) Orders(ctx context.Context, f model.OrderFilter) ([]model.Order, int64, error) {
	where := []string{}
	args := []any{}
	if f.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, f.To.UTC())
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	dataArgs := append(append([]any{}, args...), size, (page-1)*size)
	rows, err := t.tx.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE "+cond+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	out, err := t.collectOrders(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (t *sqlTx) collectOrders(ctx context.Context, rows *sql.Rows) ([]model.Order, error) {
	out, err := scanOrders(rows)
	if err != nil || len(out) == 0 {
		return out, err
	}

	ids := make([]uint64, len(out))
	for i, o := range out {
		ids[i] = o.ID
	}
	items, err := t.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

// orderItems loads the items of several orders keyed by order id.
func (t *sqlTx) orderItems(ctx context.Context, orderIDs []uint64) (map[uint64][]model.OrderItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.movie_id, m.name, oi.price
		  FROM order_items oi
		  JOIN movies m ON m.id = oi.movie_id
		 WHERE oi.order_id IN (`+placeholders(len(orderIDs))+`)
		 ORDER BY oi.id`, idArgs(orderIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint64][]model.OrderItem, len(orderIDs))
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MovieID, &it.MovieName, &it.Price); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

// orderDest lists the scan targets matching orderColumns.
func orderDest(o *model.Order) []any {
	return []any{&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt,
		&o.CheckoutSessionID, &o.CheckoutURL}
}

func scanOrders(rows *sql.Rows) ([]model.Order, error) {
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(orderDest(&o)...); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]uint64, error) {
	defer rows.Close()
	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
