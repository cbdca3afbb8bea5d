package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/online-cinema/internal/model"
)

// TokenTx persists the token ledger (single `tokens` table, one row per
// user and purpose, hashed values only).
type TokenTx interface {
	UpsertToken(ctx context.Context, tok model.Token) (model.Token, error)
	DeleteUserTokens(ctx context.Context, userID uint64, purpose model.Purpose) (int64, error)
	TokenByHash(ctx context.Context, tokenHash string, purpose model.Purpose) (model.Token, error)
	DeleteToken(ctx context.Context, id uint64) error
	RevokeToken(ctx context.Context, id uint64, at time.Time) (bool, error)
	RevokeUserTokens(ctx context.Context, userID uint64, purpose model.Purpose, at time.Time) (int64, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// UpsertToken stores tok as the user's only row for its purpose.  An
// existing row is overwritten in place and un-revoked, so concurrent
// issuers never need a delete first.  A hash already held by another
// (user, purpose) row yields ErrDuplicate.
func (t *sqlTx) UpsertToken(ctx context.Context, tok model.Token) (model.Token, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO tokens (user_id, purpose, token_hash, expires_at) VALUES (?,?,?,?)
		ON DUPLICATE KEY UPDATE
		    id = LAST_INSERT_ID(id),
		    token_hash = VALUES(token_hash),
		    expires_at = VALUES(expires_at),
		    revoked_at = NULL,
		    created_at = CURRENT_TIMESTAMP`,
		tok.UserID, string(tok.Purpose), tok.TokenHash, tok.ExpiresAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return model.Token{}, ErrDuplicate
		}
		return model.Token{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Token{}, err
	}
	// the hash index may have matched another owner's row
	var owner uint64
	var purpose string
	if err := t.tx.QueryRowContext(ctx, "SELECT user_id, purpose FROM tokens WHERE id=?", id).
		Scan(&owner, &purpose); err != nil {
		return model.Token{}, notFound(err)
	}
	if owner != tok.UserID || purpose != string(tok.Purpose) {
		return model.Token{}, ErrDuplicate
	}
	tok.ID = uint64(id)
	return tok, nil
}

// DeleteUserTokens removes the user's row for purpose, if any.
func (t *sqlTx) DeleteUserTokens(ctx context.Context, userID uint64, purpose model.Purpose) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM tokens WHERE user_id=? AND purpose=?", userID, string(purpose))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TokenByHash locks and returns the row matching hash and purpose.
func (t *sqlTx) TokenByHash(ctx context.Context, tokenHash string, purpose model.Purpose) (model.Token, error) {
	var (
		tok       model.Token
		p         string
		revokedAt sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, user_id, purpose, token_hash, expires_at, revoked_at, created_at
		   FROM tokens WHERE token_hash=? AND purpose=? LIMIT 1 FOR UPDATE`,
		tokenHash, string(purpose)).Scan(&tok.ID, &tok.UserID, &p, &tok.TokenHash, &tok.ExpiresAt, &revokedAt, &tok.CreatedAt)
	if err != nil {
		return model.Token{}, notFound(err)
	}
	tok.Purpose = model.Purpose(p)
	if revokedAt.Valid {
		at := revokedAt.Time
		tok.RevokedAt = &at
	}
	return tok, nil
}

// DeleteToken deletes one row by id; a missing row is ErrNotFound.
func (t *sqlTx) DeleteToken(ctx context.Context, id uint64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM tokens WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeToken marks a token as revoked.  It reports false when the token
// was already revoked.
func (t *sqlTx) RevokeToken(ctx context.Context, id uint64, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE tokens SET revoked_at=? WHERE id=? AND revoked_at IS NULL", at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RevokeUserTokens revokes every live token of the user for purpose.
func (t *sqlTx) RevokeUserTokens(ctx context.Context, userID uint64, purpose model.Purpose, at time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE tokens SET revoked_at=? WHERE user_id=? AND purpose=? AND revoked_at IS NULL",
		at.UTC(), userID, string(purpose))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredTokens removes every row whose expiry has passed.
func (t *sqlTx) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM tokens WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
