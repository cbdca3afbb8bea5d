package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/repository"
	"github.com/iliyamo/online-cinema/internal/utils"
)

// Ledger issues, consumes and revokes the server-side tokens.  Only the
// SHA-256 of a token is stored.  All methods run inside the caller's
// transaction; the unique (user_id, purpose) index guarantees at most one
// live token per user and purpose even under concurrent requests.
type Ledger struct {
	now func() time.Time
}

func NewLedger() *Ledger { return &Ledger{now: time.Now} }

// CreateSingleUse replaces the user's token for purpose with a fresh one
// valid for ttl and returns the raw value.  A hash collision with another
// live token yields ErrDuplicateToken.
func (l *Ledger) CreateSingleUse(ctx context.Context, tx repository.TokenTx, userID uint64, purpose model.Purpose, ttl time.Duration) (string, model.Token, error) {
	raw, err := utils.NewOpaqueToken()
	if err != nil {
		return "", model.Token{}, fmt.Errorf("generate token: %w", err)
	}
	tok, err := l.replace(ctx, tx, userID, purpose, raw, l.now().Add(ttl))
	if err != nil {
		return "", model.Token{}, err
	}
	return raw, tok, nil
}

// StoreRefresh records a refresh JWT for the user, replacing the previous
// one.  One refresh token per user means one session per user.
func (l *Ledger) StoreRefresh(ctx context.Context, tx repository.TokenTx, userID uint64, raw string, expiresAt time.Time) (model.Token, error) {
	return l.replace(ctx, tx, userID, model.PurposeRefresh, raw, expiresAt)
}

func (l *Ledger) replace(ctx context.Context, tx repository.TokenTx, userID uint64, purpose model.Purpose, raw string, expiresAt time.Time) (model.Token, error) {
	tok, err := tx.UpsertToken(ctx, model.Token{
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: utils.HashToken(raw),
		ExpiresAt: expiresAt,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return model.Token{}, ErrDuplicateToken
	}
	if err != nil {
		return model.Token{}, fmt.Errorf("store %s token: %w", purpose, err)
	}
	return tok, nil
}

// Consume locks the token, deletes it and returns its owner.  An expired
// token is deleted as well and reported as ErrTokenExpired; the caller
// has to commit for that deletion to stick.  Consuming the same value
// twice yields ErrTokenNotFound.
func (l *Ledger) Consume(ctx context.Context, tx repository.TokenTx, raw string, purpose model.Purpose) (uint64, error) {
	tok, err := l.lookup(ctx, tx, raw, purpose)
	if err != nil {
		return 0, err
	}
	if err := tx.DeleteToken(ctx, tok.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrTokenNotFound
		}
		return 0, err
	}
	if tok.Expired(l.now()) {
		return 0, ErrTokenExpired
	}
	return tok.UserID, nil
}

// CheckRefresh returns the ledger row of a refresh token that is neither
// revoked nor expired.
func (l *Ledger) CheckRefresh(ctx context.Context, tx repository.TokenTx, raw string) (model.Token, error) {
	tok, err := l.lookup(ctx, tx, raw, model.PurposeRefresh)
	if err != nil {
		return model.Token{}, err
	}
	if tok.RevokedAt != nil {
		return model.Token{}, ErrTokenRevoked
	}
	if tok.Expired(l.now()) {
		return model.Token{}, ErrTokenExpired
	}
	return tok, nil
}

// Revoke marks a refresh token as revoked and returns its row.
func (l *Ledger) Revoke(ctx context.Context, tx repository.TokenTx, raw string) (model.Token, error) {
	tok, err := l.lookup(ctx, tx, raw, model.PurposeRefresh)
	if err != nil {
		return model.Token{}, err
	}
	ok, err := tx.RevokeToken(ctx, tok.ID, l.now())
	if err != nil {
		return model.Token{}, err
	}
	if !ok {
		return model.Token{}, ErrTokenRevoked
	}
	return tok, nil
}

// RevokeAll revokes every live token of the user for purpose.
func (l *Ledger) RevokeAll(ctx context.Context, tx repository.TokenTx, userID uint64, purpose model.Purpose) (int64, error) {
	return tx.RevokeUserTokens(ctx, userID, purpose, l.now())
}

// Sweep deletes every expired row.  Correctness never depends on it.
func (l *Ledger) Sweep(ctx context.Context, tx repository.TokenTx) (int64, error) {
	return tx.DeleteExpiredTokens(ctx, l.now())
}

func (l *Ledger) lookup(ctx context.Context, tx repository.TokenTx, raw string, purpose model.Purpose) (model.Token, error) {
	if raw == "" {
		return model.Token{}, ErrTokenNotFound
	}
	tok, err := tx.TokenByHash(ctx, utils.HashToken(raw), purpose)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Token{}, ErrTokenNotFound
	}
	return tok, err
}

// tokenFailure reports whether err is one of the ledger rejections that
// are surfaced to clients as ErrInvalidOrExpiredToken.
func tokenFailure(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, utils.ErrInvalidToken) ||
		errors.Is(err, utils.ErrExpiredToken)
}
