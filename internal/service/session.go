package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/online-cinema/internal/email"
	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/repository"
	"github.com/iliyamo/online-cinema/internal/utils"
)

// Store runs fn in a database transaction; repository.Store implements it.
type Store interface {
	WithinTx(ctx context.Context, fn func(repository.Tx) error) error
}

// Blacklist remembers logged-out access tokens until they expire.
type Blacklist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
}

// SessionConfig holds the token lifetimes and password policy.
type SessionConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ActivationTTL time.Duration
	ResetTTL      time.Duration
	BcryptCost    int
	AppURL        string // base of the links put into emails
}

// TokenPair is what a successful login returns.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
}

// Sessions implements the account lifecycle: registration, activation,
// login, refresh, logout and password resets.
type Sessions struct {
	store     Store
	ledger    *Ledger
	codec     *utils.TokenCodec
	mail      email.Sender
	blacklist Blacklist
	cfg       SessionConfig
	logger    *zap.Logger
}

func NewSessions(store Store, ledger *Ledger, codec *utils.TokenCodec, mail email.Sender, blacklist Blacklist, cfg SessionConfig, logger *zap.Logger) *Sessions {
	return &Sessions{
		store:     store,
		ledger:    ledger,
		codec:     codec,
		mail:      mail,
		blacklist: blacklist,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "sessions")),
	}
}

// inTx runs fn and retries it once when a concurrent request won the
// (user, purpose) unique index or the database aborted on a deadlock.
func (s *Sessions) inTx(ctx context.Context, fn func(repository.Tx) error) error {
	err := s.store.WithinTx(ctx, fn)
	if errors.Is(err, ErrDuplicateToken) || errors.Is(err, repository.ErrRetryable) {
		s.logger.Warn("token issue raced, retrying once", zap.Error(err))
		err = s.store.WithinTx(ctx, fn)
	}
	return err
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// Register creates an inactive USER with an empty profile and cart and
// mails the activation link.
func (s *Sessions) Register(ctx context.Context, emailAddr, password string) (model.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	var (
		user model.User
		raw  string
	)
	err = s.inTx(ctx, func(tx repository.Tx) error {
		u, err := tx.CreateUser(ctx, emailAddr, hash, model.RoleUser)
		if errors.Is(err, repository.ErrEmailExists) {
			return ErrEmailTaken
		}
		if err != nil {
			return err
		}
		if err := tx.CreateProfile(ctx, u.ID); err != nil {
			return err
		}
		if err := tx.CreateCart(ctx, u.ID); err != nil {
			return err
		}
		raw, _, err = s.ledger.CreateSingleUse(ctx, tx, u.ID, model.PurposeActivation, s.cfg.ActivationTTL)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return model.User{}, err
	}

	s.logger.Info("user registered", zap.Uint64("user_id", user.ID))
	s.notify(ctx, email.Activation, user.Email, s.tokenMail("/accounts/activate", user.Email, raw, s.cfg.ActivationTTL))
	return user, nil
}

// ResendActivation issues a new activation token for an inactive user.
// Unknown and already active addresses are ignored silently.
func (s *Sessions) ResendActivation(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	var raw string
	err := s.inTx(ctx, func(tx repository.Tx) error {
		raw = ""
		u, err := tx.UserByEmail(ctx, emailAddr)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if u.IsActive {
			return nil
		}
		raw, _, err = s.ledger.CreateSingleUse(ctx, tx, u.ID, model.PurposeActivation, s.cfg.ActivationTTL)
		return err
	})
	if err != nil {
		return err
	}
	if raw != "" {
		s.notify(ctx, email.Activation, emailAddr, s.tokenMail("/accounts/activate", emailAddr, raw, s.cfg.ActivationTTL))
	}
	return nil
}

// Activate consumes an activation token and activates its owner.  When
// emailAddr is given it must belong to the token owner.  Every rejection
// is ErrInvalidOrExpiredToken.
func (s *Sessions) Activate(ctx context.Context, emailAddr, raw string) error {
	var user model.User
	err := s.consume(ctx, raw, model.PurposeActivation, emailAddr, func(tx repository.Tx, u model.User) error {
		user = u
		return tx.SetUserActive(ctx, u.ID, true)
	})
	if err != nil {
		return err
	}
	s.logger.Info("account activated", zap.Uint64("user_id", user.ID))
	s.notify(ctx, email.ActivationComplete, user.Email, map[string]any{"link": s.cfg.AppURL + "/accounts/login"})
	return nil
}

// consume runs the single-use token protocol shared by activation and
// password reset.  An expired token is still deleted: the transaction
// commits and the error is reported afterwards.
func (s *Sessions) consume(ctx context.Context, raw string, purpose model.Purpose, emailAddr string, apply func(repository.Tx, model.User) error) error {
	var rejected error
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		rejected = nil
		uid, err := s.ledger.Consume(ctx, tx, raw, purpose)
		if errors.Is(err, ErrTokenExpired) {
			rejected = err
			return nil
		}
		if err != nil {
			return err
		}
		u, err := tx.UserByID(ctx, uid)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		if err != nil {
			return err
		}
		if emailAddr != "" && normalizeEmail(emailAddr) != u.Email {
			return ErrTokenNotFound
		}
		return apply(tx, u)
	})
	if err == nil {
		err = rejected
	}
	if tokenFailure(err) {
		s.logger.Info("token rejected", zap.String("purpose", string(purpose)), zap.Error(err))
		return ErrInvalidOrExpiredToken
	}
	return err
}

// Login checks the credentials and issues an access/refresh pair.  The new
// refresh token replaces the previous one.
func (s *Sessions) Login(ctx context.Context, emailAddr, password string) (TokenPair, error) {
	emailAddr = normalizeEmail(emailAddr)
	var pair TokenPair
	err := s.inTx(ctx, func(tx repository.Tx) error {
		u, err := tx.UserByEmail(ctx, emailAddr)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		if err != nil {
			return err
		}
		if !utils.VerifyPassword(u.PasswordHash, password) {
			return ErrInvalidCredentials
		}
		if !u.IsActive {
			return ErrInactiveAccount
		}

		access, err := s.codec.Issue(u.ID, utils.KindAccess, u.Role, s.cfg.AccessTTL)
		if err != nil {
			return err
		}
		refresh, err := s.codec.Issue(u.ID, utils.KindRefresh, "", s.cfg.RefreshTTL)
		if err != nil {
			return err
		}
		if _, err := s.ledger.StoreRefresh(ctx, tx, u.ID, refresh.Token, refresh.Exp()); err != nil {
			return err
		}
		pair = TokenPair{
			AccessToken:      access.Token,
			RefreshToken:     refresh.Token,
			TokenType:        "Bearer",
			AccessExpiresAt:  access.Exp(),
			RefreshExpiresAt: refresh.Exp(),
		}
		return nil
	})
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh exchanges a live refresh token for a new access token.  The
// refresh token itself is returned unchanged.
func (s *Sessions) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	claims, err := s.codec.DecodeKind(raw, utils.KindRefresh)
	if err != nil {
		s.logger.Info("refresh rejected", zap.Error(err))
		return TokenPair{}, ErrInvalidOrExpiredToken
	}
	uid, err := claims.UserID()
	if err != nil {
		return TokenPair{}, ErrInvalidOrExpiredToken
	}

	var pair TokenPair
	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		tok, err := s.ledger.CheckRefresh(ctx, tx, raw)
		if err != nil {
			return err
		}
		if tok.UserID != uid {
			return ErrTokenNotFound
		}
		u, err := tx.UserByID(ctx, uid)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenNotFound
		}
		if err != nil {
			return err
		}
		if !u.IsActive {
			return ErrInactiveAccount
		}
		access, err := s.codec.Issue(u.ID, utils.KindAccess, u.Role, s.cfg.AccessTTL)
		if err != nil {
			return err
		}
		pair = TokenPair{
			AccessToken:      access.Token,
			RefreshToken:     raw,
			TokenType:        "Bearer",
			AccessExpiresAt:  access.Exp(),
			RefreshExpiresAt: tok.ExpiresAt,
		}
		return nil
	})
	if tokenFailure(err) {
		s.logger.Info("refresh rejected", zap.Uint64("user_id", uid), zap.Error(err))
		return TokenPair{}, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Logout revokes the refresh token.  When the caller's access token
// claims are given, its jti is blacklisted until it expires.
func (s *Sessions) Logout(ctx context.Context, raw string, access *utils.Claims) error {
	claims, err := s.codec.DecodeKind(raw, utils.KindRefresh)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}
	uid, err := claims.UserID()
	if err != nil {
		return ErrInvalidOrExpiredToken
	}
	if access != nil {
		if aid, err := access.UserID(); err != nil || aid != uid {
			return ErrInvalidOrExpiredToken
		}
	}

	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		tok, err := s.ledger.Revoke(ctx, tx, raw)
		if err != nil {
			return err
		}
		if tok.UserID != uid {
			return ErrTokenNotFound
		}
		return nil
	})
	if tokenFailure(err) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return err
	}

	if access != nil && s.blacklist != nil {
		ttl := time.Until(access.Expiry())
		if err := s.blacklist.Add(ctx, access.ID, ttl); err != nil {
			s.logger.Warn("blacklist access token failed", zap.Error(err))
		}
	}
	s.logger.Info("user logged out", zap.Uint64("user_id", uid))
	return nil
}

// RequestPasswordReset mails a reset link to a known address.  Unknown
// addresses succeed silently.  Any pending activation token is deleted:
// the reset link becomes the only way in.
func (s *Sessions) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	var raw string
	err := s.inTx(ctx, func(tx repository.Tx) error {
		raw = ""
		u, err := tx.UserByEmail(ctx, emailAddr)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.DeleteUserTokens(ctx, u.ID, model.PurposeActivation); err != nil {
			return err
		}
		raw, _, err = s.ledger.CreateSingleUse(ctx, tx, u.ID, model.PurposePasswordReset, s.cfg.ResetTTL)
		return err
	})
	if err != nil {
		return err
	}
	if raw == "" {
		s.logger.Debug("password reset for unknown email")
		return nil
	}
	s.notify(ctx, email.PasswordReset, emailAddr, s.tokenMail("/accounts/password-reset/complete", emailAddr, raw, s.cfg.ResetTTL))
	return nil
}

// CompletePasswordReset consumes a reset token, sets the new password,
// revokes every refresh token of the user and marks the account active.
func (s *Sessions) CompletePasswordReset(ctx context.Context, emailAddr, raw, password string) error {
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	var user model.User
	err = s.consume(ctx, raw, model.PurposePasswordReset, emailAddr, func(tx repository.Tx, u model.User) error {
		user = u
		if err := tx.SetUserPassword(ctx, u.ID, hash); err != nil {
			return err
		}
		if _, err := s.ledger.RevokeAll(ctx, tx, u.ID, model.PurposeRefresh); err != nil {
			return err
		}
		return tx.SetUserActive(ctx, u.ID, true)
	})
	if err != nil {
		return err
	}
	s.logger.Info("password reset", zap.Uint64("user_id", user.ID))
	s.notify(ctx, email.PasswordResetComplete, user.Email, map[string]any{"link": s.cfg.AppURL + "/accounts/login"})
	return nil
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one.  Existing refresh tokens are revoked.
func (s *Sessions) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	hash, err := utils.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.WithinTx(ctx, func(tx repository.Tx) error {
		u, err := tx.UserByID(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if !utils.VerifyPassword(u.PasswordHash, oldPassword) {
			return ErrInvalidCredentials
		}
		if utils.VerifyPassword(u.PasswordHash, newPassword) {
			return ErrSamePassword
		}
		if err := tx.SetUserPassword(ctx, u.ID, hash); err != nil {
			return err
		}
		_, err = s.ledger.RevokeAll(ctx, tx, u.ID, model.PurposeRefresh)
		return err
	})
}

// Me returns the user record.
func (s *Sessions) Me(ctx context.Context, userID uint64) (model.User, error) {
	var u model.User
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		u, err = tx.UserByID(ctx, userID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// ActivateByEmail lets staff activate an account by hand.  The pending
// activation token is deleted.
func (s *Sessions) ActivateByEmail(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		u, err := tx.UserByEmail(ctx, emailAddr)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteUserTokens(ctx, u.ID, model.PurposeActivation); err != nil {
			return err
		}
		return tx.SetUserActive(ctx, u.ID, true)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// SetRole changes the role of the user with emailAddr.  Admins cannot
// change their own role.  Access tokens already issued keep the old role
// until they expire; the next refresh picks up the new one.
func (s *Sessions) SetRole(ctx context.Context, actorID uint64, emailAddr, role string) error {
	if !model.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	emailAddr = normalizeEmail(emailAddr)
	err := s.store.WithinTx(ctx, func(tx repository.Tx) error {
		u, err := tx.UserByEmail(ctx, emailAddr)
		if err != nil {
			return err
		}
		if u.ID == actorID {
			return ErrForbidden
		}
		return tx.SetUserRole(ctx, u.ID, role)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err == nil {
		s.logger.Info("role changed", zap.Uint64("actor_id", actorID), zap.String("role", role))
	}
	return err
}

func (s *Sessions) tokenMail(path, emailAddr, raw string, ttl time.Duration) map[string]any {
	q := url.Values{}
	q.Set("email", emailAddr)
	q.Set("token", raw)
	return map[string]any{
		"link":    s.cfg.AppURL + path + "?" + q.Encode(),
		"token":   raw,
		"expires": ttl.String(),
	}
}

// notify sends an email after the workflow committed.  Failures are
// logged and never undo the workflow.
func (s *Sessions) notify(ctx context.Context, tmpl email.Template, to string, data map[string]any) {
	if s.mail == nil {
		return
	}
	if err := s.mail.Send(ctx, tmpl, to, data); err != nil {
		s.logger.Warn("send email failed", zap.String("template", string(tmpl)), zap.Error(err))
	}
}
