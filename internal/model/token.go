package model

import "time"

// Purpose distinguishes the rows of the `tokens` ledger. A user holds at
// most one row per purpose (unique index on user_id, purpose).
type Purpose string

const (
	PurposeActivation    Purpose = "activation"
	PurposePasswordReset Purpose = "password_reset"
	PurposeRefresh       Purpose = "refresh"
)

// Token is a row of the `tokens` table.  The plain token is never
// stored, only its SHA-256 hex digest.
type Token struct {
	ID        uint64     // tokens.id
	UserID    uint64     // tokens.user_id
	Purpose   Purpose    // tokens.purpose
	TokenHash string     // tokens.token_hash
	ExpiresAt time.Time  // tokens.expires_at
	RevokedAt *time.Time // tokens.revoked_at (nullable)
	CreatedAt time.Time  // tokens.created_at
}

// Expired reports whether the token is past its expiry at now.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
