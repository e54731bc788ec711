package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presencepro-api/internal/models"
)

// TokenRepository stores revoked access tokens.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Revoke adds a jti to the denylist. Revoking twice is a no-op.
func (r *TokenRepository) Revoke(ctx context.Context, token *models.RevokedToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO token_denylist (jti, user_id, expires_at, created_at) VALUES (:jti, :user_id, :expires_at, :created_at) ON CONFLICT (jti) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the jti is denylisted.
func (r *TokenRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM token_denylist WHERE jti = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, jti); err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// PurgeExpired deletes entries for tokens that can no longer validate anyway.
func (r *TokenRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM token_denylist WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
