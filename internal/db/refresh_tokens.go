package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"muxic/internal/models"
)

type RefreshTokenRepository struct {
	db *DB
}

func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(userID, tokenHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	id, err := GenerateID("rft")
	if err != nil {
		return nil, fmt.Errorf("generating refresh token ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, tokenHash, expiresAt.UTC(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating refresh token: %w", err)
	}

	return &models.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

func (r *RefreshTokenRepository) FindByHash(tokenHash string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	var lastUsedAt, revokedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, user_id, token_hash, expires_at, created_at, last_used_at, revoked_at
		 FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &lastUsedAt, &revokedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}

	t.LastUsedAt = nullTimeToPtr(lastUsedAt)
	t.RevokedAt = nullTimeToPtr(revokedAt)

	return &t, nil
}

// RevokeByHash invalidates the session behind a presented token. Revoking a
// token that is unknown or already revoked is not an error, which keeps
// logout idempotent.
func (r *RefreshTokenRepository) RevokeByHash(tokenHash string) error {
	_, err := r.db.Exec(
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`,
		time.Now().UTC(), tokenHash,
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// Rotate consumes one refresh token and issues its replacement inside a
// single transaction. The revoke UPDATE is guarded on the token still being
// live, so two concurrent rotations of the same token cannot both succeed;
// the loser gets ErrNotFound.
func (r *RefreshTokenRepository) Rotate(consumedTokenID string, userID string, newTokenHash string, newExpiresAt time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("starting refresh token rotation transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.Exec(
		`UPDATE refresh_tokens
		 SET revoked_at = ?, last_used_at = ?
		 WHERE id = ?
		   AND revoked_at IS NULL
		   AND expires_at > ?`,
		now, now, consumedTokenID, now,
	)
	if err != nil {
		return fmt.Errorf("revoking token during rotation: %w", err)
	}

	if err := checkRowsAffected(result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("checking refresh token rotation rows affected: %w", err)
	}

	newID, err := GenerateID("rft")
	if err != nil {
		return fmt.Errorf("generating rotated refresh token ID: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		newID, userID, newTokenHash, newExpiresAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("creating rotated refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing refresh token rotation: %w", err)
	}

	return nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(userID string) error {
	_, err := r.db.Exec(`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("revoking user tokens: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteAllForUser(userID string) error {
	_, err := r.db.Exec(`DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting user tokens: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM refresh_tokens WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	return result.RowsAffected()
}
