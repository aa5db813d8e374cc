package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"muxic/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

const userColumns = `id, email, username, full_name, password_hash, avatar_url, bio, google_id,
	is_verified, otp_hash, otp_expires_at, reset_token_hash, reset_token_expires_at,
	privacy_profile, privacy_show_online, is_active, is_banned, ban_reason,
	last_login_at, created_at, updated_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

type CreateUserParams struct {
	Email        string
	Username     string
	FullName     string
	PasswordHash *string
	AvatarURL    *string
	GoogleID     *string
	IsVerified   bool
	OTPHash      *string
	OTPExpiresAt *time.Time
}

func (r *UserRepository) Create(p CreateUserParams) (*models.User, error) {
	id, err := GenerateID("usr")
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO users (id, email, username, full_name, password_hash, avatar_url, google_id,
			is_verified, otp_hash, otp_expires_at, last_login_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, strings.ToLower(p.Email), p.Username, p.FullName, p.PasswordHash, p.AvatarURL,
		p.GoogleID, p.IsVerified, p.OTPHash, timePtrUTC(p.OTPExpiresAt), now, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, DuplicateField(err))
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return r.FindByID(id)
}

func (r *UserRepository) FindByID(id string) (*models.User, error) {
	return r.findOne(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepository) FindByEmail(email string) (*models.User, error) {
	return r.findOne(`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
}

// FindByIdentifier resolves a login identifier that may be either an email
// (matched case-insensitively) or a username (matched exactly).
func (r *UserRepository) FindByIdentifier(identifier string) (*models.User, error) {
	return r.findOne(
		`SELECT `+userColumns+` FROM users WHERE email = ? OR username = ?`,
		strings.ToLower(identifier), identifier,
	)
}

func (r *UserRepository) FindByGoogleID(googleID string) (*models.User, error) {
	return r.findOne(`SELECT `+userColumns+` FROM users WHERE google_id = ?`, googleID)
}

func (r *UserRepository) IsUsernameAvailable(username string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking username availability: %w", err)
	}
	return count == 0, nil
}

// SetOTP stores a new hashed code and expiry, replacing any previous one
// (last writer wins).
func (r *UserRepository) SetOTP(id, otpHash string, expiresAt time.Time) error {
	result, err := r.db.Exec(
		`UPDATE users SET otp_hash = ?, otp_expires_at = ?, updated_at = ? WHERE id = ?`,
		otpHash, expiresAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("storing otp: %w", err)
	}
	return checkRowsAffected(result)
}

// MarkVerified flips the verification flag and clears the OTP fields, but
// only if the user is still unverified. Returns false when another request
// already verified the account.
func (r *UserRepository) MarkVerified(id string) (bool, error) {
	result, err := r.db.Exec(
		`UPDATE users SET is_verified = 1, otp_hash = NULL, otp_expires_at = NULL, updated_at = ?
		 WHERE id = ? AND is_verified = 0`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("marking user verified: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *UserRepository) TouchLastLogin(id string) error {
	_, err := r.db.Exec(`UPDATE users SET last_login_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

func (r *UserRepository) SetResetToken(id, tokenHash string, expiresAt time.Time) error {
	result, err := r.db.Exec(
		`UPDATE users SET reset_token_hash = ?, reset_token_expires_at = ?, updated_at = ? WHERE id = ?`,
		tokenHash, expiresAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}
	return checkRowsAffected(result)
}

// ConsumeResetToken atomically clears an unexpired reset token and returns
// the owning user's id. A second call with the same token finds no row,
// which makes reset tokens single-use.
func (r *UserRepository) ConsumeResetToken(tokenHash string) (string, error) {
	now := time.Now().UTC()
	var id string
	err := r.db.QueryRow(
		`UPDATE users
		 SET reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = ?
		 WHERE reset_token_hash = ? AND reset_token_expires_at > ?
		 RETURNING id`,
		now, tokenHash, now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consuming reset token: %w", err)
	}
	return id, nil
}

func (r *UserRepository) UpdatePassword(id, passwordHash string) error {
	result, err := r.db.Exec(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return checkRowsAffected(result)
}

// LinkGoogle attaches an external provider id to an existing account and
// marks it verified (the provider attests to the email). The avatar is only
// adopted when the account has none.
func (r *UserRepository) LinkGoogle(id, googleID string, avatarURL *string) error {
	result, err := r.db.Exec(
		`UPDATE users
		 SET google_id = ?, is_verified = 1,
		     avatar_url = COALESCE(avatar_url, ?),
		     updated_at = ?
		 WHERE id = ?`,
		googleID, avatarURL, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("linking google account: %w", err)
	}
	return checkRowsAffected(result)
}

type UpdateProfileParams struct {
	FullName          *string
	Bio               *string
	AvatarURL         *string
	PrivacyProfile    *models.ProfileVisibility
	PrivacyShowOnline *bool
}

func (r *UserRepository) UpdateProfile(id string, p UpdateProfileParams) error {
	result, err := r.db.Exec(
		`UPDATE users
		 SET full_name = COALESCE(?, full_name),
		     bio = COALESCE(?, bio),
		     avatar_url = COALESCE(?, avatar_url),
		     privacy_profile = COALESCE(?, privacy_profile),
		     privacy_show_online = COALESCE(?, privacy_show_online),
		     updated_at = ?
		 WHERE id = ?`,
		p.FullName, p.Bio, p.AvatarURL, (*string)(p.PrivacyProfile), p.PrivacyShowOnline,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return checkRowsAffected(result)
}

// ClearExpiredCredentials wipes OTP and reset-token fields whose expiry has
// passed so stale secrets do not linger. Used by the cleanup service.
func (r *UserRepository) ClearExpiredCredentials() (int64, error) {
	now := time.Now().UTC()
	result, err := r.db.Exec(
		`UPDATE users
		 SET otp_hash = CASE WHEN otp_expires_at < ?1 THEN NULL ELSE otp_hash END,
		     otp_expires_at = CASE WHEN otp_expires_at < ?1 THEN NULL ELSE otp_expires_at END,
		     reset_token_hash = CASE WHEN reset_token_expires_at < ?1 THEN NULL ELSE reset_token_hash END,
		     reset_token_expires_at = CASE WHEN reset_token_expires_at < ?1 THEN NULL ELSE reset_token_expires_at END
		 WHERE otp_expires_at < ?1 OR reset_token_expires_at < ?1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("clearing expired credentials: %w", err)
	}
	return result.RowsAffected()
}

func (r *UserRepository) findOne(query string, args ...any) (*models.User, error) {
	var u models.User
	var (
		passwordHash, avatarURL, googleID, otpHash, resetHash, banReason sql.NullString
		otpExpires, resetExpires, lastLogin, updatedAt                   sql.NullTime
		privacyProfile                                                   string
	)

	err := r.db.QueryRow(query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.FullName,
		&passwordHash,
		&avatarURL,
		&u.Bio,
		&googleID,
		&u.IsVerified,
		&otpHash,
		&otpExpires,
		&resetHash,
		&resetExpires,
		&privacyProfile,
		&u.PrivacyShowOnline,
		&u.IsActive,
		&u.IsBanned,
		&banReason,
		&lastLogin,
		&u.CreatedAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.PasswordHash = nullStringToPtr(passwordHash)
	u.AvatarURL = nullStringToPtr(avatarURL)
	u.GoogleID = nullStringToPtr(googleID)
	u.OTPHash = nullStringToPtr(otpHash)
	u.OTPExpiresAt = nullTimeToPtr(otpExpires)
	u.ResetTokenHash = nullStringToPtr(resetHash)
	u.ResetTokenExpiresAt = nullTimeToPtr(resetExpires)
	u.BanReason = nullStringToPtr(banReason)
	u.LastLoginAt = nullTimeToPtr(lastLogin)
	u.UpdatedAt = nullTimeToPtr(updatedAt)
	u.PrivacyProfile = models.ProfileVisibility(privacyProfile)

	return &u, nil
}

func timePtrUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
