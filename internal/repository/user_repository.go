package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-lms-api/internal/models"
)

const (
	userColumns         = `id, email, password_hash, full_name, phone, role, active, last_login, created_at, updated_at`
	refreshTokenColumns = `id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent`
	resetTokenColumns   = `id, user_id, token_hash, expires_at, used_at, created_at`
)

var userSorts = map[string]bool{"email": true, "full_name": true, "created_at": true, "updated_at": true}

// UserRepository owns users together with their sessions, reset tokens and
// the audit trail.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// getOne loads a single row into dest. sql.ErrNoRows is returned unwrapped
// so services can map it to a 404.
func (r *UserRepository) getOne(ctx context.Context, op string, dest interface{}, query string, args ...interface{}) error {
	err := r.db.GetContext(ctx, dest, query, args...)
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *UserRepository) insert(ctx context.Context, op, table, columns string, row interface{}) error {
	names := strings.Split(columns, ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)", table, columns, strings.Join(names, ", :"))
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// updateUser applies set to the user row and stamps updated_at with at.
func (r *UserRepository) updateUser(ctx context.Context, op, id string, at time.Time, set *setBuilder) (int64, error) {
	set.set("updated_at", at)
	query, args := set.update("users", id)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.RowsAffected()
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.getOne(ctx, "find user by email", &user, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`, email); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.getOne(ctx, "find user by id", &user, `SELECT `+userColumns+` FROM users WHERE id = $1 LIMIT 1`, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// List pages through users matching filter and returns the unpaged total.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var where whereBuilder
	if filter.Role != nil {
		where.add("role = ?", *filter.Role)
	}
	if filter.Active != nil {
		where.add("active = ?", *filter.Active)
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		where.add("(LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?)", "%"+term+"%")
	}
	from := "FROM users" + where.clause()

	order := "created_at"
	if userSorts[filter.SortBy] {
		order = filter.SortBy
	}
	if strings.EqualFold(filter.SortOrder, "asc") {
		order += " ASC"
	} else {
		order += " DESC"
	}
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	users := []models.User{}
	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", userColumns, from, order, limit, offset)
	if err := r.db.SelectContext(ctx, &users, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+from, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	return r.insert(ctx, "create user", "users", `id, email, password_hash, full_name, phone, role, active, created_at, updated_at`, user)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	var set setBuilder
	set.set("last_login", ts)
	_, err := r.updateUser(ctx, "update last login", id, ts, &set)
	return err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	var set setBuilder
	set.set("password_hash", passwordHash)
	_, err := r.updateUser(ctx, "update password", id, updatedAt, &set)
	return err
}

// UpdateProfile stores the self-editable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	var set setBuilder
	set.set("full_name", user.FullName)
	set.set("phone", user.Phone)
	_, err := r.updateUser(ctx, "update profile", user.ID, user.UpdatedAt, &set)
	return err
}

// SetActive returns sql.ErrNoRows for unknown ids.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	var set setBuilder
	set.set("active", active)
	n, err := r.updateUser(ctx, "set user active", id, time.Now().UTC(), &set)
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	return r.insert(ctx, "create refresh token", "refresh_tokens", refreshTokenColumns, token)
}

func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := r.getOne(ctx, "find refresh token", &rt, `SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token = $1 LIMIT 1`, token); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens ends every open session of userID.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke sessions of %s: %w", userID, err)
	}
	return nil
}

func (r *UserRepository) CreatePasswordReset(ctx context.Context, token *models.PasswordResetToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	return r.insert(ctx, "create password reset", "password_reset_tokens", resetTokenColumns, token)
}

// FindPasswordReset looks a reset token up by its sha256 hash.
func (r *UserRepository) FindPasswordReset(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	var token models.PasswordResetToken
	if err := r.getOne(ctx, "find password reset", &token, `SELECT `+resetTokenColumns+` FROM password_reset_tokens WHERE token_hash = $1 LIMIT 1`, tokenHash); err != nil {
		return nil, err
	}
	return &token, nil
}

// ConsumePasswordReset marks a reset token used. It reports false when the
// token was already consumed.
func (r *UserRepository) ConsumePasswordReset(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE password_reset_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, usedAt)
	if err != nil {
		return false, fmt.Errorf("consume password reset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume password reset: %w", err)
	}
	return n == 1, nil
}

func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	return r.insert(ctx, "create audit log", "audit_logs", `id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at`, log)
}
