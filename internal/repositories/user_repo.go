package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harvestly/harvestly/internal/database"
	"github.com/harvestly/harvestly/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresUserRepository stores accounts in the users table
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepository(db *database.DB) *PostgresUserRepository {
	return &PostgresUserRepository{pool: db.Pool}
}

const userColumns = `id, first_name, last_name, email, password_hash, phone, state, role, profile_picture,
	is_verified, verification_token_hash, password_reset_token_hash, password_reset_expires,
	last_login, password_changed_at, tokens_valid_after, created_at, updated_at`

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow populates a User from a row selected with userColumns
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash,
		&user.Phone, &user.State, &user.Role, &user.ProfilePicture,
		&user.IsVerified, &user.VerificationTokenHash, &user.PasswordResetTokenHash, &user.PasswordResetExpires,
		&user.LastLogin, &user.PasswordChangedAt, &user.TokensValidAfter, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

// scanUserRows iterates through rows and scans each into User models
func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

// expectOne maps a zero-row update to ErrNotFound
func expectOne(tag interface{ RowsAffected() int64 }, err error) error {
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}

func (r *PostgresUserRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return total, nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	prepareNewUser(user, time.Now().UTC())

	query := `
		INSERT INTO users (id, first_name, last_name, email, password_hash, phone, state, role, profile_picture,
			is_verified, verification_token_hash, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.FirstName, user.LastName, user.Email, user.PasswordHash,
		user.Phone, user.State, user.Role, user.ProfilePicture,
		user.IsVerified, user.VerificationTokenHash, user.PasswordChangedAt, user.CreatedAt, user.UpdatedAt,
	))
}

// UpdateProfile changes only the patched columns; NULL parameters keep the stored value
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	if patch.Empty() {
		return r.GetByID(ctx, id)
	}

	query := `
		UPDATE users
		SET first_name = COALESCE($2::text, first_name),
			last_name = COALESCE($3::text, last_name),
			phone = COALESCE($4::text, phone),
			state = COALESCE($5::text, state),
			role = COALESCE($6::text, role),
			updated_at = $7
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		id, nonBlank(patch.FirstName), nonBlank(patch.LastName), nonBlank(patch.Phone),
		nonBlank(patch.State), nonBlank(patch.Role), time.Now().UTC(),
	))
}

func (r *PostgresUserRepository) SetProfilePicture(ctx context.Context, id, url string) (*models.User, error) {
	query := `UPDATE users SET profile_picture = $2, updated_at = $3 WHERE id = $1 RETURNING ` + userColumns
	return scanUserRow(r.pool.QueryRow(ctx, query, id, url, time.Now().UTC()))
}

// nonBlank turns an empty patch value into NULL
func nonBlank(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	query := `
		UPDATE users
		SET password_hash = $2, password_changed_at = $3, tokens_valid_after = $3, updated_at = $3
		WHERE id = $1
	`
	return expectOne(r.pool.Exec(ctx, query, id, passwordHash, at))
}

func (r *PostgresUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	return expectOne(r.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at))
}

func (r *PostgresUserRepository) RevokeTokens(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET tokens_valid_after = $2, updated_at = $2 WHERE id = $1`
	return expectOne(r.pool.Exec(ctx, query, id, at))
}

func (r *PostgresUserRepository) SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error {
	query := `UPDATE users SET password_reset_token_hash = $2, password_reset_expires = $3 WHERE id = $1`
	return expectOne(r.pool.Exec(ctx, query, id, tokenHash, expires))
}

// ConsumePasswordReset swaps the password in the same statement that checks
// and clears the token, so a token can succeed at most once.
func (r *PostgresUserRepository) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.User, error) {
	query := `
		UPDATE users
		SET password_hash = $2, password_changed_at = $3, tokens_valid_after = $3, updated_at = $3,
			password_reset_token_hash = NULL, password_reset_expires = NULL
		WHERE password_reset_token_hash = $1 AND password_reset_expires > $3
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, tokenHash, passwordHash, now))
}

func (r *PostgresUserRepository) ConsumeVerification(ctx context.Context, tokenHash string) (*models.User, error) {
	query := `
		UPDATE users
		SET is_verified = TRUE, verification_token_hash = NULL, updated_at = NOW()
		WHERE verification_token_hash = $1
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *PostgresUserRepository) ClearExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users
		SET password_reset_token_hash = NULL, password_reset_expires = NULL
		WHERE password_reset_expires IS NOT NULL AND password_reset_expires <= $1
	`
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	return expectOne(r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id))
}

// prepareNewUser fills server-assigned fields before insert
func prepareNewUser(user *models.User, now time.Time) {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.CreatedAt = now
	user.UpdatedAt = now
}
