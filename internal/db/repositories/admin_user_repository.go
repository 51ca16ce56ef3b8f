// Package repositories implements the data access layer for the portal.
// Each repository type encapsulates all database queries for one table;
// handlers never issue SQL directly.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/sports-federation/federation-portal/internal/db/models"
)

// AdminUserRepository reads administrator accounts
type AdminUserRepository struct {
	db *sql.DB
}

// NewAdminUserRepository creates a new AdminUserRepository
func NewAdminUserRepository(db *sql.DB) *AdminUserRepository {
	return &AdminUserRepository{db: db}
}

const adminUserColumns = `id, email, username, password_hash, role, created_at, updated_at`

// FindByEmail retrieves an admin by email, ignoring case and surrounding
// whitespace. It returns (nil, nil) when no account matches.
func (r *AdminUserRepository) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	query := `
		SELECT ` + adminUserColumns + `
		FROM admin_users
		WHERE lower(email) = lower($1)
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
}

// GetByID retrieves an admin by ID. It returns (nil, nil) when not found.
func (r *AdminUserRepository) GetByID(ctx context.Context, id string) (*models.AdminUser, error) {
	query := `
		SELECT ` + adminUserColumns + `
		FROM admin_users
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *AdminUserRepository) scanOne(row *sql.Row) (*models.AdminUser, error) {
	user := &models.AdminUser{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
