// Package models - admin_user.go defines the AdminUser model for portal
// administrators who sign in to the admin area.
package models

import "time"

// AdminUser is an administrator account. This subsystem only reads it.
type AdminUser struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"` // "super_admin" or "admin"
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
