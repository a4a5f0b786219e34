// Package directory resolves users and their roles. Accounts are managed by the
// identity service; this package only reads them.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUserNotFound is returned when no user has the requested ID
var ErrUserNotFound = errors.New("user not found")

// Repository reads users from the shared users table
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new directory repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Lookup retrieves a user by ID
func (r *Repository) Lookup(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, email, full_name, COALESCE(phone, ''), role, preferred_language, created_at
		FROM users
		WHERE id = $1
	`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.Phone,
		&user.Role,
		&user.PreferredLanguage,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user.PreferredLanguage != LanguageSwahili {
		user.PreferredLanguage = LanguageEnglish
	}
	return user, nil
}
