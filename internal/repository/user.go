package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"remote-lab-api/internal/model"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository looks up operator accounts for login.
type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type userRepository struct {
	DB *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{DB: db}
}

// GetUserByEmail retrieves an operator account by email.
func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT id, email, username, password_hash, role, created_at FROM users WHERE email = $1`

	var u model.User
	err := r.DB.QueryRowContext(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &u, nil
}
