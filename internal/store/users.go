package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, created_at`

// getOne follows the sql.ErrNoRows -> (false, nil) convention of the lookups
// below.
func (s *BaseStore) getOne(ctx context.Context, q DBTX, dest interface{}, op, query string, args ...interface{}) (bool, error) {
	err := sqlx.GetContext(ctx, q, dest, s.Converter(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.fail(op, err)
	}
	return true, nil
}

func (s *BaseStore) CreateUser(ctx context.Context, q DBTX, user *models.User) error {
	id, err := s.insertReturningID(ctx, q, "create user", `
		INSERT INTO users (email, password_hash, first_name, last_name, phone, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Phone, user.Role, user.CreatedAt)
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

func (s *BaseStore) GetUser(ctx context.Context, q DBTX, id int64) (*models.User, error) {
	var user models.User
	found, err := s.getOne(ctx, q, &user, "get user", `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

func (s *BaseStore) GetUserByEmail(ctx context.Context, q DBTX, email string) (*models.User, error) {
	var user models.User
	found, err := s.getOne(ctx, q, &user, "get user by email", `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// ListUsers lists users with the given role, or everyone for an empty role.
func (s *BaseStore) ListUsers(ctx context.Context, q DBTX, role models.Role) ([]models.User, error) {
	var users []models.User
	query := `SELECT ` + userColumns + ` FROM users ORDER BY last_name, first_name, id`
	args := []interface{}{}
	if role != "" {
		query = `SELECT ` + userColumns + ` FROM users WHERE role = ? ORDER BY last_name, first_name, id`
		args = append(args, role)
	}
	if err := sqlx.SelectContext(ctx, q, &users, s.Converter(query), args...); err != nil {
		return nil, s.fail("list users", err)
	}
	return users, nil
}

func (s *BaseStore) UpdateUser(ctx context.Context, q DBTX, user *models.User) error {
	return s.execAffecting(ctx, q, "update user", `
		UPDATE users
		SET email = ?, password_hash = ?, first_name = ?, last_name = ?, phone = ?, role = ?
		WHERE id = ?
	`, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Phone, user.Role, user.ID)
}

func (s *BaseStore) DeleteUser(ctx context.Context, q DBTX, id int64) error {
	return s.execAffecting(ctx, q, "delete user", `DELETE FROM users WHERE id = ?`, id)
}
