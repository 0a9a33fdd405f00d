package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"
)

const userColumns = `id, username, email, password_hash, role, status, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var email sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Email = email.String
	return &u, nil
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (username, email, password_hash, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	var email interface{}
	if user.Email != "" {
		email = strings.ToLower(user.Email)
	}

	res, err := db.ExecContext(ctx, query, user.Username, email, user.PasswordHash, user.Role, user.Status, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username or email already taken: %w", domain.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, mapNoRows(err, fmt.Sprintf("user %d", id))
	}
	return u, nil
}

// GetUserByLogin looks a user up by username or e-mail.
func (db *DB) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ? LIMIT 1`,
		login, strings.ToLower(login)))
	if err != nil {
		return nil, mapNoRows(err, "user "+login)
	}
	return u, nil
}

// ListUsers returns users newest first, optionally filtered by a
// username/email substring.
func (db *DB) ListUsers(ctx context.Context, search string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []interface{}
	if s := strings.TrimSpace(search); s != "" {
		query += ` WHERE username LIKE ? ESCAPE '\' OR email LIKE ? ESCAPE '\'`
		p := likePattern(s)
		args = append(args, p, p)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *DB) UpdateUserStatus(ctx context.Context, id int64, status string) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return db.checkAffected(res, fmt.Sprintf("user %d", id))
}

func (db *DB) UpdateUserRole(ctx context.Context, id int64, role string) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, role, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	return db.checkAffected(res, fmt.Sprintf("user %d", id))
}

// DeleteUser removes the account; its bookings stay with user_id set to NULL.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return db.checkAffected(res, fmt.Sprintf("user %d", id))
}
