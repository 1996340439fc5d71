// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geotraceapp/geotrace/internal/models"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateEmail indicates another account already uses the email.
var ErrDuplicateEmail = errors.New("email already registered")

// CreateUser inserts a new account and returns it with the generated id.
func (db *DB) CreateUser(ctx context.Context, name, email, passwordHash, role string) (*models.User, error) {
	if role == "" {
		role = models.RoleUser
	}
	createdAt := time.Now().UTC()

	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		name, email, passwordHash, role, createdAt,
	).Scan(&id)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &models.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    createdAt,
	}, nil
}

// GetUserByEmail returns the account for email, or ErrUserNotFound.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, `SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE email = ?`, email)
}

// GetUserByID returns the account with the given id, or ErrUserNotFound.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.getUser(ctx, `SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE id = ?`, id)
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*models.User, error) {
	u := &models.User{}
	err := db.conn.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// isDuplicateKey matches DuckDB's unique constraint violation message.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "violates unique constraint")
}
