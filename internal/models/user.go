// Copyright (c) 2025, the TinglaBot contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Shaxzodbek16/TinglaBot/internal/database"
)

// DefaultRequestBudget is granted to a user on first contact.
const DefaultRequestBudget = 20

// User is a persisted consumer of the engine with a request budget and a
// preferred language.
type User struct {
	ID            int64
	Username      string
	Language      string
	RequestsLeft  int
	DownloadCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserStore persists users and their request budgets.
type UserStore struct {
	db database.Querier
}

func NewUserStore(db database.Querier) *UserStore {
	return &UserStore{db: db}
}

// Ensure inserts the user if unknown and returns the stored row. Username is
// refreshed on every call.
func (s *UserStore) Ensure(ctx context.Context, id int64, username string) (*User, error) {
	const query = `
		INSERT INTO users (id, username, requests_left)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query, id, username, DefaultRequestBudget); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	return s.Get(ctx, id)
}

// Get returns the user or (nil, nil) when unknown.
func (s *UserStore) Get(ctx context.Context, id int64) (*User, error) {
	const query = `
		SELECT id, username, language, requests_left, download_count, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	u := &User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Username,
		&u.Language,
		&u.RequestsLeft,
		&u.DownloadCount,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return u, nil
}

// ConsumeRequest atomically decrements the user's budget. Returns false when
// the budget is already exhausted; the row is left untouched in that case.
func (s *UserStore) ConsumeRequest(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE users
		SET requests_left = requests_left - 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND requests_left > 0
	`

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("consume request: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume request rows affected: %w", err)
	}

	return affected > 0, nil
}

// AddRequests credits the user's budget.
func (s *UserStore) AddRequests(ctx context.Context, id int64, n int) error {
	if n <= 0 {
		return fmt.Errorf("credit must be positive")
	}

	const query = `
		UPDATE users
		SET requests_left = requests_left + ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	if _, err := s.db.ExecContext(ctx, query, n, id); err != nil {
		return fmt.Errorf("add requests: %w", err)
	}

	return nil
}

// SetLanguage stores the user's preferred language code.
func (s *UserStore) SetLanguage(ctx context.Context, id int64, language string) error {
	if language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	const query = `
		UPDATE users
		SET language = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	if _, err := s.db.ExecContext(ctx, query, language, id); err != nil {
		return fmt.Errorf("set language: %w", err)
	}

	return nil
}

// RecordDownload bumps the user's completed-download counter.
func (s *UserStore) RecordDownload(ctx context.Context, id int64) error {
	const query = `
		UPDATE users
		SET download_count = download_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("record download: %w", err)
	}

	return nil
}

// Count returns the number of known users.
func (s *UserStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
