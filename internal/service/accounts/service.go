package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Profile is the subset of a user record the profile endpoints expose.
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Plan  string `json:"plan"`
	Role  string `json:"role"`
}

// Service reads and edits user profiles.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetProfile returns the current profile fields for a user.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT name, email, plan, role FROM users WHERE id = ?`, userID,
	).Scan(&p.Name, &p.Email, &p.Plan, &p.Role)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateName changes the display name, the only profile field users may edit.
func (s *Service) UpdateName(ctx context.Context, userID int64, name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("O nome não pode ser vazio.")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, userID)
	if err != nil {
		return nil, fmt.Errorf("update name: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetProfile(ctx, userID)
}

// PlanOf returns the plan for a user, used by upload-limit checks.
func (s *Service) PlanOf(ctx context.Context, userID int64) (string, error) {
	var plan string
	err := s.db.QueryRowContext(ctx, `SELECT plan FROM users WHERE id = ?`, userID).Scan(&plan)
	if err != nil {
		return "", err
	}
	return plan, nil
}
