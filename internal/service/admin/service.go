package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"facilityai/internal/models"
	"facilityai/internal/redis"
)

const (
	statsCacheKey = "admin:dashboard-stats"
	statsCacheTTL = time.Minute
)

// Estimated monthly price per plan, used by the revenue figure.
const (
	priceMonthlyPro  = 149.90
	priceMonthlyPlus = 59.90
)

// UserReportRow is one line of the admin usage report. A fixed struct rather
// than a dynamic bag so the JSON shape is part of the contract.
type UserReportRow struct {
	ID                     int64      `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	Plan                   string     `json:"plan"`
	Role                   string     `json:"role"`
	SubscriptionCycle      string     `json:"subscription_cycle"`
	CreatedAt              time.Time  `json:"created_at"`
	LastLogin              *time.Time `json:"last_login,omitempty"`
	MostUsedAgent          string     `json:"most_used_agent"`
	UsedTokensCurrentMonth int64      `json:"used_tokens_current_month"`
}

// DashboardStats summarizes the account base for the admin dashboard.
type DashboardStats struct {
	TotalUsers int64   `json:"total_users"`
	TotalPro   int64   `json:"total_pro"`
	Revenue    float64 `json:"revenue"`
}

// UpdateUserRequest carries the fields an admin may change on an account.
type UpdateUserRequest struct {
	UserID      int64  `json:"user_id"`
	NewPlan     string `json:"new_plan"`
	NewCycle    string `json:"new_cycle"`
	ResetTokens bool   `json:"reset_tokens"`
}

// Service implements the admin reporting and account-management operations.
type Service struct {
	db    *sql.DB
	cache *redis.Client
}

// NewService builds the admin service. cache may be nil, which disables
// dashboard caching.
func NewService(db *sql.DB, cache *redis.Client) *Service {
	return &Service{db: db, cache: cache}
}

// UserReport lists every account with its most-used agent, heaviest token
// spenders first.
func (s *Service) UserReport(ctx context.Context) ([]UserReportRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.email, u.plan, u.role, u.subscription_cycle,
		        u.created_at, u.last_login, u.used_tokens_current_month,
		        COALESCE((
		            SELECT m.agent_id FROM chat_messages m
		             WHERE m.user_id = u.id
		             GROUP BY m.agent_id
		             ORDER BY COUNT(*) DESC
		             LIMIT 1
		        ), 'Nenhum')
		   FROM users u
		  ORDER BY u.used_tokens_current_month DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query user report: %w", err)
	}
	defer rows.Close()

	var report []UserReportRow
	for rows.Next() {
		var (
			row       UserReportRow
			lastLogin sql.NullTime
		)
		if err := rows.Scan(&row.ID, &row.Name, &row.Email, &row.Plan, &row.Role,
			&row.SubscriptionCycle, &row.CreatedAt, &lastLogin,
			&row.UsedTokensCurrentMonth, &row.MostUsedAgent); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if lastLogin.Valid {
			row.LastLogin = &lastLogin.Time
		}
		report = append(report, row)
	}
	return report, rows.Err()
}

// UpdateUser applies plan/cycle changes and the admin promotion rule: the
// "Admin" plan grants the admin role, leaving it revokes the role.
func (s *Service) UpdateUser(ctx context.Context, req UpdateUserRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var role string
	err = tx.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, req.UserID).Scan(&role)
	if err != nil {
		return err
	}

	newPlan := strings.TrimSpace(req.NewPlan)
	if newPlan != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET plan = ? WHERE id = ?`, newPlan, req.UserID); err != nil {
			return fmt.Errorf("update plan: %w", err)
		}
		switch {
		case newPlan == "Admin":
			role = "admin"
		case role == "admin":
			role = "user"
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, role, req.UserID); err != nil {
			return fmt.Errorf("update role: %w", err)
		}
	}
	if cycle := strings.TrimSpace(req.NewCycle); cycle != "" {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET subscription_cycle = ? WHERE id = ?`, cycle, req.UserID); err != nil {
			return fmt.Errorf("update cycle: %w", err)
		}
	}
	if req.ResetTokens {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET used_tokens_current_month = 0, last_reset_date = ? WHERE id = ?`,
			time.Now().UTC(), req.UserID,
		); err != nil {
			return fmt.Errorf("reset tokens: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	s.invalidateStats(ctx)
	return nil
}

// DashboardStats computes the dashboard counters, served from redis when a
// fresh copy is cached.
func (s *Service) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, statsCacheKey); err == nil {
			var stats DashboardStats
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				return &stats, nil
			}
		} else if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("dashboard stats cache read: %v", err)
		}
	}

	var stats DashboardStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE plan = ?`, models.PlanPro,
	).Scan(&stats.TotalPro); err != nil {
		return nil, fmt.Errorf("count pro users: %w", err)
	}
	var plusCount int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE plan = ?`, models.PlanPlus,
	).Scan(&plusCount); err != nil {
		return nil, fmt.Errorf("count plus users: %w", err)
	}
	stats.Revenue = float64(stats.TotalPro)*priceMonthlyPro + float64(plusCount)*priceMonthlyPlus

	if s.cache != nil {
		if payload, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, statsCacheKey, payload, statsCacheTTL); err != nil {
				log.Printf("dashboard stats cache write: %v", err)
			}
		}
	}
	return &stats, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsCacheKey); err != nil {
		log.Printf("invalidate stats cache: %v", err)
	}
}
