package accounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"facilityai/internal/config"
	"facilityai/internal/models"
	"facilityai/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func insertTestUser(t *testing.T, db *sql.DB, name, plan string) int64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(
		`INSERT INTO users (name, email, password_hash, role, plan, subscription_cycle,
		                    used_tokens_current_month, last_reset_date, created_at, is_active)
		 VALUES (?, ?, '', 'user', ?, 'Mensal', 0, ?, ?, 1)`,
		name, name+"@example.com", plan, now, now,
	)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return id
}

func TestGetProfile(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	userID := insertTestUser(t, db, "maria", models.PlanPlus)

	p, err := svc.GetProfile(context.Background(), userID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.Name != "maria" || p.Email != "maria@example.com" || p.Plan != models.PlanPlus || p.Role != "user" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestGetProfileUnknownUser(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)

	_, err := svc.GetProfile(context.Background(), 404)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestUpdateName(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	userID := insertTestUser(t, db, "joao", models.PlanFree)

	p, err := svc.UpdateName(context.Background(), userID, "  João Silva  ")
	if err != nil {
		t.Fatalf("update name: %v", err)
	}
	if p.Name != "João Silva" {
		t.Fatalf("name = %q", p.Name)
	}
}

func TestUpdateNameRejectsBlank(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	userID := insertTestUser(t, db, "lia", models.PlanFree)

	if _, err := svc.UpdateName(context.Background(), userID, "   "); err == nil {
		t.Fatal("blank name must be rejected")
	}
	p, err := svc.GetProfile(context.Background(), userID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.Name != "lia" {
		t.Fatalf("name must be unchanged, got %q", p.Name)
	}
}

func TestUpdateNameUnknownUser(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)

	_, err := svc.UpdateName(context.Background(), 999, "alguém")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestPlanOf(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	userID := insertTestUser(t, db, "nina", models.PlanPro)

	plan, err := svc.PlanOf(context.Background(), userID)
	if err != nil {
		t.Fatalf("plan of: %v", err)
	}
	if plan != models.PlanPro {
		t.Fatalf("plan = %q", plan)
	}
}
