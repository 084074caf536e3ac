package admin

import (
	"context"
	"database/sql"
	"errors"
	"math"
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

func insertTestUser(t *testing.T, db *sql.DB, name, plan, role string, used int64) int64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(
		`INSERT INTO users (name, email, password_hash, role, plan, subscription_cycle,
		                    used_tokens_current_month, last_reset_date, created_at, is_active)
		 VALUES (?, ?, '', ?, ?, 'Mensal', ?, ?, ?, 1)`,
		name, name+"@example.com", role, plan, used, now, now,
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

func insertTestMessage(t *testing.T, db *sql.DB, userID int64, agentName string) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO chat_messages (user_id, agent_id, sender, text, created_at) VALUES (?, ?, 'user', 'oi', ?)`,
		userID, agentName, time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
}

func TestUserReportOrderingAndMostUsedAgent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)

	heavy := insertTestUser(t, db, "heavy", models.PlanPro, "user", 9000)
	light := insertTestUser(t, db, "light", models.PlanFree, "user", 100)
	idle := insertTestUser(t, db, "idle", models.PlanFree, "user", 0)

	insertTestMessage(t, db, heavy, "Advogado")
	insertTestMessage(t, db, heavy, "Advogado")
	insertTestMessage(t, db, heavy, "Contador")
	insertTestMessage(t, db, light, "Contador")

	report, err := svc.UserReport(context.Background())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report) != 3 {
		t.Fatalf("rows = %d, want 3", len(report))
	}
	if report[0].ID != heavy || report[1].ID != light || report[2].ID != idle {
		t.Fatalf("rows must order by spend: %+v", report)
	}
	if report[0].MostUsedAgent != "Advogado" {
		t.Fatalf("most used agent = %q, want Advogado", report[0].MostUsedAgent)
	}
	if report[1].MostUsedAgent != "Contador" {
		t.Fatalf("most used agent = %q, want Contador", report[1].MostUsedAgent)
	}
	if report[2].MostUsedAgent != "Nenhum" {
		t.Fatalf("user without messages must show 'Nenhum', got %q", report[2].MostUsedAgent)
	}
}

func TestUpdateUserPlanAndAdminRule(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)
	userID := insertTestUser(t, db, "promovido", models.PlanFree, "user", 0)

	if err := svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID: userID, NewPlan: "Admin",
	}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	var plan, role string
	if err := db.QueryRow(`SELECT plan, role FROM users WHERE id = ?`, userID).Scan(&plan, &role); err != nil {
		t.Fatalf("query: %v", err)
	}
	if plan != "Admin" || role != "admin" {
		t.Fatalf("after promotion plan=%q role=%q", plan, role)
	}

	if err := svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID: userID, NewPlan: models.PlanPro,
	}); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if err := db.QueryRow(`SELECT plan, role FROM users WHERE id = ?`, userID).Scan(&plan, &role); err != nil {
		t.Fatalf("query: %v", err)
	}
	if plan != models.PlanPro || role != "user" {
		t.Fatalf("after demotion plan=%q role=%q", plan, role)
	}
}

func TestUpdateUserResetTokens(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)
	old := time.Now().UTC().AddDate(0, -2, 0)
	userID := insertTestUser(t, db, "gastador", models.PlanPro, "user", 4321)
	if _, err := db.Exec(`UPDATE users SET last_reset_date = ? WHERE id = ?`, old, userID); err != nil {
		t.Fatalf("backdate reset: %v", err)
	}

	if err := svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID: userID, ResetTokens: true,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	var (
		used      int64
		lastReset time.Time
	)
	if err := db.QueryRow(
		`SELECT used_tokens_current_month, last_reset_date FROM users WHERE id = ?`, userID,
	).Scan(&used, &lastReset); err != nil {
		t.Fatalf("query: %v", err)
	}
	if used != 0 {
		t.Fatalf("used = %d, want 0", used)
	}
	if !lastReset.After(old) {
		t.Fatal("last_reset_date must advance on an admin reset")
	}
}

func TestUpdateUserCycleOnly(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)
	userID := insertTestUser(t, db, "ciclico", models.PlanPlus, "user", 50)

	if err := svc.UpdateUser(context.Background(), UpdateUserRequest{
		UserID: userID, NewCycle: "Anual",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	var plan, cycle string
	var used int64
	if err := db.QueryRow(
		`SELECT plan, subscription_cycle, used_tokens_current_month FROM users WHERE id = ?`, userID,
	).Scan(&plan, &cycle, &used); err != nil {
		t.Fatalf("query: %v", err)
	}
	if cycle != "Anual" {
		t.Fatalf("cycle = %q", cycle)
	}
	if plan != models.PlanPlus || used != 50 {
		t.Fatalf("cycle change must not touch plan or tokens: plan=%q used=%d", plan, used)
	}
}

func TestUpdateUserUnknownID(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)

	err := svc.UpdateUser(context.Background(), UpdateUserRequest{UserID: 777, NewPlan: models.PlanPro})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestDashboardStatsRevenue(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db, nil)

	insertTestUser(t, db, "pro1", models.PlanPro, "user", 0)
	insertTestUser(t, db, "pro2", models.PlanPro, "user", 0)
	insertTestUser(t, db, "plus1", models.PlanPlus, "user", 0)
	insertTestUser(t, db, "free1", models.PlanFree, "user", 0)

	stats, err := svc.DashboardStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 4 {
		t.Fatalf("total users = %d, want 4", stats.TotalUsers)
	}
	if stats.TotalPro != 2 {
		t.Fatalf("total pro = %d, want 2", stats.TotalPro)
	}
	want := 2*149.90 + 59.90
	if math.Abs(stats.Revenue-want) > 0.001 {
		t.Fatalf("revenue = %.2f, want %.2f", stats.Revenue, want)
	}
}
