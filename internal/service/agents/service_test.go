package agents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

func TestCreateDeniedForEntryPlans(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)

	for _, plan := range []string{models.PlanFree, models.PlanIniciante} {
		userID := insertTestUser(t, db, "user-"+plan, plan)
		_, err := svc.Create(context.Background(), userID, "Meu Agente", "prompt")
		if !errors.Is(err, ErrPlanForbidsAgents) {
			t.Fatalf("plan %s: err = %v, want ErrPlanForbidsAgents", plan, err)
		}
	}
}

func TestCreatePlusCapAtFive(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	userID := insertTestUser(t, db, "plus", models.PlanPlus)

	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("Agente %d", i)
		if _, err := svc.Create(context.Background(), userID, name, "prompt"); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	_, err := svc.Create(context.Background(), userID, "Agente 6", "prompt")
	if !errors.Is(err, ErrAgentLimitReached) {
		t.Fatalf("err = %v, want ErrAgentLimitReached", err)
	}
}

func TestCreateProUncapped(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	userID := insertTestUser(t, db, "pro", models.PlanPro)

	for i := 0; i < 7; i++ {
		name := fmt.Sprintf("Agente Pro %d", i)
		agent, err := svc.Create(context.Background(), userID, name, "prompt")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if agent.Specialty != "Personalizado" {
			t.Fatalf("specialty = %q", agent.Specialty)
		}
		if agent.CreatorID == nil || *agent.CreatorID != userID {
			t.Fatalf("creator = %v, want %d", agent.CreatorID, userID)
		}
	}
}

func TestCreateRejectsBlankName(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	userID := insertTestUser(t, db, "pro2", models.PlanPro)

	if _, err := svc.Create(context.Background(), userID, "   ", "prompt"); err == nil {
		t.Fatal("blank name must be rejected")
	}
}

func TestListScopesToOwnerAndSystem(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	owner := insertTestUser(t, db, "owner", models.PlanPro)
	other := insertTestUser(t, db, "other", models.PlanPro)

	if err := svc.Seed(context.Background(), []models.Agent{
		{Name: "Advogado", Specialty: "Direito", SystemInstruction: "advoga"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.Create(context.Background(), owner, "Privado do Dono", "p"); err != nil {
		t.Fatalf("create owner agent: %v", err)
	}
	if _, err := svc.Create(context.Background(), other, "Privado do Outro", "p"); err != nil {
		t.Fatalf("create other agent: %v", err)
	}

	agents, err := svc.List(context.Background(), owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("len = %d, want 2 (system + own)", len(agents))
	}
	for _, a := range agents {
		if a.Name == "Privado do Outro" {
			t.Fatal("another user's agent leaked into the listing")
		}
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	seed := []models.Agent{
		{Name: "Advogado", Specialty: "Direito", SystemInstruction: "v1"},
		{Name: "Contador", Specialty: "Contabilidade", SystemInstruction: "v1"},
	}
	for i := 0; i < 3; i++ {
		if err := svc.Seed(context.Background(), seed); err != nil {
			t.Fatalf("seed pass %d: %v", i, err)
		}
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM agents`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("agent count = %d, want 2", count)
	}
}

func TestUpdatePromptUnknownAgent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)

	err := svc.UpdatePrompt(context.Background(), "Fantasma", "novo prompt")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestUpdatePromptReplacesInstruction(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	if err := svc.Seed(context.Background(), []models.Agent{
		{Name: "Advogado", Specialty: "Direito", SystemInstruction: "antigo"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.UpdatePrompt(context.Background(), "Advogado", "novo"); err != nil {
		t.Fatalf("update: %v", err)
	}
	agent, err := svc.FindByName(context.Background(), "Advogado")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if agent.SystemInstruction != "novo" {
		t.Fatalf("instruction = %q", agent.SystemInstruction)
	}
}
