package agents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"facilityai/internal/models"
)

// Per-plan creation rules: entry plans only use official agents, Plus may own
// a handful, higher plans are uncapped.
const maxPlusAgents = 5

var (
	// ErrPlanForbidsAgents means the plan only grants access to system agents.
	ErrPlanForbidsAgents = errors.New("Usuários Iniciantes usam apenas agentes oficiais.")
	// ErrAgentLimitReached means the plan's own-agent cap was hit.
	ErrAgentLimitReached = fmt.Errorf("Limite de %d Agentes atingido.", maxPlusAgents)
)

// Service manages AI personas.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// List returns system agents plus the ones the user created.
func (s *Service) List(ctx context.Context, userID int64) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, specialty, system_instruction, creator_id
		   FROM agents WHERE creator_id IS NULL OR creator_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var (
			a       models.Agent
			creator sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Specialty, &a.SystemInstruction, &creator); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if creator.Valid {
			a.CreatorID = &creator.Int64
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// FindByName returns the agent with the exact given name.
func (s *Service) FindByName(ctx context.Context, name string) (*models.Agent, error) {
	var (
		a       models.Agent
		creator sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, specialty, system_instruction, creator_id FROM agents WHERE name = ?`, name,
	).Scan(&a.ID, &a.Name, &a.Specialty, &a.SystemInstruction, &creator)
	if err != nil {
		return nil, err
	}
	if creator.Valid {
		a.CreatorID = &creator.Int64
	}
	return &a, nil
}

// Create adds a user-owned agent, enforcing the plan's creation rules.
func (s *Service) Create(ctx context.Context, creatorID int64, name, prompt string) (*models.Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("agent name is required")
	}

	var plan string
	err := s.db.QueryRowContext(ctx, `SELECT plan FROM users WHERE id = ?`, creatorID).Scan(&plan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("lookup creator: %w", err)
	}

	switch plan {
	case models.PlanFree, models.PlanIniciante:
		return nil, ErrPlanForbidsAgents
	case models.PlanPlus:
		var owned int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM agents WHERE creator_id = ?`, creatorID,
		).Scan(&owned); err != nil {
			return nil, fmt.Errorf("count agents: %w", err)
		}
		if owned >= maxPlusAgents {
			return nil, ErrAgentLimitReached
		}
	}

	agent := models.Agent{
		Name:              name,
		Specialty:         "Personalizado",
		SystemInstruction: prompt,
		CreatorID:         &creatorID,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (name, specialty, system_instruction, creator_id) VALUES (?, ?, ?, ?)`,
		agent.Name, agent.Specialty, agent.SystemInstruction, creatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	agent.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("agent id: %w", err)
	}
	return &agent, nil
}

// UpdatePrompt replaces the persona instruction of the named agent.
func (s *Service) UpdatePrompt(ctx context.Context, agentName, newPrompt string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET system_instruction = ? WHERE name = ?`, newPrompt, agentName,
	)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Seed creates the given system agents if they are not present yet. Used at
// startup so a fresh install has the official personas.
func (s *Service) Seed(ctx context.Context, seed []models.Agent) error {
	for _, agent := range seed {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO agents (name, specialty, system_instruction, creator_id)
			 SELECT ?, ?, ?, NULL
			 WHERE NOT EXISTS (SELECT 1 FROM agents WHERE name = ?)`,
			agent.Name, agent.Specialty, agent.SystemInstruction, agent.Name,
		)
		if err != nil {
			return fmt.Errorf("seed agent %s: %w", agent.Name, err)
		}
	}
	return nil
}
