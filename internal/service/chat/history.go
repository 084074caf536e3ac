package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"facilityai/internal/models"
)

// DefaultHistoryWindow bounds how many stored turns feed one completion.
const DefaultHistoryWindow = 50

// LoadHistory returns the latest messages exchanged between a user and an
// agent, ordered oldest to newest, ready to hand to Respond.
func (s *Service) LoadHistory(ctx context.Context, userID int64, agentID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryWindow
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, agent_id, sender, text, created_at FROM (
			SELECT id, user_id, agent_id, sender, text, created_at
			  FROM chat_messages
			 WHERE user_id = ? AND agent_id = ?
			 ORDER BY id DESC LIMIT ?
		 ) latest ORDER BY id ASC`,
		userID, agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var history []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.AgentID, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

// AddMessage persists one turn of conversation history.
func (s *Service) AddMessage(ctx context.Context, userID int64, agentID, sender, text string) (*models.ChatMessage, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, errors.New("agent_id is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (user_id, agent_id, sender, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, agentID, sender, text, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	return &models.ChatMessage{
		ID: id, UserID: userID, AgentID: agentID,
		Sender: sender, Text: text, CreatedAt: now,
	}, nil
}
