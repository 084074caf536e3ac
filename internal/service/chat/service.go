package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"facilityai/internal/models"
	"facilityai/internal/service/ai"
	"facilityai/internal/service/retrieval"
)

// User-visible replies for the degraded terminal states.
const (
	msgUserNotFound = "Erro: Usuário não encontrado."
	msgUserLoad     = "Erro ao carregar os dados do usuário."
	msgNoResponse   = "A IA não retornou resposta."
	msgOffline      = "[MODO OFFLINE] A IA não está respondendo. Verifique se a chave da API foi configurada corretamente."
)

// Generator produces one completion over an ordered message sequence.
type Generator interface {
	Complete(ctx context.Context, msgs []ai.Message) (reply string, totalTokens int, err error)
}

// Embedder computes the query embedding used for retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generation is the configured-or-not state of the completion backend. The
// offline variant is a deliberate degraded mode, not an error.
type Generation interface {
	generation()
}

// GenerationOffline means no completion backend was configured.
type GenerationOffline struct{}

func (GenerationOffline) generation() {}

// GenerationLive wraps a working completion backend.
type GenerationLive struct {
	Client Generator
}

func (GenerationLive) generation() {}

// Service is the chat orchestrator: quota admission, context assembly,
// generation, and usage accounting.
type Service struct {
	db       *sql.DB
	gen      Generation
	embedder Embedder
	searcher retrieval.Searcher
}

// NewService wires the orchestrator. embedder and searcher may be nil, which
// disables retrieval augmentation.
func NewService(db *sql.DB, gen Generation, embedder Embedder, searcher retrieval.Searcher) *Service {
	if gen == nil {
		gen = GenerationOffline{}
	}
	return &Service{db: db, gen: gen, embedder: embedder, searcher: searcher}
}

// Terminal states of one chat round trip. All of them are valid endings; the
// caller sees a (text, tokens) pair either way.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeUserNotFound
	outcomeLoadError
	outcomeDenied
	outcomeOffline
	outcomeProviderError
	outcomeEmptyReply
)

// Respond runs one chat round trip and returns the reply text plus the token
// count charged against the user's quota. Every outcome, including provider
// failure, is a (text, tokens) pair; nothing escapes as a fault.
func (s *Service) Respond(ctx context.Context, userMessage, agentID string, history []models.ChatMessage, userID int64) (string, int) {
	reply, tokens, _ := s.respond(ctx, userMessage, agentID, history, userID)
	return reply, tokens
}

// Converse is the HTTP-facing round trip: it loads the stored history window,
// runs Respond, and appends the exchange to history when a real generation
// happened.
func (s *Service) Converse(ctx context.Context, userID int64, agentID, userMessage string) (string, int, error) {
	history, err := s.LoadHistory(ctx, userID, agentID, DefaultHistoryWindow)
	if err != nil {
		return "", 0, err
	}
	reply, tokens, out := s.respond(ctx, userMessage, agentID, history, userID)
	if out == outcomeSuccess {
		if _, err := s.AddMessage(ctx, userID, agentID, models.SenderUser, userMessage); err != nil {
			log.Printf("record user message: %v", err)
		}
		if _, err := s.AddMessage(ctx, userID, agentID, models.SenderAssistant, reply); err != nil {
			log.Printf("record assistant message: %v", err)
		}
	}
	return reply, tokens, nil
}

func (s *Service) respond(ctx context.Context, userMessage, agentID string, history []models.ChatMessage, userID int64) (string, int, outcome) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Printf("user %d not found for chat", userID)
			return msgUserNotFound, 0, outcomeUserNotFound
		}
		log.Printf("load user %d: %v", userID, err)
		return msgUserLoad, 0, outcomeLoadError
	}

	now := time.Now().UTC()
	adm := admit(user, now)
	if !adm.allowed {
		s.persistResetIfNeeded(ctx, user, adm.reset, now)
		return adm.reason, 0, outcomeDenied
	}

	instruction := s.BuildSystemPrompt(ctx, agentID, userMessage)
	msgs := buildMessages(instruction, history, userMessage)

	live, ok := s.gen.(GenerationLive)
	if !ok {
		log.Printf("generating offline reply for agent %q", agentID)
		s.persistResetIfNeeded(ctx, user, adm.reset, now)
		return msgOffline, 0, outcomeOffline
	}

	reply, tokens, err := live.Client.Complete(ctx, msgs)
	if err != nil {
		log.Printf("completion for user %d failed: %v", userID, err)
		s.persistResetIfNeeded(ctx, user, adm.reset, now)
		return fmt.Sprintf("Erro de comunicação com a IA: %v", err), 0, outcomeProviderError
	}
	if reply == "" {
		s.persistResetIfNeeded(ctx, user, adm.reset, now)
		return msgNoResponse, 0, outcomeEmptyReply
	}

	if err := s.commitUsage(ctx, user.ID, int64(tokens), adm.reset, now); err != nil {
		log.Printf("commit usage for user %d: %v", userID, err)
	}
	return reply, tokens, outcomeSuccess
}

// buildMessages assembles the ordered sequence: system instruction first,
// then the caller-supplied history translated by sender, then the new user
// message. Order and length are preserved exactly.
func buildMessages(instruction string, history []models.ChatMessage, userMessage string) []ai.Message {
	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: instruction})
	for _, m := range history {
		role := ai.RoleAssistant
		if m.Sender == models.SenderUser {
			role = ai.RoleUser
		}
		msgs = append(msgs, ai.Message{Role: role, Content: m.Text})
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: userMessage})
	return msgs
}

func (s *Service) loadUser(ctx context.Context, userID int64) (*models.User, error) {
	var (
		user      models.User
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, plan, subscription_cycle,
		        used_tokens_current_month, last_reset_date, created_at, is_active, last_login
		   FROM users WHERE id = ?`, userID,
	).Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.Plan, &user.SubscriptionCycle,
		&user.UsedTokensCurrentMonth, &user.LastResetDate, &user.CreatedAt, &user.IsActive, &lastLogin)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	return &user, nil
}

// commitUsage charges tokens against the monthly counter. The increment runs
// inside the storage engine so concurrent requests cannot lose updates; when
// a reset fired this call, the counter restarts from exactly this charge.
func (s *Service) commitUsage(ctx context.Context, userID, tokens int64, resetApplied bool, now time.Time) error {
	if resetApplied {
		_, err := s.db.ExecContext(ctx,
			`UPDATE users SET used_tokens_current_month = ?, last_reset_date = ?, last_login = ? WHERE id = ?`,
			tokens, now, now, userID,
		)
		if err != nil {
			return fmt.Errorf("commit usage with reset: %w", err)
		}
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET used_tokens_current_month = used_tokens_current_month + ?, last_login = ? WHERE id = ?`,
		tokens, now, userID,
	)
	if err != nil {
		return fmt.Errorf("commit usage: %w", err)
	}
	return nil
}

// persistResetIfNeeded saves a monthly reset that fired during admission even
// when the request ends without a usage commit, so the reset is not lost.
func (s *Service) persistResetIfNeeded(ctx context.Context, user *models.User, resetApplied bool, now time.Time) {
	if !resetApplied {
		return
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET used_tokens_current_month = 0, last_reset_date = ? WHERE id = ?`,
		now, user.ID,
	)
	if err != nil {
		log.Printf("persist quota reset for user %d: %v", user.ID, err)
	}
}
