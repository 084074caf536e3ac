package chat

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"

	"facilityai/internal/service/ai"
)

const (
	defaultSystemInstruction = "Você é um assistente virtual útil e profissional."
	knowledgeSectionHeader   = "BASE DE CONHECIMENTO (Use isso para responder):"
	passageSeparator         = "\n---\n"
	contextTopK              = 3
)

// BuildSystemPrompt resolves the agent's persona instruction and augments it
// with retrieved knowledge passages. Retrieval problems of any kind degrade
// to the bare instruction; this path never fails the chat request.
func (s *Service) BuildSystemPrompt(ctx context.Context, agentID, userQuery string) string {
	instruction := defaultSystemInstruction
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT system_instruction FROM agents WHERE name = ?`, agentID,
	).Scan(&stored)
	switch {
	case err == nil:
		instruction = stored
	case errors.Is(err, sql.ErrNoRows):
		// unknown agent keeps the generic instruction
	default:
		log.Printf("lookup agent %q: %v", agentID, err)
	}

	knowledge := s.retrieveKnowledge(ctx, userQuery, agentID)
	if knowledge != "" {
		instruction += "\n\n" + knowledgeSectionHeader + "\n" + knowledge + "\n"
	}
	return instruction
}

// retrieveKnowledge embeds the query and pulls the nearest passages for the
// agent's professional domain. An unconfigured or failing provider yields an
// empty context, never an error.
func (s *Service) retrieveKnowledge(ctx context.Context, query, profession string) string {
	if s.embedder == nil || s.searcher == nil {
		return ""
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if !errors.Is(err, ai.ErrNoEmbedder) {
			log.Printf("embed chat query: %v", err)
		}
		return ""
	}
	passages, err := s.searcher.Search(ctx, vector, profession, contextTopK)
	if err != nil {
		log.Printf("search knowledge for %q: %v", profession, err)
		return ""
	}

	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		if p.Text == "" {
			continue
		}
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, passageSeparator)
}
