package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"facilityai/internal/models"
	"facilityai/internal/service/retrieval"
)

// chunkSize is the rune window each ingested document is split into before
// embedding. Chunks overlap slightly so sentences cut at a boundary still
// retrieve.
const (
	chunkSize    = 1200
	chunkOverlap = 120
)

// Per-plan upload ceilings in bytes. Pro and Enterprise use the server cap.
const (
	uploadLimitFree = 2 << 20
	uploadLimitPlus = 5 << 20
	uploadLimitMax  = 50 << 20
)

// Embedder turns a chunk of text into its vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service ingests knowledge material into the vector index and keeps the
// manifest of what was ingested.
type Service struct {
	db       *sql.DB
	embedder Embedder
	store    retrieval.Store
}

func NewService(db *sql.DB, embedder Embedder, store retrieval.Store) *Service {
	return &Service{db: db, embedder: embedder, store: store}
}

// UploadLimit returns the maximum accepted upload size for a plan.
func UploadLimit(plan string) int64 {
	switch plan {
	case models.PlanFree, models.PlanIniciante:
		return uploadLimitFree
	case models.PlanPlus:
		return uploadLimitPlus
	default:
		return uploadLimitMax
	}
}

// UploadLimitMessage is the user-facing rejection for an oversized upload.
func UploadLimitMessage(plan string) string {
	switch plan {
	case models.PlanFree, models.PlanIniciante:
		return "O plano Iniciante permite arquivos de até 2MB. Faça upgrade para enviar arquivos maiores."
	case models.PlanPlus:
		return "O plano Plus permite arquivos de até 5MB. O plano Pro aceita até 50MB."
	default:
		return "O arquivo excede o limite de 50MB."
	}
}

// IngestText chunks the text, embeds each chunk, writes the vectors with
// their profession tag, and records the manifest row.
func (s *Service) IngestText(ctx context.Context, text, profession, sourceName string) (*models.KnowledgeDocument, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text is required")
	}
	profession = strings.TrimSpace(profession)
	if profession == "" {
		return nil, errors.New("profession is required")
	}
	if sourceName == "" {
		sourceName = "Texto Manual"
	}
	if s.embedder == nil || s.store == nil {
		return nil, errors.New("knowledge ingestion is not configured")
	}

	chunks := splitChunks(text, chunkSize, chunkOverlap)
	records := make([]retrieval.Record, 0, len(chunks))
	for i, chunk := range chunks {
		vector, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of %s: %w", i, sourceName, err)
		}
		records = append(records, retrieval.Record{
			ID:         fmt.Sprintf("%s#%d", sourceName, i),
			Values:     vector,
			Text:       chunk,
			Profession: profession,
			FileName:   sourceName,
		})
	}
	if err := s.store.Upsert(ctx, records); err != nil {
		return nil, fmt.Errorf("index %s: %w", sourceName, err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_documents (file_name, agent_name, uploaded_at) VALUES (?, ?, ?)`,
		sourceName, profession, now,
	)
	if err != nil {
		return nil, fmt.Errorf("record document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("document id: %w", err)
	}
	return &models.KnowledgeDocument{ID: id, FileName: sourceName, AgentName: profession, UploadedAt: now}, nil
}

// ListDocuments returns the ingestion manifest, newest first.
func (s *Service) ListDocuments(ctx context.Context) ([]models.KnowledgeDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, agent_name, uploaded_at FROM knowledge_documents ORDER BY uploaded_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.KnowledgeDocument
	for rows.Next() {
		var d models.KnowledgeDocument
		if err := rows.Scan(&d.ID, &d.FileName, &d.AgentName, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes the document's vectors from the index and then its
// manifest row. Without a configured index the delete is refused: dropping
// the manifest row alone would orphan vectors ingested under an earlier
// configuration.
func (s *Service) DeleteDocument(ctx context.Context, id int64) error {
	var fileName string
	err := s.db.QueryRowContext(ctx,
		`SELECT file_name FROM knowledge_documents WHERE id = ?`, id,
	).Scan(&fileName)
	if err != nil {
		return err
	}

	if s.store == nil {
		return errors.New("vector index is not configured, vectors cannot be removed")
	}
	if err := s.store.DeleteByFile(ctx, fileName); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// splitChunks windows the text by runes so multi-byte characters never split.
// Every returned chunk is non-empty.
func splitChunks(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
