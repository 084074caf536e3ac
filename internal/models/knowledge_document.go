package models

import "time"

// KnowledgeDocument is a manifest row for ingested material. The vectorized
// content itself lives in the external vector index, keyed by file name and
// profession tag.
type KnowledgeDocument struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"file_name"`
	AgentName  string    `json:"agent_name"`
	UploadedAt time.Time `json:"uploaded_at"`
}
