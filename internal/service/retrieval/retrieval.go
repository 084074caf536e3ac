package retrieval

import "context"

// Passage is one retrieved snippet with its similarity score.
type Passage struct {
	Text  string
	Score float32
}

// Record is one chunk to be indexed for later retrieval.
type Record struct {
	ID         string
	Values     []float32
	Text       string
	Profession string
	FileName   string
}

// Searcher answers nearest-neighbor queries filtered by profession tag.
type Searcher interface {
	Search(ctx context.Context, vector []float32, profession string, topK int) ([]Passage, error)
}

// Store extends Searcher with the write side used by knowledge ingestion.
type Store interface {
	Searcher
	Upsert(ctx context.Context, records []Record) error
	DeleteByFile(ctx context.Context, fileName string) error
}
