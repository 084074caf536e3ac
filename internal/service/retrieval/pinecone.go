package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"facilityai/internal/config"
)

// Metadata keys stored on every vector. "texto" carries the passage text and
// "profissao" the professional-domain tag the search filters on; existing
// indexes were built with these names.
const (
	metadataTextKey       = "texto"
	metadataProfessionKey = "profissao"
	metadataFileKey       = "arquivo"
)

const defaultIndexName = "facility-ia"

// PineconeStore implements Store on a Pinecone serverless index.
type PineconeStore struct {
	conn *pinecone.IndexConnection
}

// NewPineconeStore resolves the configured index and opens a connection to it.
func NewPineconeStore(ctx context.Context, cfg *config.Config) (*PineconeStore, error) {
	if cfg.Pinecone.APIKey == "" {
		return nil, errors.New("pinecone api key not configured")
	}
	indexName := cfg.Pinecone.Index
	if indexName == "" {
		indexName = defaultIndexName
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.Pinecone.APIKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone client: %w", err)
	}
	idx, err := pc.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("describe index %s: %w", indexName, err)
	}
	conn, err := pc.Index(pinecone.NewIndexConnParams{
		Host:      idx.Host,
		Namespace: cfg.Pinecone.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect index %s: %w", indexName, err)
	}
	return &PineconeStore{conn: conn}, nil
}

// Search returns the topK nearest passages carrying a non-empty text field.
func (s *PineconeStore) Search(ctx context.Context, vector []float32, profession string, topK int) ([]Passage, error) {
	filter, err := structpb.NewStruct(map[string]interface{}{
		metadataProfessionKey: profession,
	})
	if err != nil {
		return nil, fmt.Errorf("build metadata filter: %w", err)
	}

	res, err := s.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		MetadataFilter:  filter,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	var passages []Passage
	for _, match := range res.Matches {
		if match == nil || match.Vector == nil || match.Vector.Metadata == nil {
			continue
		}
		field, ok := match.Vector.Metadata.Fields[metadataTextKey]
		if !ok {
			continue
		}
		text := field.GetStringValue()
		if text == "" {
			continue
		}
		passages = append(passages, Passage{Text: text, Score: match.Score})
	}
	return passages, nil
}

// Upsert writes the given records into the index.
func (s *PineconeStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]*pinecone.Vector, 0, len(records))
	for _, rec := range records {
		metadata, err := structpb.NewStruct(map[string]interface{}{
			metadataTextKey:       rec.Text,
			metadataProfessionKey: rec.Profession,
			metadataFileKey:       rec.FileName,
		})
		if err != nil {
			return fmt.Errorf("build metadata for %s: %w", rec.ID, err)
		}
		values := rec.Values
		vectors = append(vectors, &pinecone.Vector{
			Id:       rec.ID,
			Values:   &values,
			Metadata: metadata,
		})
	}
	if _, err := s.conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// DeleteByFile removes every vector ingested from the named file.
func (s *PineconeStore) DeleteByFile(ctx context.Context, fileName string) error {
	filter, err := structpb.NewStruct(map[string]interface{}{
		metadataFileKey: fileName,
	})
	if err != nil {
		return fmt.Errorf("build delete filter: %w", err)
	}
	if err := s.conn.DeleteVectorsByFilter(ctx, filter); err != nil {
		return fmt.Errorf("delete vectors for %s: %w", fileName, err)
	}
	return nil
}
