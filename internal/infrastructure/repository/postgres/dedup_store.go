package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DedupStore persists the (content hash, embedding model) to chunk mapping.
// Entries ride on the chunks table via ON DELETE CASCADE, so a stale mapping
// disappears together with its chunk.
type DedupStore struct {
	db *sql.DB
}

func NewDedupStore(db *sql.DB) *DedupStore {
	return &DedupStore{db: db}
}

func (s *DedupStore) Lookup(ctx context.Context, contentHash, embeddingModel string) (string, bool, error) {
	var chunkID string
	err := s.db.QueryRowContext(ctx, `
SELECT chunk_id FROM dedup_entries
WHERE content_hash = $1 AND embedding_model = $2
`, contentHash, embeddingModel).Scan(&chunkID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup dedup entry: %w", err)
	}
	return chunkID, true, nil
}

// Record is insert-if-absent: when two workers race, the first mapping wins
// and both proceed, pointing at a valid chunk either way.
func (s *DedupStore) Record(ctx context.Context, contentHash, embeddingModel, chunkID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dedup_entries (content_hash, embedding_model, chunk_id)
VALUES ($1, $2, $3)
ON CONFLICT (content_hash, embedding_model) DO NOTHING
`, contentHash, embeddingModel, chunkID)
	if err != nil {
		return fmt.Errorf("record dedup entry: %w", err)
	}
	return nil
}
