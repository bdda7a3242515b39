package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/observability/metrics"
)

type ChunkRepository struct {
	db      *sql.DB
	metrics *metrics.WorkerMetrics
	service string
}

func NewChunkRepository(db *sql.DB, m *metrics.WorkerMetrics, service string) *ChunkRepository {
	return &ChunkRepository{db: db, metrics: m, service: service}
}

// InsertBatch writes a chunk set inside one transaction so a crash can never
// leave half a document's chunks behind.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (
	id, document_id, collection_id, sequence_index, content, content_hash, embedding_model, metadata, parent_chunk_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`)
	if err != nil {
		return fmt.Errorf("prepare insert chunk: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		var parent any
		if chunk.ParentChunkID != "" {
			parent = chunk.ParentChunkID
		}
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.CollectionID, chunk.SequenceIndex,
			chunk.Content, chunk.ContentHash, chunk.EmbeddingModel, metadataJSON,
			parent, chunk.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert chunks tx: %w", err)
	}
	if r.metrics != nil {
		r.metrics.RecordChunksStored(r.service, len(chunks))
	}
	return nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, collection_id, sequence_index, content, content_hash, embedding_model, metadata, parent_chunk_id, created_at
FROM chunks
WHERE document_id = $1
ORDER BY sequence_index
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var metadataRaw []byte
		var parent sql.NullString
		if err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.CollectionID, &chunk.SequenceIndex,
			&chunk.Content, &chunk.ContentHash, &chunk.EmbeddingModel, &metadataRaw,
			&parent, &chunk.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(metadataRaw, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
		chunk.ParentChunkID = parent.String
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}
