package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akarpov/ragindex/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	strategyJSON, err := json.Marshal(doc.Strategy)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, collection_id, filename, mime_type, content, strategy, status, error_message, error_code, chunks_total, chunks_done, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		doc.ID, doc.CollectionID, doc.Filename, doc.MimeType, doc.Content, strategyJSON,
		string(doc.Status), doc.Error, doc.ErrorCode, doc.ChunksTotal, doc.ChunksDone,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, collection_id, filename, mime_type, content, strategy, status, error_message, error_code, chunks_total, chunks_done, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var strategyRaw []byte
	var status string

	err := row.Scan(
		&doc.ID, &doc.CollectionID, &doc.Filename, &doc.MimeType, &doc.Content, &strategyRaw,
		&status, &doc.Error, &doc.ErrorCode, &doc.ChunksTotal, &doc.ChunksDone,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document",
				fmt.Errorf("document not found: %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if err := json.Unmarshal(strategyRaw, &doc.Strategy); err != nil {
		return nil, fmt.Errorf("unmarshal strategy: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

// Transition moves a document's status with a conditional update. It reports
// whether a row moved; a false return with a nil error means the document was
// not in any of the expected states, which callers treat as a lost race, not
// a failure.
func (r *DocumentRepository) Transition(
	ctx context.Context,
	id string,
	from []domain.DocumentStatus,
	to domain.DocumentStatus,
	errMessage, errCode string,
) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition: empty source status list")
	}

	placeholders := make([]string, len(from))
	args := []any{id, string(to), errMessage, errCode, time.Now().UTC()}
	for i, status := range from {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, string(status))
	}

	query := fmt.Sprintf(`
UPDATE documents
SET status = $2, error_message = $3, error_code = $4, updated_at = $5
WHERE id = $1 AND status IN (%s)
`, strings.Join(placeholders, ","))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// Distinguish a lost race from a missing document.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check document exists: %w", err)
	}
	if !exists {
		return false, domain.WrapError(domain.ErrDocumentNotFound, "transition document",
			fmt.Errorf("document not found: %s", id))
	}
	return false, nil
}

func (r *DocumentRepository) UpdateStrategy(ctx context.Context, id string, strategy domain.ChunkingStrategy) error {
	strategyJSON, err := json.Marshal(strategy)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET strategy = $2, updated_at = $3
WHERE id = $1
`, id, strategyJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document strategy: %w", err)
	}
	return requireRow(res, id, "update document strategy")
}

func (r *DocumentRepository) UpdateProgress(ctx context.Context, id string, chunksTotal, chunksDone int) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET chunks_total = $2, chunks_done = $3, updated_at = $4
WHERE id = $1
`, id, chunksTotal, chunksDone, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document progress: %w", err)
	}
	return requireRow(res, id, "update document progress")
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRow(res, id, "delete document")
}

func requireRow(res sql.Result, id, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, op,
			fmt.Errorf("document not found: %s", id))
	}
	return nil
}
