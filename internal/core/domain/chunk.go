package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ChunkMetadata carries positional context for a chunk: the character span in
// the source text, the overlap shared with the previous chunk and, when the
// splitter can determine them, page number and section title.
type ChunkMetadata struct {
	SpanStart    int    `json:"span_start"`
	SpanEnd      int    `json:"span_end"`
	OverlapPrev  int    `json:"overlap_prev,omitempty"`
	Page         int    `json:"page,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`
}

// Chunk is the atomic unit of embedding and retrieval. SequenceIndex is
// 0-based and dense within a document. ContentHash is the hash of the
// normalized content and, together with EmbeddingModel, is the dedup key: two
// chunks with equal hash and model share the same embedding.
type Chunk struct {
	ID             string        `json:"id"`
	DocumentID     string        `json:"document_id"`
	CollectionID   string        `json:"collection_id"`
	DocumentType   string        `json:"document_type,omitempty"`
	SequenceIndex  int           `json:"sequence_index"`
	Content        string        `json:"content"`
	ContentHash    string        `json:"content_hash"`
	EmbeddingModel string        `json:"embedding_model"`
	Metadata       ChunkMetadata `json:"metadata"`
	ParentChunkID  string        `json:"parent_chunk_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ChunkCandidate is a splitter output before it is assigned an identity and an
// embedding model. ParentIndex refers to another candidate in the same batch
// for hierarchical strategies; -1 means no parent.
type ChunkCandidate struct {
	Content     string
	Metadata    ChunkMetadata
	ParentIndex int
}

// NormalizeContent canonicalizes text before hashing so that identical prose
// with different line endings or surrounding whitespace dedups to one entry.
func NormalizeContent(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.TrimSpace(content)
}

// HashContent returns the dedup hash of normalized chunk content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}
