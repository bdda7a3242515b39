package domain

type SearchType string

const (
	SearchVector   SearchType = "vector"
	SearchFulltext SearchType = "fulltext"
	SearchHybrid   SearchType = "hybrid"
)

// SearchFilter is applied as a pre-filter on the candidate set before either
// search executes, so top_k keeps its meaning.
type SearchFilter struct {
	DocumentType string            `json:"document_type,omitempty"`
	CreatedAfter string            `json:"created_after,omitempty"`
	CreatedUntil string            `json:"created_until,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

type SearchRequest struct {
	QueryText           string       `json:"query_text"`
	Collections         []string     `json:"collections"`
	Type                SearchType   `json:"search_type"`
	TopK                int          `json:"top_k"`
	SimilarityThreshold float64      `json:"similarity_threshold,omitempty"`
	Filter              SearchFilter `json:"filter,omitempty"`
}

// ScoredChunk is a raw hit from one retrieval list. Score is the backend's
// native score (cosine similarity for vector, lexical relevance for fulltext).
type ScoredChunk struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	CollectionID  string  `json:"collection_id"`
	SequenceIndex int     `json:"sequence_index"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
}

// SearchResult is one fused hit. VectorRank/FulltextRank are 1-based and nil
// when the chunk was absent from that list. Results are ephemeral and
// recomputed per request.
type SearchResult struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	CollectionID  string  `json:"collection_id"`
	SequenceIndex int     `json:"sequence_index"`
	Content       string  `json:"content"`
	FusedScore    float64 `json:"fused_score"`
	VectorRank    *int    `json:"vector_rank,omitempty"`
	FulltextRank  *int    `json:"fulltext_rank,omitempty"`
}
