package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/akarpov/ragindex/internal/core/domain"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "lexical"
)

// Client stores chunks in a single Qdrant collection with a named dense
// vector for similarity search and a named sparse vector for lexical search.
// Logical collections are a payload field filtered on every query.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) IndexChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{
			"collection_id":  chunk.CollectionID,
			"document_id":    chunk.DocumentID,
			"sequence_index": chunk.SequenceIndex,
			"content":        chunk.Content,
			"created_at":     chunk.CreatedAt.UTC().Format(time.RFC3339),
		}
		if chunk.DocumentType != "" {
			payload["document_type"] = chunk.DocumentType
		}
		if chunk.Metadata.SectionTitle != "" {
			payload["section_title"] = chunk.Metadata.SectionTitle
		}
		if chunk.Metadata.Page > 0 {
			payload["page"] = chunk.Metadata.Page
		}
		points = append(points, point{
			ID: chunk.ID,
			Vector: map[string]any{
				denseVectorName:  vectors[i],
				sparseVectorName: encodeSparse(chunk.Content),
			},
			Payload: payload,
		})
	}

	var out struct{}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPut, url, map[string]any{"points": points}, &out, "upsert")
}

func (c *Client) DeleteByDocument(ctx context.Context, collectionID, documentID string) error {
	filter := map[string]any{
		"must": []map[string]any{
			matchCondition("collection_id", collectionID),
			matchCondition("document_id", documentID),
		},
	}
	var out struct{}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, c.collection)
	return c.do(ctx, http.MethodPost, url, map[string]any{"filter": filter}, &out, "delete")
}

// FetchVectors retrieves the dense vectors for the given chunk ids. Ids that
// no longer exist are simply absent from the result; callers decide whether
// that warrants a re-embed.
func (c *Client) FetchVectors(ctx context.Context, collectionID string, chunkIDs []string) (map[string][]float32, error) {
	if len(chunkIDs) == 0 {
		return map[string][]float32{}, nil
	}

	reqBody := map[string]any{
		"ids":          chunkIDs,
		"with_vector":  []string{denseVectorName},
		"with_payload": false,
	}
	var response struct {
		Result []struct {
			ID     string         `json:"id"`
			Vector map[string]any `json:"vector"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &response, "retrieve"); err != nil {
		return nil, err
	}

	out := make(map[string][]float32, len(response.Result))
	for _, item := range response.Result {
		raw, ok := item.Vector[denseVectorName]
		if !ok {
			continue
		}
		vector, err := toFloat32Slice(raw)
		if err != nil {
			return nil, fmt.Errorf("point %s: %w", item.ID, err)
		}
		out[item.ID] = vector
	}
	return out, nil
}

// CountByCollection returns the exact number of points carrying the given
// logical collection id.
func (c *Client) CountByCollection(ctx context.Context, collectionID string) (int, error) {
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{matchCondition("collection_id", collectionID)},
		},
		"exact": true,
	}
	var response struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &response, "count"); err != nil {
		return 0, err
	}
	return response.Result.Count, nil
}

func (c *Client) Search(
	ctx context.Context,
	collections []string,
	queryVector []float32,
	limit int,
	threshold float64,
	filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": queryVector,
		},
		"limit":        limit,
		"with_payload": true,
	}
	if threshold > 0 {
		reqBody["score_threshold"] = threshold
	}
	if conditions := buildFilter(collections, filter); conditions != nil {
		reqBody["filter"] = conditions
	}
	return c.search(ctx, reqBody)
}

func (c *Client) SearchLexical(
	ctx context.Context,
	collections []string,
	queryText string,
	limit int,
	filter domain.SearchFilter,
) ([]domain.ScoredChunk, error) {
	sparse := encodeSparse(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   sparseVectorName,
			"vector": sparse,
		},
		"limit":        limit,
		"with_payload": true,
	}
	if conditions := buildFilter(collections, filter); conditions != nil {
		reqBody["filter"] = conditions
	}
	return c.search(ctx, reqBody)
}

func (c *Client) search(ctx context.Context, reqBody map[string]any) ([]domain.ScoredChunk, error) {
	var response struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.do(ctx, http.MethodPost, url, reqBody, &response, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(response.Result))
	for _, r := range response.Result {
		out = append(out, domain.ScoredChunk{
			ChunkID:       r.ID,
			DocumentID:    getStringPayload(r.Payload, "document_id"),
			CollectionID:  getStringPayload(r.Payload, "collection_id"),
			SequenceIndex: getIntPayload(r.Payload, "sequence_index"),
			Content:       getStringPayload(r.Payload, "content"),
			Score:         r.Score,
		})
	}
	return out, nil
}

func buildFilter(collections []string, filter domain.SearchFilter) map[string]any {
	var must []map[string]any

	if len(collections) == 1 {
		must = append(must, matchCondition("collection_id", collections[0]))
	} else if len(collections) > 1 {
		values := make([]any, len(collections))
		for i, id := range collections {
			values[i] = id
		}
		must = append(must, map[string]any{
			"key":   "collection_id",
			"match": map[string]any{"any": values},
		})
	}

	if filter.DocumentType != "" {
		must = append(must, matchCondition("document_type", filter.DocumentType))
	}
	if filter.CreatedAfter != "" || filter.CreatedUntil != "" {
		rangeCond := map[string]any{}
		if filter.CreatedAfter != "" {
			rangeCond["gte"] = filter.CreatedAfter
		}
		if filter.CreatedUntil != "" {
			rangeCond["lte"] = filter.CreatedUntil
		}
		must = append(must, map[string]any{
			"key":   "created_at",
			"range": rangeCond,
		})
	}
	for key, value := range filter.Fields {
		must = append(must, matchCondition(key, value))
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func matchCondition(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 when it already exists.
	if resp.StatusCode == http.StatusConflict {
		c.markCollectionEnsured(vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) do(ctx context.Context, method, url string, payload, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func toFloat32Slice(raw any) ([]float32, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected vector shape %T", raw)
	}
	out := make([]float32, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("unexpected vector element %T", item)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
