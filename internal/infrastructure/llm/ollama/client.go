package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	embedDims  int
	httpClient *http.Client
}

func New(baseURL, genModel, embedModel string, embedDims int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		embedDims:  embedDims,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Embedder exposes the Ollama /api/embed endpoint.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Model() string   { return e.client.embedModel }
func (e *Embedder) Dimensions() int { return e.client.embedDims }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, wrapProviderError("embed", err)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Completion exposes the Ollama /api/generate endpoint in JSON mode. The
// strategy resolver uses it to map free-text chunking descriptions to
// configurations.
type Completion struct {
	client *Client
}

func NewCompletion(client *Client) *Completion {
	return &Completion{client: client}
}

func (c *Completion) Name() string {
	return "ollama/" + c.client.genModel
}

func (c *Completion) Complete(ctx context.Context, prompt string) (string, error) {
	request := map[string]any{
		"model":  c.client.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.client.postJSON(ctx, "/api/generate", request, &response, "generate"); err != nil {
		return "", wrapProviderError("generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}
