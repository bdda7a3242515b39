package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/akarpov/ragindex/internal/core/domain"
	"github.com/akarpov/ragindex/internal/core/ports"
)

type fakeDocRepo struct {
	mu  sync.Mutex
	doc *domain.Document

	getErr        error
	createErr     error
	transitionErr error

	created     []*domain.Document
	progress    [][2]int
	strategies  []domain.ChunkingStrategy
	deletedIDs  []string
	transitions []domain.DocumentStatus
}

func (r *fakeDocRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	copied := *doc
	r.created = append(r.created, &copied)
	r.doc = &copied
	return nil
}

func (r *fakeDocRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if r.doc == nil || r.doc.ID != id {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document",
			errors.New("document not found: "+id))
	}
	copied := *r.doc
	return &copied, nil
}

func (r *fakeDocRepo) Transition(_ context.Context, id string, from []domain.DocumentStatus, to domain.DocumentStatus, errMessage, errCode string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transitionErr != nil {
		return false, r.transitionErr
	}
	if r.doc == nil || r.doc.ID != id {
		return false, domain.WrapError(domain.ErrDocumentNotFound, "transition",
			errors.New("document not found: "+id))
	}
	allowed := false
	for _, s := range from {
		if r.doc.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	r.doc.Status = to
	r.doc.Error = errMessage
	r.doc.ErrorCode = errCode
	r.transitions = append(r.transitions, to)
	return true, nil
}

func (r *fakeDocRepo) UpdateStrategy(_ context.Context, _ string, strategy domain.ChunkingStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, strategy)
	if r.doc != nil {
		r.doc.Strategy = strategy
	}
	return nil
}

func (r *fakeDocRepo) UpdateProgress(_ context.Context, _ string, total, done int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, [2]int{total, done})
	if r.doc != nil {
		r.doc.ChunksTotal = total
		r.doc.ChunksDone = done
	}
	return nil
}

func (r *fakeDocRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedIDs = append(r.deletedIDs, id)
	return nil
}

func (r *fakeDocRepo) setStatus(status domain.DocumentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Status = status
}

func (r *fakeDocRepo) currentStatus() domain.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Status
}

type fakeChunkRepo struct {
	mu        sync.Mutex
	inserted  []domain.Chunk
	deletedBy []string
	insertErr error
}

func (r *fakeChunkRepo) InsertBatch(_ context.Context, chunks []domain.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted = append(r.inserted, chunks...)
	return nil
}

func (r *fakeChunkRepo) ListByDocument(_ context.Context, documentID string) ([]domain.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Chunk
	for _, c := range r.inserted {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeChunkRepo) DeleteByDocument(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedBy = append(r.deletedBy, documentID)
	return nil
}

type fakeTicket struct {
	leader   bool
	vector   []float32
	waitErr  error
	resolved [][]float32
}

func (t *fakeTicket) Leader() bool { return t.leader }

func (t *fakeTicket) Wait(context.Context) ([]float32, error) {
	return t.vector, t.waitErr
}

func (t *fakeTicket) Resolve(vector []float32, _ error) {
	t.resolved = append(t.resolved, vector)
}

type fakeDedup struct {
	mu       sync.Mutex
	entries  map[string]string
	tickets  map[string]*fakeTicket
	recorded map[string]string
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{
		entries:  map[string]string{},
		tickets:  map[string]*fakeTicket{},
		recorded: map[string]string{},
	}
}

func (d *fakeDedup) Lookup(_ context.Context, contentHash, _ string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.entries[contentHash]
	return id, ok, nil
}

func (d *fakeDedup) Acquire(contentHash, _ string) ports.DedupTicket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tickets[contentHash]; ok {
		return t
	}
	t := &fakeTicket{leader: true}
	d.tickets[contentHash] = t
	return t
}

func (d *fakeDedup) Record(_ context.Context, contentHash, _, chunkID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recorded[contentHash] = chunkID
	return nil
}

type fakePipeline struct {
	mu    sync.Mutex
	model string
	calls [][]string
	embed func(texts []string) []ports.EmbedOutcome
	// afterEmbed runs once embedding finished, before outcomes are returned.
	// Tests use it to mutate document state mid-flight.
	afterEmbed func()
}

func (p *fakePipeline) Model() string {
	if p.model == "" {
		return "test-embed"
	}
	return p.model
}

func (p *fakePipeline) EmbedAll(_ context.Context, texts []string, progress func(done int)) []ports.EmbedOutcome {
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), texts...))
	p.mu.Unlock()

	var outcomes []ports.EmbedOutcome
	if p.embed != nil {
		outcomes = p.embed(texts)
	} else {
		outcomes = make([]ports.EmbedOutcome, len(texts))
		for i := range texts {
			outcomes[i] = ports.EmbedOutcome{Vector: []float32{float32(len(texts[i])), 1}}
		}
	}
	if progress != nil {
		progress(len(texts))
	}
	if p.afterEmbed != nil {
		p.afterEmbed()
	}
	return outcomes
}

func (p *fakePipeline) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeIndex struct {
	mu sync.Mutex

	indexed        []domain.Chunk
	indexedVectors [][]float32
	deleted        []string
	stored         map[string][]float32

	vectorHits  []domain.ScoredChunk
	lexicalHits []domain.ScoredChunk
	vectorErr   error
	lexicalErr  error

	lastVectorLimit  int
	lastLexicalLimit int
	lastThreshold    float64
	lastCollections  []string
	lastFilter       domain.SearchFilter

	pointCount    int
	countErr      error
	lastCountedID string
}

func (x *fakeIndex) IndexChunks(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.indexed = append(x.indexed, chunks...)
	x.indexedVectors = append(x.indexedVectors, vectors...)
	return nil
}

func (x *fakeIndex) DeleteByDocument(_ context.Context, _, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.deleted = append(x.deleted, documentID)
	return nil
}

func (x *fakeIndex) FetchVectors(_ context.Context, _ string, chunkIDs []string) (map[string][]float32, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(map[string][]float32, len(chunkIDs))
	for _, id := range chunkIDs {
		if vec, ok := x.stored[id]; ok {
			out[id] = vec
		}
	}
	return out, nil
}

func (x *fakeIndex) Search(_ context.Context, collections []string, _ []float32, limit int, threshold float64, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lastVectorLimit = limit
	x.lastThreshold = threshold
	x.lastCollections = collections
	x.lastFilter = filter
	return x.vectorHits, x.vectorErr
}

func (x *fakeIndex) SearchLexical(_ context.Context, _ []string, _ string, limit int, _ domain.SearchFilter) ([]domain.ScoredChunk, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lastLexicalLimit = limit
	return x.lexicalHits, x.lexicalErr
}

func (x *fakeIndex) CountByCollection(_ context.Context, collectionID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lastCountedID = collectionID
	return x.pointCount, x.countErr
}

type fakeChunker struct {
	candidates []domain.ChunkCandidate
	err        error
}

func (c *fakeChunker) Split(context.Context, string, domain.ChunkingStrategy) ([]domain.ChunkCandidate, error) {
	return c.candidates, c.err
}

type fakeQueue struct {
	mu         sync.Mutex
	jobs       []ports.ProcessJob
	publishErr error
}

func (q *fakeQueue) PublishProcessJob(_ context.Context, job ports.ProcessJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) SubscribeProcessJobs(context.Context, func(context.Context, ports.ProcessJob) error) error {
	return nil
}

type fakeParser struct {
	err error
}

func (p *fakeParser) Parse(_ context.Context, raw []byte, _ string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return domain.NormalizeContent(string(raw)), nil
}

type fakeResolver struct {
	strategy domain.ChunkingStrategy
	err      error
	calls    int
}

func (r *fakeResolver) Resolve(_ context.Context, structured *domain.ChunkingStrategy, _ string) (domain.ChunkingStrategy, error) {
	r.calls++
	if r.err != nil {
		return domain.ChunkingStrategy{}, r.err
	}
	if structured != nil {
		return *structured, nil
	}
	return r.strategy, nil
}

type fakeArchive struct {
	mu      sync.Mutex
	files   map[string][]byte
	saved   []string
	removed []string
	saveErr error
	openErr error
}

func (a *fakeArchive) Save(_ context.Context, key string, data io.Reader) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saveErr != nil {
		return a.saveErr
	}
	content, _ := io.ReadAll(data)
	if a.files == nil {
		a.files = map[string][]byte{}
	}
	a.files[key] = content
	a.saved = append(a.saved, key)
	return nil
}

func (a *fakeArchive) Open(_ context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openErr != nil {
		return nil, a.openErr
	}
	content, ok := a.files[key]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", key, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (a *fakeArchive) Remove(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removed = append(a.removed, key)
	return nil
}

type fakeQueryEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (e *fakeQueryEmbedder) Model() string   { return "test-embed" }
func (e *fakeQueryEmbedder) Dimensions() int { return 2 }

func (e *fakeQueryEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, e.err
}

func (e *fakeQueryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	e.calls++
	return e.vector, e.err
}
