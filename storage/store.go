package storage

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"meetingMinutes/config"
	"meetingMinutes/core"
)

// ArchiveStore keeps speaker-attributed transcripts of past meetings and
// supports semantic search over them. All backends degrade to the in-memory
// store rather than failing the pipeline.
type ArchiveStore interface {
	Upsert(meetingID string, segments []core.AttributedSegment) int
	Search(meetingID string, query string, topK int) []core.Hit
}

var globalStore ArchiveStore

// InitStore selects the backend from the STORE env var ("memory", "pgvector",
// "milvus"). Any initialization failure falls back to memory with a warning.
func InitStore() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load config, using memory archive store")
		globalStore = NewMemoryStore()
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(os.Getenv("STORE"))) {
	case "pgvector":
		s, err := NewPgVectorStore(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("pgvector archive store unavailable, falling back to memory")
			globalStore = NewMemoryStore()
			return nil
		}
		globalStore = s
	case "milvus":
		s, err := NewMilvusStore(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("milvus archive store unavailable, falling back to memory")
			globalStore = NewMemoryStore()
			return nil
		}
		globalStore = s
	default:
		globalStore = NewMemoryStore()
	}
	return nil
}

// Get returns the process-wide store, initializing the memory backend on
// first use if InitStore was never called.
func Get() ArchiveStore {
	if globalStore == nil {
		globalStore = NewMemoryStore()
	}
	return globalStore
}

// ---------------- Memory implementation (default and fallback) ----------------

type MemoryStore struct {
	mu       sync.RWMutex
	meetings map[string][]memoryDoc
}

type memoryDoc struct {
	start, end float64
	text       string
	speaker    string
	embed      map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{meetings: make(map[string][]memoryDoc)}
}

func (s *MemoryStore) Upsert(meetingID string, segments []core.AttributedSegment) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]memoryDoc, 0, len(segments))
	for _, seg := range segments {
		docs = append(docs, memoryDoc{
			start:   seg.Start,
			end:     seg.End,
			text:    seg.Text,
			speaker: seg.Speaker,
			embed:   embedText(strings.ToLower(seg.Text)),
		})
	}
	s.meetings[meetingID] = docs
	return len(docs)
}

func (s *MemoryStore) Search(meetingID string, query string, topK int) []core.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.meetings[meetingID]
	qv := embedText(strings.ToLower(query))

	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(docs))
	for i, d := range docs {
		scores = append(scores, scored{i, cosine(qv, d.embed)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 || topK > len(scores) {
		topK = minInt(len(scores), 5)
	}
	hits := make([]core.Hit, 0, topK)
	for _, sc := range scores[:topK] {
		d := docs[sc.i]
		hits = append(hits, core.Hit{Score: sc.score, Start: d.start, End: d.end, Text: d.text, Speaker: d.speaker})
	}
	return hits
}

// embedText builds an L2-normalized term-frequency vector. Good enough for
// the keyless default backend.
func embedText(text string) map[string]float64 {
	m := map[string]float64{}
	for _, tok := range strings.Fields(text) {
		m[tok]++
	}
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ---------------- shared embedding client ----------------

type embedder struct {
	cli   *openai.Client
	model string
}

func newEmbedder(cfg *config.Config) embedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return embedder{cli: openai.NewClientWithConfig(clientConfig), model: cfg.EmbeddingModel}
}

func (e embedder) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.cli.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

// ---------------- PgVector implementation ----------------

type PgVectorStore struct {
	conn *pgx.Conn
	emb  embedder
}

func NewPgVectorStore(cfg *config.Config) (*PgVectorStore, error) {
	if !cfg.HasValidAPI() {
		return nil, fmt.Errorf("embedding API configuration required for pgvector store")
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVectorStore{conn: conn, emb: newEmbedder(cfg)}
	if err := s.ensureTable(); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) ensureTable() error {
	ctx := context.Background()

	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	tableQuery := `
		CREATE TABLE IF NOT EXISTS meeting_segments (
			id SERIAL PRIMARY KEY,
			meeting_id VARCHAR(255) NOT NULL,
			segment_id VARCHAR(255) NOT NULL,
			start_time FLOAT NOT NULL,
			end_time FLOAT NOT NULL,
			speaker VARCHAR(64) NOT NULL,
			text TEXT NOT NULL,
			embedding vector(768),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(meeting_id, segment_id)
		);
	`
	if _, err := s.conn.Exec(ctx, tableQuery); err != nil {
		return fmt.Errorf("failed to create meeting_segments table: %w", err)
	}

	indexQuery := "CREATE INDEX IF NOT EXISTS idx_meeting_segments_meeting_id ON meeting_segments(meeting_id);"
	if _, err := s.conn.Exec(ctx, indexQuery); err != nil {
		log.Warn().Err(err).Msg("failed to create meeting_id index")
	}
	return nil
}

func (s *PgVectorStore) Upsert(meetingID string, segments []core.AttributedSegment) int {
	if len(segments) == 0 {
		return 0
	}
	ctx := context.Background()
	count := 0
	for _, seg := range segments {
		embedding, err := s.emb.embed(ctx, strings.ToLower(seg.Text))
		if err != nil {
			continue
		}
		vec := pgvector.NewVector(embedding)
		_, err = s.conn.Exec(ctx, `
			INSERT INTO meeting_segments (meeting_id, segment_id, start_time, end_time, speaker, text, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (meeting_id, segment_id)
			DO UPDATE SET
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				speaker = EXCLUDED.speaker,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, meetingID, fmt.Sprintf("%s_%.2f", meetingID, seg.Start), seg.Start, seg.End, seg.Speaker, seg.Text, vec)
		if err != nil {
			continue
		}
		count++
	}
	return count
}

func (s *PgVectorStore) Search(meetingID string, query string, topK int) []core.Hit {
	if topK <= 0 {
		topK = 5
	}
	ctx := context.Background()
	queryEmbedding, err := s.emb.embed(ctx, strings.ToLower(query))
	if err != nil {
		return nil
	}
	vec := pgvector.NewVector(queryEmbedding)

	rows, err := s.conn.Query(ctx, `
		SELECT start_time, end_time, speaker, text,
		       1 - (embedding <=> $1) as similarity
		FROM meeting_segments
		WHERE meeting_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, meetingID, topK)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var hits []core.Hit
	for rows.Next() {
		var start, end, similarity float64
		var speaker, text string
		if err := rows.Scan(&start, &end, &speaker, &text, &similarity); err != nil {
			continue
		}
		hits = append(hits, core.Hit{Score: similarity, Start: start, End: end, Text: text, Speaker: speaker})
	}
	return hits
}

// ---------------- Milvus implementation ----------------

type MilvusStore struct {
	mc   client.Client
	coll string
	dim  int
	emb  embedder
}

func NewMilvusStore(cfg *config.Config) (*MilvusStore, error) {
	if !cfg.HasValidAPI() {
		return nil, fmt.Errorf("embedding API configuration required for milvus store")
	}

	addr := os.Getenv("MILVUS_ADDR")
	if addr == "" {
		addr = "localhost:19530"
	}
	coll := os.Getenv("MILVUS_COLLECTION")
	if coll == "" {
		coll = "meeting_segments"
	}

	mc, err := client.NewClient(context.Background(), client.Config{
		Address:  addr,
		Username: os.Getenv("MILVUS_USERNAME"),
		Password: os.Getenv("MILVUS_PASSWORD"),
		APIKey:   os.Getenv("MILVUS_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusStore{mc: mc, coll: coll, dim: 768, emb: newEmbedder(cfg)}
	if err := s.ensureSchemaAndIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureSchemaAndIndex() error {
	ctx := context.Background()
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("meeting_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("start").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("end").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("speaker").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusStore) Upsert(meetingID string, segments []core.AttributedSegment) int {
	if len(segments) == 0 {
		return 0
	}
	ctx := context.Background()

	meetingIDs := make([]string, 0, len(segments))
	starts := make([]float64, 0, len(segments))
	ends := make([]float64, 0, len(segments))
	speakers := make([]string, 0, len(segments))
	texts := make([]string, 0, len(segments))
	vectors := make([][]float32, 0, len(segments))

	for _, seg := range segments {
		v, err := s.emb.embed(ctx, strings.ToLower(seg.Text))
		if err != nil {
			continue
		}
		meetingIDs = append(meetingIDs, meetingID)
		starts = append(starts, seg.Start)
		ends = append(ends, seg.End)
		speakers = append(speakers, seg.Speaker)
		texts = append(texts, seg.Text)
		vectors = append(vectors, v)
	}
	if len(vectors) == 0 {
		return 0
	}

	_, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("meeting_id", meetingIDs),
		entity.NewColumnDouble("start", starts),
		entity.NewColumnDouble("end", ends),
		entity.NewColumnVarChar("speaker", speakers),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return 0
	}
	return len(vectors)
}

func (s *MilvusStore) Search(meetingID string, query string, topK int) []core.Hit {
	v, err := s.emb.embed(context.Background(), strings.ToLower(query))
	if err != nil {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}
	ctx := context.Background()
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("meeting_id == \"%s\"", strings.ReplaceAll(meetingID, "\"", "\\\""))
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter,
		[]string{"start", "end", "speaker", "text"},
		[]entity.Vector{entity.FloatVector(v)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil
	}

	var hits []core.Hit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var start, end float64
			var speaker, text string
			if c, ok := cols["start"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					start = data[i]
				}
			}
			if c, ok := cols["end"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					end = data[i]
				}
			}
			if c, ok := cols["speaker"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					speaker = data[i]
				}
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					text = data[i]
				}
			}
			hits = append(hits, core.Hit{Score: float64(r.Scores[i]), Start: start, End: end, Text: text, Speaker: speaker})
		}
	}
	return hits
}
