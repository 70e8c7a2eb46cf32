// Package knowledge resolves trade knowledge documents from Postgres with pgvector similarity search.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/drew-quote-core/server/internal/agent/model"
	errx "github.com/drew-quote-core/server/internal/core/error"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Embedder turns a query into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const searchQuery = `
SELECT title, content, job_type, COALESCE(trade, ''), COALESCE(scoping_questions, '[]'::jsonb), embedding <=> $1::vector AS distance
FROM knowledge_documents
WHERE ($2 = '' OR trade = $2)
ORDER BY embedding <=> $1::vector
LIMIT 1`

const byJobTypeQuery = `
SELECT title, content, job_type, COALESCE(trade, ''), COALESCE(scoping_questions, '[]'::jsonb)
FROM knowledge_documents
WHERE job_type = $1`

// Store implements model.KnowledgeBase over the knowledge_documents table.
type Store struct {
	db          Querier
	embedder    Embedder
	maxDistance float64
}

// NewStore returns a Store. Matches farther than maxDistance (cosine) are treated as misses;
// a non-positive maxDistance keeps every match.
func NewStore(db Querier, embedder Embedder, maxDistance float64) *Store {
	return &Store{db: db, embedder: embedder, maxDistance: maxDistance}
}

func (s *Store) Search(ctx context.Context, query, trade string) (*model.KnowledgeDoc, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logx.Error().Err(err).Str("query", query).Msg("embedding failed")
		return nil, errx.Upstream(err)
	}

	rows, err := s.db.Query(ctx, searchQuery, Vector(vec), trade)
	if err != nil {
		logx.Error().Err(err).Str("query", query).Msg("knowledge search failed")
		return nil, errx.WrapPostgres(err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errx.WrapPostgres(rows.Err())
	}
	var (
		doc       model.KnowledgeDoc
		questions []byte
		distance  float64
	)
	if err := rows.Scan(&doc.Title, &doc.Content, &doc.JobType, &doc.Trade, &questions, &distance); err != nil {
		return nil, errx.WrapPostgres(fmt.Errorf("scan knowledge document: %w", err))
	}
	if s.maxDistance > 0 && distance > s.maxDistance {
		logx.Debug().Str("query", query).Str("job_type", doc.JobType).Float64("distance", distance).Msg("knowledge match too far")
		return nil, nil
	}
	if err := decodeQuestions(questions, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) GetByJobType(ctx context.Context, jobType string) (*model.KnowledgeDoc, error) {
	var (
		doc       model.KnowledgeDoc
		questions []byte
	)
	err := s.db.QueryRow(ctx, byJobTypeQuery, jobType).
		Scan(&doc.Title, &doc.Content, &doc.JobType, &doc.Trade, &questions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logx.Error().Err(err).Str("job_type", jobType).Msg("knowledge lookup failed")
		return nil, errx.WrapPostgres(err)
	}
	if err := decodeQuestions(questions, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeQuestions(raw []byte, doc *model.KnowledgeDoc) error {
	if len(raw) == 0 {
		return nil
	}
	var qs []model.ScopingQuestion
	if err := json.Unmarshal(raw, &qs); err != nil {
		return fmt.Errorf("decode scoping questions for %s: %w", doc.JobType, err)
	}
	if len(qs) > 0 {
		doc.ScopingQuestions = qs
	}
	return nil
}

// Vector renders v in pgvector's text input format.
func Vector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

var _ model.KnowledgeBase = (*Store)(nil)
