package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mneme/internal/domain"
)

// SelfKnowledgeRepository persists the organism's self-model. Rows are
// seeded from bootstrap text and otherwise authored only by Consolidation
// (spec.md §3).
type SelfKnowledgeRepository interface {
	Upsert(ctx context.Context, row domain.SelfKnowledgeRow) error
	All(ctx context.Context) ([]domain.SelfKnowledgeRow, error)
	ByDomain(ctx context.Context, domainName string) ([]domain.SelfKnowledgeRow, error)
}

type PgSelfKnowledgeRepository struct {
	pool *pgxpool.Pool
}

func NewPgSelfKnowledgeRepository(pool *pgxpool.Pool) *PgSelfKnowledgeRepository {
	return &PgSelfKnowledgeRepository{pool: pool}
}

func (r *PgSelfKnowledgeRepository) Upsert(ctx context.Context, row domain.SelfKnowledgeRow) error {
	if row.ID == "" {
		row.ID = newID()
	}
	now := time.Now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO self_knowledge (id, domain, content, confidence, source, source_episode_id, private, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content, confidence = EXCLUDED.confidence, updated_at = EXCLUDED.updated_at
	`, row.ID, row.Domain, row.Content, row.Confidence, row.Source, nullableString(row.SourceEpisodeID), row.Private, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("memory: upserting self-knowledge: %w", err)
	}
	return nil
}

func (r *PgSelfKnowledgeRepository) All(ctx context.Context) ([]domain.SelfKnowledgeRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, domain, content, confidence, source, COALESCE(source_episode_id, ''), private, created_at, updated_at
		FROM self_knowledge
	`)
	if err != nil {
		return nil, fmt.Errorf("memory: querying self-knowledge: %w", err)
	}
	defer rows.Close()
	return scanSelfKnowledge(rows)
}

func (r *PgSelfKnowledgeRepository) ByDomain(ctx context.Context, domainName string) ([]domain.SelfKnowledgeRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, domain, content, confidence, source, COALESCE(source_episode_id, ''), private, created_at, updated_at
		FROM self_knowledge WHERE domain = $1
	`, domainName)
	if err != nil {
		return nil, fmt.Errorf("memory: querying self-knowledge by domain: %w", err)
	}
	defer rows.Close()
	return scanSelfKnowledge(rows)
}

func scanSelfKnowledge(rows pgxRows) ([]domain.SelfKnowledgeRow, error) {
	var out []domain.SelfKnowledgeRow
	for rows.Next() {
		var row domain.SelfKnowledgeRow
		if err := rows.Scan(&row.ID, &row.Domain, &row.Content, &row.Confidence, &row.Source,
			&row.SourceEpisodeID, &row.Private, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("memory: scanning self-knowledge: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
