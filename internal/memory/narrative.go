package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mneme/internal/domain"
)

// NarrativeRepository persists the woven NarrativeChapter rows Consolidation
// produces (spec.md §4.8 sub-phase 4). Narrative chapters are append-only.
type NarrativeRepository interface {
	Insert(ctx context.Context, chapter domain.NarrativeChapter) error
	Recent(ctx context.Context, limit int) ([]domain.NarrativeChapter, error)
}

type PgNarrativeRepository struct {
	pool *pgxpool.Pool
}

func NewPgNarrativeRepository(pool *pgxpool.Pool) *PgNarrativeRepository {
	return &PgNarrativeRepository{pool: pool}
}

func (r *PgNarrativeRepository) Insert(ctx context.Context, chapter domain.NarrativeChapter) error {
	if chapter.ID == "" {
		chapter.ID = newID()
	}
	if chapter.CreatedAt.IsZero() {
		chapter.CreatedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO narrative_chapters
			(id, title, content, period_start, period_end, emotional_tone, themes, people, turning_points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, chapter.ID, chapter.Title, chapter.Content, chapter.PeriodStart, chapter.PeriodEnd,
		chapter.EmotionalTone, chapter.Themes, chapter.People, chapter.TurningPoints, chapter.CreatedAt)
	if err != nil {
		return fmt.Errorf("memory: inserting narrative chapter: %w", err)
	}
	return nil
}

func (r *PgNarrativeRepository) Recent(ctx context.Context, limit int) ([]domain.NarrativeChapter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, content, period_start, period_end, emotional_tone, themes, people, turning_points, created_at
		FROM narrative_chapters
		ORDER BY period_end DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: querying narrative chapters: %w", err)
	}
	defer rows.Close()

	var out []domain.NarrativeChapter
	for rows.Next() {
		var c domain.NarrativeChapter
		if err := rows.Scan(&c.ID, &c.Title, &c.Content, &c.PeriodStart, &c.PeriodEnd,
			&c.EmotionalTone, &c.Themes, &c.People, &c.TurningPoints, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scanning narrative chapter: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
