package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mneme/internal/domain"
)

// SemanticRepository persists (subject, predicate, object) facts. Ingesting
// a conflicting object for an existing (subject, predicate) never overwrites
// blindly: both facts are kept, each confidence reduced (spec.md §4.2 "Fact
// conflict resolution").
type SemanticRepository interface {
	Upsert(ctx context.Context, fact domain.SemanticFact) error
	BySubject(ctx context.Context, subject string) ([]domain.SemanticFact, error)
	All(ctx context.Context) ([]domain.SemanticFact, error)
}

type PgSemanticRepository struct {
	pool *pgxpool.Pool
}

func NewPgSemanticRepository(pool *pgxpool.Pool) *PgSemanticRepository {
	return &PgSemanticRepository{pool: pool}
}

// conflictDiscount is how much each side's confidence is reduced when a new
// object contradicts an existing (subject, predicate) slot — neither side
// is trusted fully until Consolidation or further corroboration resolves it.
const conflictDiscount = 0.15

// Ingest resolves a fresh observation against whatever is already stored for
// (subject, predicate): a repeat of a stored object moves the stored
// confidence 30% of the way toward the fresh one (up or down); a new object
// with no conflict is stored as given; a conflicting object is inserted
// alongside the existing one, both
// discounted, and that is returned to the caller (spec.md §8 property test:
// both rows present, both confidences strictly below their pre-merge
// values).
func (r *PgSemanticRepository) Ingest(ctx context.Context, fact domain.SemanticFact) ([]domain.SemanticFact, error) {
	existing, err := r.BySubject(ctx, fact.Subject)
	if err != nil {
		return nil, err
	}

	var conflicting []domain.SemanticFact
	var same *domain.SemanticFact
	for i := range existing {
		if existing[i].Predicate != fact.Predicate {
			continue
		}
		if existing[i].Object == fact.Object {
			e := existing[i]
			same = &e
			continue
		}
		conflicting = append(conflicting, existing[i])
	}

	now := fact.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	fact.CreatedAt = now
	fact.UpdatedAt = now

	if same != nil {
		fact.Confidence = blendConfidence(same.Confidence, fact.Confidence)
		fact.CreatedAt = same.CreatedAt
		if err := r.Upsert(ctx, fact); err != nil {
			return nil, err
		}
		return []domain.SemanticFact{fact}, nil
	}

	if len(conflicting) == 0 {
		if err := r.Upsert(ctx, fact); err != nil {
			return nil, err
		}
		return []domain.SemanticFact{fact}, nil
	}

	fact.Confidence = discount(fact.Confidence)
	if err := r.Upsert(ctx, fact); err != nil {
		return nil, err
	}

	out := []domain.SemanticFact{fact}
	for _, c := range conflicting {
		c.Confidence = discount(c.Confidence)
		c.UpdatedAt = now
		if err := r.Upsert(ctx, c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func blendConfidence(old, fresh float64) float64 {
	blended := old + (fresh-old)*0.3
	return clamp01(blended)
}

func discount(c float64) float64 {
	return clamp01(c - conflictDiscount)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (r *PgSemanticRepository) Upsert(ctx context.Context, fact domain.SemanticFact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO facts (subject, predicate, object, confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject, predicate, object) DO UPDATE SET
			confidence = EXCLUDED.confidence, updated_at = EXCLUDED.updated_at
	`, fact.Subject, fact.Predicate, fact.Object, fact.Confidence, fact.CreatedAt, fact.UpdatedAt)
	if err != nil {
		return fmt.Errorf("memory: upserting fact: %w", err)
	}
	return nil
}

func (r *PgSemanticRepository) BySubject(ctx context.Context, subject string) ([]domain.SemanticFact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT subject, predicate, object, confidence, created_at, updated_at FROM facts WHERE subject = $1
	`, subject)
	if err != nil {
		return nil, fmt.Errorf("memory: querying facts by subject: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (r *PgSemanticRepository) All(ctx context.Context) ([]domain.SemanticFact, error) {
	rows, err := r.pool.Query(ctx, `SELECT subject, predicate, object, confidence, created_at, updated_at FROM facts`)
	if err != nil {
		return nil, fmt.Errorf("memory: querying all facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

func scanFacts(rows pgx.Rows) ([]domain.SemanticFact, error) {
	var out []domain.SemanticFact
	for rows.Next() {
		var f domain.SemanticFact
		if err := rows.Scan(&f.Subject, &f.Predicate, &f.Object, &f.Confidence, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("memory: scanning fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
