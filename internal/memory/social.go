package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"mneme/internal/domain"
)

// SocialRepository persists the Person/Alias/InteractionEdge social graph,
// grounded on the teacher's character_repo.go plus RelationshipVectors.
type SocialRepository interface {
	ResolvePerson(ctx context.Context, platform, platformID, displayName string) (domain.Person, error)
	LinkAlias(ctx context.Context, personID, platform, platformID string) error
	RecordInteraction(ctx context.Context, edge domain.InteractionEdge) error
	Relationship(ctx context.Context, personID string) (domain.Relationship, error)
	AdjustRelationship(ctx context.Context, personID string, deltaTrust, deltaIntimacy, deltaRespect int) error
	RecentContext(ctx context.Context, personID string, limit int) ([]domain.InteractionEdge, error)
	FactsAboutPerson(ctx context.Context, personID string) ([]domain.SemanticFact, error)
}

type PgSocialRepository struct {
	pool *pgxpool.Pool
}

func NewPgSocialRepository(pool *pgxpool.Pool) *PgSocialRepository {
	return &PgSocialRepository{pool: pool}
}

func (r *PgSocialRepository) ResolvePerson(ctx context.Context, platform, platformID, displayName string) (domain.Person, error) {
	var personID string
	err := r.pool.QueryRow(ctx, `SELECT person_id FROM aliases WHERE platform = $1 AND platform_id = $2`, platform, platformID).Scan(&personID)
	if err == nil {
		var p domain.Person
		if err := r.pool.QueryRow(ctx, `SELECT id, display_name FROM people WHERE id = $1`, personID).Scan(&p.ID, &p.DisplayName); err != nil {
			return domain.Person{}, fmt.Errorf("memory: loading resolved person: %w", err)
		}
		return p, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Person{}, fmt.Errorf("memory: starting person creation: %w", err)
	}
	defer tx.Rollback(ctx)

	p := domain.Person{ID: newID(), DisplayName: displayName}
	if _, err := tx.Exec(ctx, `INSERT INTO people (id, display_name) VALUES ($1, $2)`, p.ID, p.DisplayName); err != nil {
		return domain.Person{}, fmt.Errorf("memory: creating person: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO aliases (platform, platform_id, person_id) VALUES ($1, $2, $3)`, platform, platformID, p.ID); err != nil {
		return domain.Person{}, fmt.Errorf("memory: creating alias: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO relationships (person_id) VALUES ($1)`, p.ID); err != nil {
		return domain.Person{}, fmt.Errorf("memory: seeding relationship: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Person{}, fmt.Errorf("memory: committing person creation: %w", err)
	}
	return p, nil
}

// LinkAlias attaches an additional (platform, platform_id) identity to an
// already-resolved person — spec.md §4.2's link_alias operation, for the
// case where the same person is later recognised on a second channel.
func (r *PgSocialRepository) LinkAlias(ctx context.Context, personID, platform, platformID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO aliases (platform, platform_id, person_id) VALUES ($1, $2, $3)
		ON CONFLICT (platform, platform_id) DO UPDATE SET person_id = EXCLUDED.person_id
	`, platform, platformID, personID)
	if err != nil {
		return fmt.Errorf("memory: linking alias: %w", err)
	}
	return nil
}

func (r *PgSocialRepository) RecordInteraction(ctx context.Context, edge domain.InteractionEdge) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO interaction_edges (person_id, context, timestamp) VALUES ($1, $2, $3)
	`, edge.PersonID, edge.Context, edge.Timestamp)
	if err != nil {
		return fmt.Errorf("memory: recording interaction: %w", err)
	}
	return nil
}

func (r *PgSocialRepository) Relationship(ctx context.Context, personID string) (domain.Relationship, error) {
	var rel domain.Relationship
	err := r.pool.QueryRow(ctx, `SELECT trust, intimacy, respect FROM relationships WHERE person_id = $1`, personID).
		Scan(&rel.Trust, &rel.Intimacy, &rel.Respect)
	if err != nil {
		return domain.Relationship{}, fmt.Errorf("memory: loading relationship: %w", err)
	}
	return rel, nil
}

// AdjustRelationship applies bounded deltas to the trust/intimacy/respect
// vectors, clamped to [0,100] matching the teacher's RelationshipVectors.
func (r *PgSocialRepository) AdjustRelationship(ctx context.Context, personID string, deltaTrust, deltaIntimacy, deltaRespect int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE relationships SET
			trust = GREATEST(0, LEAST(100, trust + $2)),
			intimacy = GREATEST(0, LEAST(100, intimacy + $3)),
			respect = GREATEST(0, LEAST(100, respect + $4)),
			updated_at = now()
		WHERE person_id = $1
	`, personID, deltaTrust, deltaIntimacy, deltaRespect)
	if err != nil {
		return fmt.Errorf("memory: adjusting relationship: %w", err)
	}
	return nil
}

// FactsAboutPerson is spec.md §4.2's facts_about_person operation: the
// semantic facts whose subject is this person, exactly the rows
// SemanticRepository.BySubject would return for the same subject string.
// Queried directly against the shared facts table rather than through a
// SemanticRepository dependency, since person IDs and fact subjects share
// one namespace and PgSocialRepository already holds the pool that table
// lives in.
func (r *PgSocialRepository) FactsAboutPerson(ctx context.Context, personID string) ([]domain.SemanticFact, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT subject, predicate, object, confidence, created_at, updated_at FROM facts WHERE subject = $1
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("memory: querying facts about person: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (r *PgSocialRepository) RecentContext(ctx context.Context, personID string, limit int) ([]domain.InteractionEdge, error) {
	if limit <= 0 {
		limit = 10
	}
	rel, err := r.Relationship(ctx, personID)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT person_id, context, timestamp FROM interaction_edges
		WHERE person_id = $1 ORDER BY timestamp DESC LIMIT $2
	`, personID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: querying interaction edges: %w", err)
	}
	defer rows.Close()

	var out []domain.InteractionEdge
	for rows.Next() {
		var e domain.InteractionEdge
		if err := rows.Scan(&e.PersonID, &e.Context, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("memory: scanning interaction edge: %w", err)
		}
		e.Relationship = rel
		out = append(out, e)
	}
	return out, rows.Err()
}
