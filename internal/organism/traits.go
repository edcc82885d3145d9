package organism

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"mneme/internal/domain"
)

// TraitStore persists the raw (category, trait, value) rows the bootstrap
// questionnaire collects — an audit trail of how Big5/core_value_weights
// were seeded, kept separate from organism_state itself since the
// questionnaire is a one-time calibration input, not part of the tick-rate
// state machine.
//
// Adapted from the teacher's PgTraitRepository: same upsert-by-key shape,
// with profile_id dropped since mneme runs a single organism per database
// rather than the teacher's many-profiles-per-table model.
type TraitStore struct {
	pool *pgxpool.Pool
}

func NewTraitStore(pool *pgxpool.Pool) *TraitStore {
	return &TraitStore{pool: pool}
}

// Upsert writes or overwrites one trait row, keyed by (category, trait).
func (s *TraitStore) Upsert(ctx context.Context, row domain.TraitRow) error {
	var confidence interface{}
	if row.Confidence != nil {
		confidence = *row.Confidence
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO traits (category, trait, value, confidence, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (category, trait) DO UPDATE SET
			value      = EXCLUDED.value,
			confidence = EXCLUDED.confidence,
			updated_at = EXCLUDED.updated_at
	`, string(row.Category), row.Trait, row.Value, confidence)
	if err != nil {
		return fmt.Errorf("organism: upserting trait %s/%s: %w", row.Category, row.Trait, err)
	}
	return nil
}

// UpsertAll writes every row, stopping at the first failure.
func (s *TraitStore) UpsertAll(ctx context.Context, rows []domain.TraitRow) error {
	for _, row := range rows {
		if err := s.Upsert(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// Load returns every persisted trait row, ordered by category then trait.
// An empty, nil-error result means the questionnaire has never run —
// callers fall back to domain.DefaultOrganismState's homeostatic defaults.
func (s *TraitStore) Load(ctx context.Context) ([]domain.TraitRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, trait, value, confidence FROM traits ORDER BY category, trait
	`)
	if err != nil {
		return nil, fmt.Errorf("organism: loading traits: %w", err)
	}
	defer rows.Close()

	var out []domain.TraitRow
	for rows.Next() {
		var row domain.TraitRow
		var category string
		var confidence sql.NullFloat64
		if err := rows.Scan(&category, &row.Trait, &row.Value, &confidence); err != nil {
			return nil, fmt.Errorf("organism: scanning trait row: %w", err)
		}
		row.Category = domain.TraitCategory(category)
		if confidence.Valid {
			val := confidence.Float64
			row.Confidence = &val
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("organism: iterating traits: %w", err)
	}
	return out, nil
}

// Big5FromRows reconstructs a Big5 snapshot from persisted BIG_FIVE category
// rows. Traits missing a row keep domain.DefaultOrganismState's moderate
// baseline for that scale.
func Big5FromRows(rows []domain.TraitRow, fallback domain.Big5) domain.Big5 {
	out := fallback
	for _, row := range rows {
		if row.Category != domain.TraitCategoryBigFive {
			continue
		}
		switch row.Trait {
		case "openness":
			out.Openness = row.Value
		case "conscientiousness":
			out.Conscientiousness = row.Value
		case "extraversion":
			out.Extraversion = row.Value
		case "agreeableness":
			out.Agreeableness = row.Value
		case "neuroticism":
			out.Neuroticism = row.Value
		}
	}
	return out
}

// CoreValueWeightsFromRows reconstructs a core_value_weights map from
// persisted VALUES category rows, normalising each 0-100 trait value into
// the [0,1] weight SlowState.CoreValueWeights expects.
func CoreValueWeightsFromRows(rows []domain.TraitRow, fallback map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(fallback))
	for k, v := range fallback {
		out[k] = v
	}
	for _, row := range rows {
		if row.Category != domain.TraitCategoryValues {
			continue
		}
		out[row.Trait] = float64(row.Value) / 100.0
	}
	return out
}
