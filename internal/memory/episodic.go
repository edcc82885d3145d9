// Package memory is the Layer 4 Memory Substrate: episodic, semantic,
// social, and self-knowledge storage plus the blended Recall operation
// spec.md §4.2 requires the caller never bypass.
package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"mneme/internal/domain"
)

// EpisodicRepository persists Episodes. Episodes are append-only except for
// Strength, enforced here by never exposing a general Update.
type EpisodicRepository interface {
	Insert(ctx context.Context, ep domain.Episode) error
	UpdateStrength(ctx context.Context, id string, strength float64) error
	Recent(ctx context.Context, limit int) ([]domain.Episode, error)
	SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]domain.ScoredEpisode, error)
	All(ctx context.Context) ([]domain.Episode, error)
}

// PgEpisodicRepository is the pgvector-backed implementation, grounded on
// the teacher's memory_repo.go.
type PgEpisodicRepository struct {
	pool *pgxpool.Pool
}

func NewPgEpisodicRepository(pool *pgxpool.Pool) *PgEpisodicRepository {
	return &PgEpisodicRepository{pool: pool}
}

func (r *PgEpisodicRepository) Insert(ctx context.Context, ep domain.Episode) error {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO episodes (id, source_tag, author_ref, body, media_refs, timestamp, modality, embedding, strength, valence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		ep.ID, ep.SourceTag, ep.AuthorRef, ep.Body, ep.MediaRefs, ep.Timestamp, ep.Modality,
		pgvector.NewVector(ep.Embedding), ep.Strength, ep.Valence, ep.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("memory: inserting episode: %w", err)
	}
	return nil
}

func (r *PgEpisodicRepository) UpdateStrength(ctx context.Context, id string, strength float64) error {
	_, err := r.pool.Exec(ctx, `UPDATE episodes SET strength = $2 WHERE id = $1`, id, strength)
	if err != nil {
		return fmt.Errorf("memory: updating episode strength: %w", err)
	}
	return nil
}

func (r *PgEpisodicRepository) Recent(ctx context.Context, limit int) ([]domain.Episode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, source_tag, author_ref, body, media_refs, timestamp, insertion_counter, modality, embedding, strength, valence, created_at
		FROM episodes ORDER BY timestamp DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: querying recent episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

func (r *PgEpisodicRepository) All(ctx context.Context) ([]domain.Episode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, source_tag, author_ref, body, media_refs, timestamp, insertion_counter, modality, embedding, strength, valence, created_at
		FROM episodes ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("memory: querying all episodes: %w", err)
	}
	defer rows.Close()
	return scanEpisodes(rows)
}

// SearchByEmbedding runs the pgvector ANN path (spec.md §4.2 "ANN index when
// available"). Callers that want the bounded linear-scan fallback instead
// should use VectorIndex.Search (index.go), which this repository backs via
// All when no ANN index is configured.
func (r *PgEpisodicRepository) SearchByEmbedding(ctx context.Context, embedding []float32, k int) ([]domain.ScoredEpisode, error) {
	if k <= 0 {
		k = 5
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, source_tag, author_ref, body, media_refs, timestamp, insertion_counter, modality, embedding, strength, valence, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM episodes
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("memory: searching episodes: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredEpisode
	for rows.Next() {
		ep, similarity, err := scanScoredEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ScoredEpisode{Episode: ep, Similarity: similarity})
	}
	return out, rows.Err()
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEpisodes(rows pgxRows) ([]domain.Episode, error) {
	var out []domain.Episode
	for rows.Next() {
		var ep domain.Episode
		var vec pgvector.Vector
		if err := rows.Scan(&ep.ID, &ep.SourceTag, &ep.AuthorRef, &ep.Body, &ep.MediaRefs, &ep.Timestamp,
			&ep.InsertionCounter, &ep.Modality, &vec, &ep.Strength, &ep.Valence, &ep.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scanning episode: %w", err)
		}
		ep.Embedding = vec.Slice()
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanScoredEpisode(rows pgxRows) (domain.Episode, float64, error) {
	var ep domain.Episode
	var vec pgvector.Vector
	var similarity float64
	if err := rows.Scan(&ep.ID, &ep.SourceTag, &ep.AuthorRef, &ep.Body, &ep.MediaRefs, &ep.Timestamp,
		&ep.InsertionCounter, &ep.Modality, &vec, &ep.Strength, &ep.Valence, &ep.CreatedAt, &similarity); err != nil {
		return domain.Episode{}, 0, fmt.Errorf("memory: scanning scored episode: %w", err)
	}
	ep.Embedding = vec.Slice()
	return ep, similarity, nil
}
