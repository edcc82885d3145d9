package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migration is one forward-only, idempotent step. Statements use
// IF NOT EXISTS / ON CONFLICT DO NOTHING throughout so re-running an already
// applied migration is a no-op, per spec.md §6 ("migrations are forward-only
// and idempotent").
type migration struct {
	Name string
	SQL  string
}

// migrations is the ordered sequence covering every logical table spec.md
// §6 names: episodes, facts, people, aliases, relationships,
// organism_state (singleton), organism_state_history, narrative_chapters,
// feedback_signals, self_knowledge, token_usage, modulation_samples,
// learned_curves (singleton), learned_thresholds (singleton),
// learned_neural (singleton), behavior_rules, goals, traits (the
// questionnaire's raw (category, trait, value) audit trail), plus a
// pgvector-backed episode embedding column.
var migrations = []migration{
	{
		Name: "0001_extensions",
		SQL:  `CREATE EXTENSION IF NOT EXISTS vector;`,
	},
	{
		Name: "0002_episodes",
		SQL: `
CREATE TABLE IF NOT EXISTS episodes (
	id                TEXT PRIMARY KEY,
	source_tag        TEXT NOT NULL,
	author_ref        TEXT NOT NULL,
	body              TEXT NOT NULL,
	media_refs        TEXT[] NOT NULL DEFAULT '{}',
	timestamp         TIMESTAMPTZ NOT NULL,
	insertion_counter BIGSERIAL,
	modality          TEXT NOT NULL DEFAULT 'text',
	embedding         vector(384),
	strength          DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	valence           DOUBLE PRECISION NOT NULL DEFAULT 0.0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS episodes_timestamp_idx ON episodes (timestamp);
CREATE INDEX IF NOT EXISTS episodes_embedding_idx ON episodes USING ivfflat (embedding vector_cosine_ops);
`,
	},
	{
		Name: "0003_facts",
		SQL: `
CREATE TABLE IF NOT EXISTS facts (
	subject    TEXT NOT NULL,
	predicate  TEXT NOT NULL,
	object     TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (subject, predicate, object)
);
`,
	},
	{
		Name: "0004_social_graph",
		SQL: `
CREATE TABLE IF NOT EXISTS people (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS aliases (
	platform    TEXT NOT NULL,
	platform_id TEXT NOT NULL,
	person_id   TEXT NOT NULL REFERENCES people(id),
	PRIMARY KEY (platform, platform_id)
);
CREATE TABLE IF NOT EXISTS relationships (
	person_id TEXT PRIMARY KEY REFERENCES people(id),
	trust     INTEGER NOT NULL DEFAULT 0,
	intimacy  INTEGER NOT NULL DEFAULT 0,
	respect   INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS interaction_edges (
	id         BIGSERIAL PRIMARY KEY,
	person_id  TEXT NOT NULL REFERENCES people(id),
	context    TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL
);
`,
	},
	{
		Name: "0005_organism_state",
		SQL: `
CREATE TABLE IF NOT EXISTS organism_state (
	singleton  BOOLEAN PRIMARY KEY DEFAULT true CHECK (singleton),
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS organism_state_history (
	sequence     BIGSERIAL PRIMARY KEY,
	state        JSONB NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`,
	},
	{
		Name: "0006_narrative_and_feedback",
		SQL: `
CREATE TABLE IF NOT EXISTS narrative_chapters (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	content        TEXT NOT NULL,
	period_start   TIMESTAMPTZ NOT NULL,
	period_end     TIMESTAMPTZ NOT NULL,
	emotional_tone DOUBLE PRECISION NOT NULL,
	themes         TEXT[] NOT NULL DEFAULT '{}',
	people         TEXT[] NOT NULL DEFAULT '{}',
	turning_points TEXT[] NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS feedback_signals (
	id                TEXT PRIMARY KEY,
	signal_type       TEXT NOT NULL,
	content           TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	emotional_context TEXT NOT NULL DEFAULT '',
	timestamp         TIMESTAMPTZ NOT NULL,
	consolidated      BOOLEAN NOT NULL DEFAULT false
);
`,
	},
	{
		Name: "0007_self_knowledge",
		SQL: `
CREATE TABLE IF NOT EXISTS self_knowledge (
	id                TEXT PRIMARY KEY,
	domain            TEXT NOT NULL,
	content           TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	source            TEXT NOT NULL,
	source_episode_id TEXT,
	private           BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`,
	},
	{
		Name: "0008_budget_and_modulation",
		SQL: `
CREATE TABLE IF NOT EXISTS token_usage (
	period_key TEXT PRIMARY KEY, -- "daily:2026-07-31" or "monthly:2026-07"
	tokens     BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS modulation_samples (
	id           BIGSERIAL PRIMARY KEY,
	state        JSONB NOT NULL,
	vector       JSONB NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`,
	},
	{
		Name: "0009_learned_singletons",
		SQL: `
CREATE TABLE IF NOT EXISTS learned_curves (
	singleton  BOOLEAN PRIMARY KEY DEFAULT true CHECK (singleton),
	curves     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS learned_thresholds (
	singleton  BOOLEAN PRIMARY KEY DEFAULT true CHECK (singleton),
	thresholds JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS learned_neural (
	singleton  BOOLEAN PRIMARY KEY DEFAULT true CHECK (singleton),
	weights    BYTEA,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`,
	},
	{
		Name: "0010_rules_and_goals",
		SQL: `
CREATE TABLE IF NOT EXISTS behavior_rules (
	id          TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	enabled     BOOLEAN NOT NULL DEFAULT true,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS goals (
	id          TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	trigger     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`,
	},
	{
		Name: "0011_traits",
		SQL: `
CREATE TABLE IF NOT EXISTS traits (
	category   TEXT NOT NULL,
	trait      TEXT NOT NULL,
	value      INTEGER NOT NULL,
	confidence DOUBLE PRECISION,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (category, trait)
);
`,
	},
}

// Migrate applies every not-yet-applied migration, in order, inside its own
// transaction, recording completion in schema_migrations so reruns are
// no-ops.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name        TEXT PRIMARY KEY,
	applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`); err != nil {
		return fmt.Errorf("db: creating schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`, m.Name).Scan(&applied); err != nil {
			return fmt.Errorf("db: checking migration %s: %w", m.Name, err)
		}
		if applied {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("db: starting migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("db: applying migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("db: recording migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("db: committing migration %s: %w", m.Name, err)
		}
	}
	return nil
}
