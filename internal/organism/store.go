// Package organism is the Layer 2 State Store: it owns the single
// organism_state row and its append-only history, and serialises access so
// the Dynamics Engine's step and a live reasoning-loop turn never observe a
// half-written state (spec.md §5).
package organism

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mneme/internal/domain"
)

// ErrNoState is returned by Store.Load before the singleton row has ever
// been written.
var ErrNoState = errors.New("organism: no state row yet")

// Store is the singleton-row repository plus the in-process lock that
// makes reads/writes safe under spec.md §5's concurrency model: a single
// exclusive lock guards state-mutating steps (Dynamics tick, Consolidation
// write-back), a shared lock guards readers (Context Assembler, status
// endpoint).
type Store struct {
	pool *pgxpool.Pool
	mu   sync.RWMutex

	cached   domain.OrganismState
	sequence int64
	loaded   bool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Load returns the current state, reading through to Postgres once and
// caching afterward; callers that need the latest durable state after an
// external write should call Refresh.
func (s *Store) Load(ctx context.Context) (domain.OrganismState, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.cached, nil
	}
	s.mu.RUnlock()
	return s.Refresh(ctx)
}

// Refresh forces a read from Postgres, bypassing the cache.
func (s *Store) Refresh(ctx context.Context) (domain.OrganismState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM organism_state WHERE singleton`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrganismState{}, ErrNoState
	}
	if err != nil {
		return domain.OrganismState{}, fmt.Errorf("organism: loading state: %w", err)
	}
	var state domain.OrganismState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.OrganismState{}, fmt.Errorf("organism: decoding state: %w", err)
	}

	s.mu.Lock()
	s.cached = state
	s.loaded = true
	s.mu.Unlock()
	return state, nil
}

// Bootstrap writes the default state if, and only if, no row exists yet —
// the singleton constraint (enforced in Postgres by the `singleton` check
// column) makes a second insert fail, so this is safe to call on every
// daemon start.
func (s *Store) Bootstrap(ctx context.Context, initial domain.OrganismState) error {
	raw, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("organism: encoding initial state: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO organism_state (singleton, state, updated_at)
		VALUES (true, $1, now())
		ON CONFLICT (singleton) DO NOTHING
	`, raw)
	if err != nil {
		return fmt.Errorf("organism: bootstrapping state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil // already bootstrapped
	}

	s.mu.Lock()
	s.cached = initial
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Mutate runs fn under the exclusive lock against the current cached state,
// persists the result transactionally (state row + history append), and
// updates the cache only on success — a failure rolls back and the cache is
// left at its prior, still-consistent value (spec.md §7 "failures that
// would corrupt persistent state are fatal to the turn and roll back via
// transactional writes").
func (s *Store) Mutate(ctx context.Context, fn func(domain.OrganismState) (domain.OrganismState, error)) (domain.OrganismStateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.mu.Unlock()
		if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrNoState) {
			s.mu.Lock()
			return domain.OrganismStateSnapshot{}, err
		}
		s.mu.Lock()
	}

	next, err := fn(s.cached)
	if err != nil {
		return domain.OrganismStateSnapshot{}, err
	}
	next.UpdatedAt = time.Now()

	raw, err := json.Marshal(next)
	if err != nil {
		return domain.OrganismStateSnapshot{}, fmt.Errorf("organism: encoding state: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.OrganismStateSnapshot{}, fmt.Errorf("organism: starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO organism_state (singleton, state, updated_at)
		VALUES (true, $1, $2)
		ON CONFLICT (singleton) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, raw, next.UpdatedAt); err != nil {
		return domain.OrganismStateSnapshot{}, fmt.Errorf("organism: writing state: %w", err)
	}

	var sequence int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO organism_state_history (state, recorded_at) VALUES ($1, $2)
		RETURNING sequence
	`, raw, next.UpdatedAt).Scan(&sequence); err != nil {
		return domain.OrganismStateSnapshot{}, fmt.Errorf("organism: appending history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.OrganismStateSnapshot{}, fmt.Errorf("organism: committing state: %w", err)
	}

	s.cached = next
	s.sequence = sequence
	s.loaded = true

	return domain.OrganismStateSnapshot{State: next, Sequence: sequence, RecordedAt: next.UpdatedAt}, nil
}

// Snapshot returns a consistent (state, sequence) pair for a single
// reasoning-loop turn to use across its Recall/Modulate/Generate steps,
// matching spec.md §5's requirement that a turn observe one snapshot.
func (s *Store) Snapshot(ctx context.Context) (domain.OrganismStateSnapshot, error) {
	state, err := s.Load(ctx)
	if err != nil {
		return domain.OrganismStateSnapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.OrganismStateSnapshot{State: state, Sequence: s.sequence, RecordedAt: state.UpdatedAt}, nil
}
