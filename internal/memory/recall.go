package memory

import (
	"context"
	"fmt"

	"mneme/internal/domain"
)

// Memory is the single entry point the rest of the organism calls into: it
// blends episodic, semantic, and social recall behind one Recall operation
// so that, per spec.md §4.2, "the caller never selects subsystem".
type Memory struct {
	Episodes      EpisodicRepository
	Facts         *PgSemanticRepository
	Social        SocialRepository
	SelfKnowledge SelfKnowledgeRepository
	Narrative     NarrativeRepository
	Index         *VectorIndex

	strengthFloor float64
	recallK       int
	// moodToneAlpha scales how strongly the caller's mood_bias reweights
	// recall toward mood-congruent episodes (spec.md §4.2's blend formula
	// "similarity * strength * (1 + alpha*tone_match(mood_bias))").
	moodToneAlpha float64
}

func NewMemory(episodes EpisodicRepository, facts *PgSemanticRepository, social SocialRepository, self SelfKnowledgeRepository, narrative NarrativeRepository, index *VectorIndex, strengthFloor float64, recallK int) *Memory {
	return &Memory{
		Episodes:      episodes,
		Facts:         facts,
		Social:        social,
		SelfKnowledge: self,
		Narrative:     narrative,
		Index:         index,
		strengthFloor: strengthFloor,
		recallK:       recallK,
		moodToneAlpha: 0.5,
	}
}

// Recall runs the blended query: embedding similarity search, scored by
// strength and mood-congruence, plus the subject's known facts and recent
// conversational context. It never surfaces an episode whose strength has
// decayed below the configured floor.
func (m *Memory) Recall(ctx context.Context, queryEmbedding []float32, moodBias float64, subject string, personID string) (domain.RecallResult, error) {
	scored, err := m.Index.Search(ctx, queryEmbedding, m.recallK*3) // over-fetch, then re-rank and trim
	if err != nil {
		return domain.RecallResult{}, fmt.Errorf("memory: recall search: %w", err)
	}

	reweighted := make([]domain.ScoredEpisode, 0, len(scored))
	for _, se := range scored {
		if se.Episode.Forgotten(m.strengthFloor) {
			continue
		}
		tone := toneMatch(se.Episode, moodBias)
		se.Score = se.Similarity * se.Episode.Strength * (1 + m.moodToneAlpha*tone)
		reweighted = append(reweighted, se)
	}
	sortScoredDesc(reweighted)
	if len(reweighted) > m.recallK {
		reweighted = reweighted[:m.recallK]
	}

	var facts []domain.SemanticFact
	if subject != "" && m.Facts != nil {
		facts, err = m.Facts.BySubject(ctx, subject)
		if err != nil {
			return domain.RecallResult{}, fmt.Errorf("memory: recall facts: %w", err)
		}
	}

	recent, err := m.Episodes.Recent(ctx, 10)
	if err != nil {
		return domain.RecallResult{}, fmt.Errorf("memory: recall recent: %w", err)
	}

	var social []domain.InteractionEdge
	if personID != "" && m.Social != nil {
		social, err = m.Social.RecentContext(ctx, personID, 5)
		if err != nil {
			return domain.RecallResult{}, fmt.Errorf("memory: recall social: %w", err)
		}
	}

	return domain.RecallResult{
		Episodes:       reweighted,
		RelevantFacts:  facts,
		RecentEpisodes: recent,
		SocialContext:  social,
	}, nil
}

// toneMatch reports how emotionally congruent an episode's recorded valence
// is with the caller's current mood_bias: positive means congruent,
// negative means dissonant, per spec.md §4.2's blend formula
// "similarity * strength * (1 + alpha*tone_match(mood_bias))".
func toneMatch(ep domain.Episode, moodBias float64) float64 {
	if moodBias == 0 || ep.Valence == 0 {
		return 0
	}
	product := moodBias * ep.Valence
	if product > 1 {
		return 1
	}
	if product < -1 {
		return -1
	}
	return product
}

func sortScoredDesc(s []domain.ScoredEpisode) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
