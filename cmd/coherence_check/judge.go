package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mneme/internal/domain"
	"mneme/internal/llm"
)

// judgeResponse is the judge's structured verdict on one scenario's
// transcript, scored 1-5 on three axes.
type judgeResponse struct {
	Reasoning        string `json:"reasoning"`
	PersonalityScore int    `json:"personality_score"`
	MemoryScore      int    `json:"memory_score"`
	NarrativeScore   int    `json:"narrative_score"`
}

// evaluateTranscript asks the judge whether a scenario's turns stayed
// consistent with the organism's Big5 profile, honoured its recalled
// memory (used it when relevant, avoided forbidden topics), and didn't
// contradict its own narrative self-model.
//
// Adapted from the teacher's evaluateResponse: same "robust JSON
// extraction + clamp" shape (extractFirstJSONObject, clamp1to5), with the
// hardcoded per-character relation/memory lookup tables
// (deriveRelationInfo/deriveMemoryInfo) dropped in favour of the organism's
// actual persisted self-knowledge rows and narrative chapters, since mneme
// has no cast of named characters to special-case.
func evaluateTranscript(ctx context.Context, judge llm.Client, traits domain.Big5, selfKnowledge []domain.SelfKnowledgeRow, chapters []domain.NarrativeChapter, sc scenario, transcript []string) (judgeResponse, error) {
	prompt := fmt.Sprintf(`You are an expert judge scoring a digital organism's conversational consistency.

Big Five profile: openness=%d conscientiousness=%d extraversion=%d agreeableness=%d neuroticism=%d
Self-knowledge: %s
Narrative chapters: %s

Transcript:
%s

Scenario expectation: %s

Score 1-5 on each axis:
1) personality_score: did the replies fit the Big Five profile above?
2) memory_score: did it use relevant recalled memory, or correctly avoid forbidden topics?
3) narrative_score: did it avoid contradicting its own self-knowledge/narrative?

Respond with ONLY a JSON object, no markdown:
{"reasoning": "...", "personality_score": 0, "memory_score": 0, "narrative_score": 0}`,
		traits.Openness, traits.Conscientiousness, traits.Extraversion, traits.Agreeableness, traits.Neuroticism,
		formatSelfKnowledge(selfKnowledge), formatChapters(chapters), strings.Join(transcript, "\n"), sc.Expectation,
	)

	completion, err := judge.Complete(ctx, llm.CompletionRequest{
		System:   "You score transcripts strictly as JSON.",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return judgeResponse{}, err
	}

	jsonStr := extractFirstJSONObject(completion.Text)
	if jsonStr == "" {
		return judgeResponse{}, fmt.Errorf("judge returned non-json: %q", completion.Text)
	}

	var jr judgeResponse
	if err := json.Unmarshal([]byte(jsonStr), &jr); err != nil {
		return judgeResponse{}, fmt.Errorf("parsing judge json: %w (raw=%q)", err, jsonStr)
	}

	jr.PersonalityScore = clamp1to5(jr.PersonalityScore)
	jr.MemoryScore = clamp1to5(jr.MemoryScore)
	jr.NarrativeScore = clamp1to5(jr.NarrativeScore)
	return jr, nil
}

func clamp1to5(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func formatSelfKnowledge(rows []domain.SelfKnowledgeRow) string {
	if len(rows) == 0 {
		return "(none recorded)"
	}
	var parts []string
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Domain, r.Content))
	}
	return strings.Join(parts, "; ")
}

func formatChapters(chapters []domain.NarrativeChapter) string {
	if len(chapters) == 0 {
		return "(none recorded)"
	}
	var parts []string
	for _, c := range chapters {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Title, c.Content))
	}
	return strings.Join(parts, "; ")
}

// extractFirstJSONObject returns the first balanced {...} substring.
func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
