package assembler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

func baseInput() Input {
	return Input{
		SelfKnowledge: []domain.SelfKnowledgeRow{
			{Content: "values curiosity and honesty"},
		},
		RelevantFacts: []domain.SemanticFact{
			{Subject: "user", Predicate: "likes", Object: "hiking"},
		},
		SocialContext: []domain.InteractionEdge{
			{PersonID: "p1", Timestamp: time.Now(), Relationship: domain.Relationship{Trust: 80, Intimacy: 60, Respect: 70}},
		},
		RecalledEpisodes: []domain.ScoredEpisode{
			{Episode: domain.Episode{Body: "went hiking together last week"}, Score: 0.9},
		},
		ConversationWindow: []domain.ConversationTurn{
			{Role: "input", Content: "hey, how are you?"},
		},
		Event:               domain.Event{Kind: domain.EventUserMessage, Body: "what's up"},
		ContextBudgetFactor: 1.0,
	}
}

func TestAssemble_IncludesAllLayersWhenUnderBudget(t *testing.T) {
	a := New(DefaultConfig)
	out := a.Assemble(baseInput())

	require.Contains(t, out.Text, "SELF")
	require.Contains(t, out.Text, "KNOWN FACTS")
	require.Contains(t, out.Text, "RELATIONSHIP DIGEST")
	require.Contains(t, out.Text, "RECALLED MEMORY")
	require.Contains(t, out.Text, "RECENT CONVERSATION")
	require.Contains(t, out.Text, "EVENT")
	require.False(t, out.HighTensionVeto)
	for _, l := range out.Layers {
		require.False(t, l.Dropped)
	}
}

func TestAssemble_DropsLowestPriorityLayersFirstWhenOverBudget(t *testing.T) {
	cfg := DefaultConfig
	cfg.BaseBudgetChars = 10 // force heavy compression/drop
	a := New(cfg)

	out := a.Assemble(baseInput())
	require.LessOrEqual(t, out.UsedChars, totalLen(out.Layers))

	// persona (highest priority) must survive, triggering event (lowest)
	// must be among the first dropped.
	var persona, event domain.ContextLayer
	for _, l := range out.Layers {
		if l.Kind == domain.LayerPersona {
			persona = l
		}
		if l.Kind == domain.LayerTriggeringEvent {
			event = l
		}
	}
	require.False(t, persona.Dropped)
	require.True(t, event.Dropped || event.Compressed)
}

func TestAssemble_IsDeterministic(t *testing.T) {
	a := New(DefaultConfig)
	in := baseInput()

	first := a.Assemble(in)
	second := a.Assemble(in)
	require.Equal(t, first, second)
}

func TestAssemble_HighTensionVetoProtectsSocialAndEpisodeLayers(t *testing.T) {
	cfg := DefaultConfig
	cfg.BaseBudgetChars = 5 // tiny budget, would otherwise drop everything
	a := New(cfg)

	in := baseInput()
	in.RecalledEpisodes = []domain.ScoredEpisode{
		{Episode: domain.Episode{Body: "there was real tension and distrust between us"}},
	}

	out := a.Assemble(in)
	require.True(t, out.HighTensionVeto)

	for _, l := range out.Layers {
		if l.Kind == domain.LayerRecalledEpisodes || l.Kind == domain.LayerSocialDigest {
			require.False(t, l.Dropped)
			require.True(t, l.Vetoed)
		}
	}
}

func TestBuildConversationWindowLayer_TrimsToWindow(t *testing.T) {
	turns := make([]domain.ConversationTurn, 20)
	for i := range turns {
		turns[i] = domain.ConversationTurn{Role: "input", Content: "msg"}
	}
	layer := buildConversationWindowLayer(turns, 10)
	require.Equal(t, 10, strings.Count(layer, "msg"))
}

func TestDetectHighTension_FalseOnNeutralContent(t *testing.T) {
	layers := []domain.ContextLayer{
		{Kind: domain.LayerRecalledEpisodes, Content: "we had a nice calm walk"},
	}
	require.False(t, detectHighTension(layers))
}
