// Package reasoning is the Layer 8 Reasoning Loop: the per-event state
// machine of spec.md §4.5/§4.10. Grounded on the teacher's CloneService.Chat
// orchestration (profile/context fetch → prompt build → generate → parse →
// persist), generalised from a single LLM round-trip into the organism's
// full Receive→Recall→Modulate→Assemble→Generate→Parse→Act→Learn→Sanitise
// turn, with tool re-entry on the Acting→Receiving edge.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mneme/internal/assembler"
	"mneme/internal/clock"
	"mneme/internal/config"
	"mneme/internal/domain"
	"mneme/internal/dynamics"
	"mneme/internal/feedback"
	"mneme/internal/llm"
	"mneme/internal/memory"
	"mneme/internal/modulation"
	"mneme/internal/organism"
	"mneme/internal/turntoken"
)

// ErrToolRecursionExceeded is returned when a tool-result re-entry chain
// exceeds reasoning.max_tool_depth (spec.md §4.5 step 7, §4.10).
var ErrToolRecursionExceeded = errors.New("reasoning: tool recursion depth exceeded")

// ToolGate is the capability-gated execution surface the Tool Registry
// (internal/tools) implements. The reasoning loop depends only on this
// interface so it never needs to know about specific tool implementations.
type ToolGate interface {
	// Invoke validates, gates, and (if admitted) executes a tool call.
	// denied is true when the capability gate refused execution; err is
	// reserved for infrastructure failures unrelated to the gate decision.
	Invoke(ctx context.Context, name string, arguments map[string]any) (result domain.ToolResult, denied bool, err error)
}

// FactExtractor runs the spec.md §4.5 step 8 "fact-extraction pass" over a
// completed exchange. Left pluggable: the organism's extraction quality is
// an LLM-prompting concern, not a structural one, so the default Loop runs
// with a nil extractor and simply skips the step.
type FactExtractor interface {
	Extract(ctx context.Context, event domain.Event, outcome domain.ParsedOutcome) []domain.SemanticFact
}

// Loop wires every Organism Core layer together for one turn.
type Loop struct {
	Store      *organism.Store
	Dynamics   *dynamics.Engine
	Memory     *memory.Memory
	Feedback   *feedback.Buffer
	Assembler  *assembler.Assembler
	LLM        llm.Client
	Tools      ToolGate
	Extractor  FactExtractor
	Traits     domain.Big5
	LLMConfig  config.LLMConfig
	Reasoning  config.ReasoningConfig
	Log        *zap.Logger
	Tokens     *turntoken.Service

	now func() time.Time // overridable for tests
}

func New(store *organism.Store, eng *dynamics.Engine, mem *memory.Memory, fb *feedback.Buffer, asm *assembler.Assembler, client llm.Client, tools ToolGate, traits domain.Big5, llmCfg config.LLMConfig, reasoningCfg config.ReasoningConfig, tokens *turntoken.Service, log *zap.Logger) *Loop {
	return &Loop{
		Store: store, Dynamics: eng, Memory: mem, Feedback: fb, Assembler: asm,
		LLM: client, Tools: tools, Traits: traits, LLMConfig: llmCfg, Reasoning: reasoningCfg,
		Tokens: tokens, Log: log, now: time.Now,
	}
}

// TurnRequest bundles what one RunTurn call needs beyond the triggering
// Event: the raw chat buffer (assembler layer 5) and which sanitisation
// channel the output is headed for.
type TurnRequest struct {
	Event              domain.Event
	ConversationWindow []domain.ConversationTurn
	Channel            Channel
}

// RunTurn executes spec.md §4.5's nine-step turn, recursing on tool
// invocations up to reasoning.max_tool_depth. Every recursion within one
// RunTurn call shares the same turnID, which scopes the turn tokens a tool
// re-entry must present (see the tool-invocation branch below).
func (l *Loop) RunTurn(ctx context.Context, req TurnRequest) (domain.TurnOutcome, error) {
	return l.runTurn(ctx, req, 0, uuid.NewString())
}

func (l *Loop) runTurn(ctx context.Context, req TurnRequest, depth int, turnID string) (domain.TurnOutcome, error) {
	if depth > l.Reasoning.MaxToolDepth {
		return domain.TurnOutcome{}, ErrToolRecursionExceeded
	}

	event := req.Event

	if event.Kind == domain.EventToolResult && l.Tokens != nil {
		if err := l.Tokens.Verify(event.ToolToken, event.ConversationID, turnID, event.ToolCallID); err != nil {
			return domain.TurnOutcome{}, fmt.Errorf("reasoning: tool result re-entry: %w", err)
		}
	}

	var embedding []float32
	if event.Body != "" {
		var err error
		embedding, err = l.LLM.Embed(ctx, event.Body)
		if err != nil {
			return domain.TurnOutcome{}, fmt.Errorf("reasoning: embedding event: %w", err)
		}
	}

	snapshot, err := l.applyStimulus(ctx, event)
	if err != nil {
		return domain.TurnOutcome{}, fmt.Errorf("reasoning: applying stimulus: %w", err)
	}

	var recall domain.RecallResult
	if embedding != nil {
		recall, err = l.Memory.Recall(ctx, embedding, snapshot.State.Medium.MoodBias, "", event.AuthorRef)
		if err != nil {
			return domain.TurnOutcome{}, fmt.Errorf("reasoning: recall: %w", err)
		}
	}

	if embedding != nil {
		best, ok := bestSimilarity(recall.Episodes)
		if s := Surprise(embedding, best, ok); s > SurpriseThreshold {
			l.onSurprise(ctx, event, s)
		}
	}

	vec := modulation.Modulate(snapshot.State)
	final := modulation.Final(vec, l.LLMConfig.BaseMaxTokens, l.LLMConfig.BaseTemperature, l.LLMConfig.BaseTopP, modulation.DefaultEnvelope)

	var selfKnowledge []domain.SelfKnowledgeRow
	if l.Memory.SelfKnowledge != nil {
		selfKnowledge, err = l.Memory.SelfKnowledge.All(ctx)
		if err != nil {
			return domain.TurnOutcome{}, fmt.Errorf("reasoning: loading self-knowledge: %w", err)
		}
	}

	assembled := l.Assembler.Assemble(assembler.Input{
		SelfKnowledge:       selfKnowledge,
		RelevantFacts:       recall.RelevantFacts,
		SocialContext:       recall.SocialContext,
		RecalledEpisodes:    recall.Episodes,
		ConversationWindow:  req.ConversationWindow,
		Event:               event,
		ContextBudgetFactor: vec.ContextBudgetFactor,
	})

	completion, err := l.LLM.Complete(ctx, llm.CompletionRequest{
		System:      assembled.Text,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: event.Body}},
		MaxTokens:   final.MaxTokens,
		Temperature: final.Temperature,
		TopP:        final.TopP,
	})
	if err != nil {
		return domain.TurnOutcome{}, fmt.Errorf("reasoning: generation: %w", err)
	}

	outcome := ParseOutcome(completion.Text)

	if outcome.Kind == domain.OutcomeToolInvocation {
		var token string
		if l.Tokens != nil {
			var err error
			token, err = l.Tokens.Issue(event.ConversationID, turnID, outcome.ToolName)
			if err != nil {
				return domain.TurnOutcome{}, fmt.Errorf("reasoning: issuing turn token: %w", err)
			}
		}

		result, denied, err := l.Tools.Invoke(ctx, outcome.ToolName, outcome.ToolArguments)
		if err != nil {
			return domain.TurnOutcome{}, fmt.Errorf("reasoning: tool invocation: %w", err)
		}
		invocation := domain.ToolInvocation{ToolName: outcome.ToolName, Result: result, Denied: denied}

		nextEvent := domain.Event{
			Kind:           domain.EventToolResult,
			ConversationID: event.ConversationID,
			ToolCallID:     outcome.ToolName,
			ToolResult:     &result,
			ToolToken:      token,
			Timestamp:      l.now(),
		}
		next, err := l.runTurn(ctx, TurnRequest{Event: nextEvent, ConversationWindow: req.ConversationWindow, Channel: req.Channel}, depth+1, turnID)
		if err != nil {
			return domain.TurnOutcome{}, err
		}
		next.ToolCalls = append([]domain.ToolInvocation{invocation}, next.ToolCalls...)
		return next, nil
	}

	l.learn(ctx, event, outcome, embedding)

	turnOutcome := domain.TurnOutcome{ModulationUsed: vec}
	switch outcome.Kind {
	case domain.OutcomeSilence:
		turnOutcome.Silent = true
	case domain.OutcomeModalityReply:
		turnOutcome.Modality = outcome.Modality
		turnOutcome.FinalText = Sanitise(outcome.Text, req.Channel)
	default:
		turnOutcome.FinalText = Sanitise(outcome.Text, req.Channel)
	}
	return turnOutcome, nil
}

// applyStimulus mutates OrganismState with the Dynamics Engine for the
// elapsed time since the last recorded update, folding in the event's
// derived sensory input (spec.md's data-flow line: "external input → State
// Store (stimulus updates) ... → Dynamics").
func (l *Loop) applyStimulus(ctx context.Context, event domain.Event) (domain.OrganismStateSnapshot, error) {
	current, err := l.Store.Snapshot(ctx)
	if err != nil && !errors.Is(err, organism.ErrNoState) {
		return domain.OrganismStateSnapshot{}, err
	}

	dt := clock.SinceLastTick(current.RecordedAt, l.now())
	input := sensoryInputFromEvent(event)

	return l.Store.Mutate(ctx, func(state domain.OrganismState) (domain.OrganismState, error) {
		return l.Dynamics.Step(state, input, l.Traits, dt), nil
	})
}

func sensoryInputFromEvent(event domain.Event) *domain.SensoryInput {
	if event.Body == "" {
		return nil
	}
	return &domain.SensoryInput{
		Intensity: 0.3,
		Valence:   0,
		Salience:  0.3,
	}
}

// onSurprise raises arousal for the next step and stages a reflection
// signal, per spec.md §4.5's surprise-score paragraph.
func (l *Loop) onSurprise(ctx context.Context, event domain.Event, score float64) {
	_, err := l.Store.Mutate(ctx, func(state domain.OrganismState) (domain.OrganismState, error) {
		state.Fast.Arousal = clampUnit(state.Fast.Arousal + 0.2*score)
		return dynamics.Normalize(state), nil
	})
	if err != nil && l.Log != nil {
		l.Log.Warn("reasoning: applying surprise arousal bump failed", zap.Error(err))
	}

	if l.Feedback == nil {
		return
	}
	signal := domain.FeedbackSignal{
		SignalType:       "reflection",
		Content:          fmt.Sprintf("surprising input (score=%.2f): %s", score, event.Body),
		Confidence:       score,
		EmotionalContext: "surprise",
		Timestamp:        l.now(),
	}
	if err := l.Feedback.Stage(ctx, signal); err != nil && l.Log != nil {
		l.Log.Warn("reasoning: staging surprise reflection failed", zap.Error(err))
	}
}

// defaultEpisodeStrength is memorize(episode)'s default per spec.md §4.2.
const defaultEpisodeStrength = 0.5

// learn runs the optional fact-extraction pass and writes the incoming
// event's body into episodic memory, per spec.md §4.5 step 8.
func (l *Loop) learn(ctx context.Context, event domain.Event, outcome domain.ParsedOutcome, embedding []float32) {
	if l.Extractor != nil {
		for _, fact := range l.Extractor.Extract(ctx, event, outcome) {
			if l.Memory.Facts == nil {
				break
			}
			if err := l.Memory.Facts.Ingest(ctx, fact); err != nil && l.Log != nil {
				l.Log.Warn("reasoning: ingesting extracted fact failed", zap.Error(err))
			}
		}
	}

	if event.Body == "" || l.Memory.Episodes == nil {
		return
	}
	episode := domain.Episode{
		SourceTag: string(event.Kind),
		AuthorRef: event.AuthorRef,
		Body:      event.Body,
		Timestamp: event.Timestamp,
		Modality:  "text",
		Embedding: embedding,
		Strength:  defaultEpisodeStrength,
		CreatedAt: l.now(),
	}
	if err := l.Memory.Episodes.Insert(ctx, episode); err != nil && l.Log != nil {
		l.Log.Warn("reasoning: inserting episode failed", zap.Error(err))
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
