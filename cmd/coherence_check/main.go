// Command coherence_check is a scripted multi-turn harness that drives the
// reasoning loop through a handful of scenarios and has an LLM judge score
// whether the replies stayed consistent with the organism's Big5 profile,
// its recalled memory, and its own narrative self-model.
//
// Adapted from the teacher's cmd/coherence_check: the
// scenario-table-plus-judge shape survives, but CloneService.Chat is
// replaced by reasoning.Loop.RunTurn and the judge's context comes from the
// organism's actual persisted self-knowledge/narrative rows rather than the
// teacher's hardcoded per-character relationship table.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mneme/internal/assembler"
	"mneme/internal/config"
	"mneme/internal/db"
	"mneme/internal/domain"
	"mneme/internal/dynamics"
	"mneme/internal/feedback"
	"mneme/internal/llm"
	"mneme/internal/memory"
	"mneme/internal/organism"
	"mneme/internal/reasoning"
	"mneme/internal/tools"
	"mneme/internal/turntoken"
)

type scenario struct {
	Name        string
	Turns       []string
	Expectation string
	MinAverage  float64
}

var scenarios = []scenario{
	{
		Name:        "steady warmth under a mundane question",
		Turns:       []string{"hey, how's your day going?", "did anything interesting happen?"},
		Expectation: "calm, moderately warm replies consistent with a moderate personality profile",
		MinAverage:  3,
	},
	{
		Name:        "acknowledging a stressful disclosure",
		Turns:       []string{"I just found out I might lose my job next month.", "I don't really know what to do."},
		Expectation: "empathetic tone, no flippant dismissal of the stated stress",
		MinAverage:  3,
	},
}

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("running migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer redisClient.Close()

	store := organism.NewStore(pool)
	if err := store.Bootstrap(ctx, domain.DefaultOrganismState()); err != nil {
		logger.Fatal("bootstrapping organism state", zap.Error(err))
	}
	engine := dynamics.NewEngine(cfg.Organism.MaxIntegrationStep, cfg.Organism.CatchUpHorizon)

	episodes := memory.NewPgEpisodicRepository(pool)
	facts := memory.NewPgSemanticRepository(pool)
	social := memory.NewPgSocialRepository(pool)
	selfKnowledge := memory.NewPgSelfKnowledgeRepository(pool)
	narrative := memory.NewPgNarrativeRepository(pool)
	index := memory.NewVectorIndex(episodes, cfg.Memory.VectorBackend, 5000)
	mem := memory.NewMemory(episodes, facts, social, selfKnowledge, narrative, index, cfg.Memory.StrengthFloor, cfg.Memory.RecallK)

	fb := feedback.NewBuffer(redisClient)
	asm := assembler.New(assembler.DefaultConfig)

	toolRegistry := tools.New(cfg.Safety, logger)
	if err := tools.RegisterBuiltins(toolRegistry); err != nil {
		logger.Fatal("registering built-in tools", zap.Error(err))
	}

	traitStore := organism.NewTraitStore(pool)
	traitRows, err := traitStore.Load(ctx)
	if err != nil {
		logger.Fatal("loading traits", zap.Error(err))
	}
	traits := organism.Big5FromRows(traitRows, domain.Big5{Openness: 60, Conscientiousness: 60, Extraversion: 50, Agreeableness: 60, Neuroticism: 30})

	llmClient := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel, llm.WithLogger(logger))
	tokens := turntoken.New(cfg.TurnTokenSigningKey, 0)
	loop := reasoning.New(store, engine, mem, fb, asm, llmClient, toolRegistry, traits, cfg.LLM, cfg.Reasoning, tokens, logger)

	knowledgeRows, err := selfKnowledge.All(ctx)
	if err != nil {
		logger.Fatal("loading self-knowledge", zap.Error(err))
	}
	chapters, err := narrative.Recent(ctx, 5)
	if err != nil {
		logger.Fatal("loading narrative chapters", zap.Error(err))
	}

	failures := 0
	for _, sc := range scenarios {
		fmt.Printf("== %s ==\n", sc.Name)
		conversationID := uuid.NewString()
		var window []domain.ConversationTurn
		var transcript []string

		for _, turn := range sc.Turns {
			event := domain.Event{Kind: domain.EventUserMessage, ConversationID: conversationID, AuthorRef: "operator", Body: turn, Timestamp: time.Now().UTC()}
			outcome, err := loop.RunTurn(ctx, reasoning.TurnRequest{Event: event, ConversationWindow: window, Channel: reasoning.ChannelCasual})
			if err != nil {
				logger.Fatal("turn failed", zap.Error(err))
			}
			transcript = append(transcript, fmt.Sprintf("user: %s", turn), fmt.Sprintf("organism: %s", outcome.FinalText))
			window = append(window,
				domain.ConversationTurn{ID: uuid.NewString(), ConversationID: conversationID, Role: "input", Content: turn},
				domain.ConversationTurn{ID: uuid.NewString(), ConversationID: conversationID, Role: "organism", Content: outcome.FinalText},
			)
		}

		verdict, err := evaluateTranscript(ctx, llmClient, traits, knowledgeRows, chapters, sc, transcript)
		if err != nil {
			logger.Fatal("judge failed", zap.Error(err))
		}
		average := float64(verdict.PersonalityScore+verdict.MemoryScore+verdict.NarrativeScore) / 3.0
		fmt.Printf("personality=%d memory=%d narrative=%d avg=%.2f\nreasoning: %s\n",
			verdict.PersonalityScore, verdict.MemoryScore, verdict.NarrativeScore, average, verdict.Reasoning)

		if average < sc.MinAverage {
			fmt.Println("FAIL: below minimum average")
			failures++
		} else {
			fmt.Println("PASS")
		}
	}

	if failures > 0 {
		fmt.Printf("%d scenario(s) failed\n", failures)
		os.Exit(1)
	}
	fmt.Println("all coherence checks passed")
}
