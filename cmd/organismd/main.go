// Command organismd runs the organism as a long-lived daemon: the
// heartbeat/trigger dispatcher, the HTTP surface, and on-demand
// consolidation, all sharing one OrganismState store and one Memory
// Substrate connection pool.
//
// Grounded on the teacher's cmd/api/main.go: same config→pool→repositories
// →services→router→http.Server wiring order, generalised from the
// teacher's user/session/clone services to the organism's own layered
// components (state store, dynamics engine, memory substrate, feedback
// buffer, modulation mapper, context assembler, reasoning loop, tool
// registry, consolidator, trigger evaluator, budget tracker) and adding
// the clock.Dispatcher heartbeat/trigger loops the teacher's stateless API
// server never needed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mneme/internal/assembler"
	"mneme/internal/budget"
	"mneme/internal/clock"
	"mneme/internal/config"
	"mneme/internal/consolidation"
	"mneme/internal/db"
	"mneme/internal/domain"
	"mneme/internal/dynamics"
	"mneme/internal/feedback"
	"mneme/internal/httpapi"
	"mneme/internal/llm"
	"mneme/internal/memory"
	"mneme/internal/organism"
	"mneme/internal/reasoning"
	"mneme/internal/tools"
	"mneme/internal/triggers"
	"mneme/internal/turntoken"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, _ := zap.NewProduction()
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

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("connecting to redis", zap.Error(err))
	}

	llmClient := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel, llm.WithLogger(logger))

	store := organism.NewStore(pool)
	if err := store.Bootstrap(ctx, domain.DefaultOrganismState()); err != nil {
		logger.Fatal("bootstrapping organism state", zap.Error(err))
	}
	if _, err := store.Load(ctx); err != nil {
		logger.Fatal("loading organism state", zap.Error(err))
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
	asm := assembler.New(assembler.Config{
		BaseBudgetChars:     cfg.Reasoning.ContextBaseBudget,
		ConversationWindow:  assembler.DefaultConfig.ConversationWindow,
		MaxRecalledEpisodes: assembler.DefaultConfig.MaxRecalledEpisodes,
	})

	toolRegistry := tools.New(cfg.Safety, logger)
	if err := tools.RegisterBuiltins(toolRegistry); err != nil {
		logger.Fatal("registering built-in tools", zap.Error(err))
	}

	traitStore := organism.NewTraitStore(pool)
	traitRows, err := traitStore.Load(ctx)
	if err != nil {
		logger.Fatal("loading traits", zap.Error(err))
	}
	traits := organism.Big5FromRows(traitRows, defaultTraits())
	if len(traitRows) == 0 {
		logger.Warn("no trait calibration found; run mnemectl once to seed personality via the bootstrap questionnaire, falling back to the default profile for now")
	}
	tokens := turntoken.New(cfg.TurnTokenSigningKey, 0)
	loop := reasoning.New(store, engine, mem, fb, asm, llmClient, toolRegistry, traits, cfg.LLM, cfg.Reasoning, tokens, logger)

	budgets := budget.New(redisClient, cfg.TokenBudget)
	consolidator := consolidation.New(fb, store, mem, llmClient, cfg.Consolidation, logger)
	triggerEvaluator := triggers.New(episodes, redisClient, budgets, cfg.Trigger, cfg.Expression.PresenceSchedule, logger)

	lastInteraction := time.Now().UTC()
	dispatcher := clock.New(logger, cfg.Organism.TickInterval, cfg.Organism.TriggerInterval,
		tickFunc(store, engine, traits),
		triggerFunc(store, triggerEvaluator, &lastInteraction, logger),
	)

	eventsHandler := httpapi.NewEventsHandler(logger, loop)
	statusHandler := httpapi.NewStatusHandler(logger, store, budgets)
	sleepHandler := httpapi.NewSleepHandler(logger, consolidator)
	router := httpapi.NewRouter(logger, eventsHandler, statusHandler, sleepHandler, nil)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting http server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	<-dispatcherDone
}

// tickFunc advances Dynamics by dt with no stimulus (ambient drift only;
// stimulus-bearing ticks happen inline in a reasoning-loop turn) and
// persists the result through the organism's single-writer Mutate lock.
func tickFunc(store *organism.Store, engine *dynamics.Engine, traits domain.Big5) clock.TickFunc {
	return func(ctx context.Context, dt time.Duration) error {
		_, err := store.Mutate(ctx, func(state domain.OrganismState) (domain.OrganismState, error) {
			return engine.Step(state, nil, traits, dt), nil
		})
		return err
	}
}

// triggerFunc evaluates proactive candidates against the current state.
// lastInteraction is a coarse in-process clock updated only by daemon
// startup; a fuller deployment would update it from every ingested event
// (internal/httpapi's EventsHandler), which this build leaves as a
// follow-up since nothing downstream of Evaluate depends on its precision
// beyond the scheduled-check-in candidate.
func triggerFunc(store *organism.Store, evaluator *triggers.Evaluator, lastInteraction *time.Time, logger *zap.Logger) clock.TriggerFunc {
	return func(ctx context.Context) error {
		snapshot, err := store.Snapshot(ctx)
		if err != nil {
			return err
		}
		candidate, err := evaluator.Evaluate(ctx, triggers.Input{
			State:             snapshot.State,
			LastInteractionAt: *lastInteraction,
		})
		if err != nil {
			return err
		}
		if candidate != nil {
			logger.Info("trigger candidate admitted",
				zap.String("kind", string(candidate.Kind)),
				zap.Float64("score", candidate.Score),
				zap.String("reason", candidate.Reason),
			)
		}
		return nil
	}
}

// defaultTraits is the fallback Big Five baseline used until mnemectl's
// bootstrap questionnaire has ever run — the same moderate profile
// domain.DefaultOrganismState's homeostatic defaults assume.
func defaultTraits() domain.Big5 {
	return domain.Big5{
		Openness:          60,
		Conscientiousness: 60,
		Extraversion:      50,
		Agreeableness:     60,
		Neuroticism:       30,
	}
}
