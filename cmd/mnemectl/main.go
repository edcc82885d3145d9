// Command mnemectl is the terminal front end onto a single organism: a
// REPL for casual conversation turns plus status/sleep/sync control
// commands, and the one-time Big Five/core-value bootstrap questionnaire
// for a fresh organism.
//
// Grounded on the teacher's cmd/cli_chat/main.go: same
// config→pool→repositories→services wiring and stdin REPL shape, with the
// teacher's user/profile/session bookkeeping dropped (mnemectl talks to one
// organism, not many users) and runChat's single cloneSvc.Chat call
// replaced by a full reasoning.Loop.RunTurn.
package main

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mneme/internal/assembler"
	"mneme/internal/budget"
	"mneme/internal/config"
	"mneme/internal/consolidation"
	"mneme/internal/db"
	"mneme/internal/domain"
	"mneme/internal/dynamics"
	"mneme/internal/feedback"
	"mneme/internal/llm"
	"mneme/internal/memory"
	"mneme/internal/organism"
	"mneme/internal/reasoning"
	"mneme/internal/tools"
	"mneme/internal/triggers"
	"mneme/internal/turntoken"
)

// question is one item of the IPIP-20-derived inventory used to seed a
// fresh organism's Big5 and core_value_weights.
type question struct {
	Text      string
	Category  domain.TraitCategory
	Trait     string
	IsInverse bool
}

var questions = []question{
	// EXTRAVERSION
	{Text: "I am the life of the party.", Category: domain.TraitCategoryBigFive, Trait: "extraversion"},
	{Text: "I don't talk a lot.", Category: domain.TraitCategoryBigFive, Trait: "extraversion", IsInverse: true},
	{Text: "I talk to a lot of different people at gatherings.", Category: domain.TraitCategoryBigFive, Trait: "extraversion"},
	{Text: "I keep in the background.", Category: domain.TraitCategoryBigFive, Trait: "extraversion", IsInverse: true},

	// AGREEABLENESS
	{Text: "I sympathize with others' feelings.", Category: domain.TraitCategoryBigFive, Trait: "agreeableness"},
	{Text: "I am not interested in other people's problems.", Category: domain.TraitCategoryBigFive, Trait: "agreeableness", IsInverse: true},
	{Text: "I have a soft heart.", Category: domain.TraitCategoryBigFive, Trait: "agreeableness"},
	{Text: "I insult people.", Category: domain.TraitCategoryBigFive, Trait: "agreeableness", IsInverse: true},

	// CONSCIENTIOUSNESS
	{Text: "I get chores done right away.", Category: domain.TraitCategoryBigFive, Trait: "conscientiousness"},
	{Text: "I leave my belongings around.", Category: domain.TraitCategoryBigFive, Trait: "conscientiousness", IsInverse: true},
	{Text: "I like order.", Category: domain.TraitCategoryBigFive, Trait: "conscientiousness"},
	{Text: "I make a mess of things.", Category: domain.TraitCategoryBigFive, Trait: "conscientiousness", IsInverse: true},

	// NEUROTICISM (stored as-is; DynamicsEngine resilience wants low neuroticism, not inverted here)
	{Text: "I have frequent mood swings.", Category: domain.TraitCategoryBigFive, Trait: "neuroticism"},
	{Text: "I am relaxed most of the time.", Category: domain.TraitCategoryBigFive, Trait: "neuroticism", IsInverse: true},
	{Text: "I get upset easily.", Category: domain.TraitCategoryBigFive, Trait: "neuroticism"},
	{Text: "I seldom feel blue.", Category: domain.TraitCategoryBigFive, Trait: "neuroticism", IsInverse: true},

	// OPENNESS
	{Text: "I have a vivid imagination.", Category: domain.TraitCategoryBigFive, Trait: "openness"},
	{Text: "I am not interested in abstract ideas.", Category: domain.TraitCategoryBigFive, Trait: "openness", IsInverse: true},
	{Text: "I have difficulty understanding abstract ideas.", Category: domain.TraitCategoryBigFive, Trait: "openness", IsInverse: true},
	{Text: "I am full of ideas.", Category: domain.TraitCategoryBigFive, Trait: "openness"},

	// CORE VALUES (not part of IPIP-20; added so core_value_weights has a
	// direct calibration input instead of staying at DefaultOrganismState's
	// fixed seed forever)
	{Text: "Being honest, even when it's uncomfortable, matters to me a great deal.", Category: domain.TraitCategoryValues, Trait: "honesty"},
	{Text: "I'd rather explore a new idea than stick to a familiar routine.", Category: domain.TraitCategoryValues, Trait: "curiosity"},
	{Text: "Feeling close to the people I talk to matters more to me than being right.", Category: domain.TraitCategoryValues, Trait: "connection"},
}

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

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
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("connecting to redis", zap.Error(err))
	}

	store := organism.NewStore(pool)
	traitStore := organism.NewTraitStore(pool)

	traitRows, err := traitStore.Load(ctx)
	if err != nil {
		logger.Fatal("loading traits", zap.Error(err))
	}

	var traits domain.Big5
	if len(traitRows) == 0 {
		fmt.Println("No personality calibration found. Running the bootstrap questionnaire (1-5 scale).")
		traitRows, err = runQuestionnaire(ctx, reader, traitStore)
		if err != nil {
			logger.Fatal("questionnaire failed", zap.Error(err))
		}
		initial := domain.DefaultOrganismState()
		traits = organism.Big5FromRows(traitRows, domain.Big5{Openness: 60, Conscientiousness: 60, Extraversion: 50, Agreeableness: 60, Neuroticism: 30})
		initial.Slow.CoreValueWeights = organism.CoreValueWeightsFromRows(traitRows, initial.Slow.CoreValueWeights)
		if err := store.Bootstrap(ctx, initial); err != nil {
			logger.Fatal("bootstrapping organism state", zap.Error(err))
		}
	} else {
		traits = organism.Big5FromRows(traitRows, domain.Big5{Openness: 60, Conscientiousness: 60, Extraversion: 50, Agreeableness: 60, Neuroticism: 30})
		if err := store.Bootstrap(ctx, domain.DefaultOrganismState()); err != nil {
			logger.Fatal("bootstrapping organism state", zap.Error(err))
		}
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

	llmClient := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel, llm.WithLogger(logger))
	tokens := turntoken.New(cfg.TurnTokenSigningKey, 0)
	loop := reasoning.New(store, engine, mem, fb, asm, llmClient, toolRegistry, traits, cfg.LLM, cfg.Reasoning, tokens, logger)

	budgets := budget.New(redisClient, cfg.TokenBudget)
	consolidator := consolidation.New(fb, store, mem, llmClient, cfg.Consolidation, logger)
	triggerEvaluator := triggers.New(episodes, redisClient, budgets, cfg.Trigger, cfg.Expression.PresenceSchedule, logger)

	printState(traits, traitRows)
	runREPL(ctx, reader, store, engine, traits, loop, budgets, consolidator, triggerEvaluator)
}

func runREPL(
	ctx context.Context,
	reader *bufio.Reader,
	store *organism.Store,
	engine *dynamics.Engine,
	traits domain.Big5,
	loop *reasoning.Loop,
	budgets *budget.Tracker,
	consolidator *consolidation.Consolidator,
	triggerEvaluator *triggers.Evaluator,
) {
	conversationID := uuid.NewString()
	var window []domain.ConversationTurn
	lastSync := time.Now().UTC()

	fmt.Println(`Type a message to talk, or one of: status, sync, sleep, quit.`)
	for {
		fmt.Print("you> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("input closed, exiting.")
			return
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		switch strings.ToLower(text) {
		case "quit", "exit", "salir":
			fmt.Println("bye.")
			return
		case "status":
			runStatus(ctx, store, budgets)
			continue
		case "sleep":
			runSleep(ctx, consolidator)
			continue
		case "sync":
			lastSync = runSync(ctx, store, engine, traits, triggerEvaluator, lastSync)
			continue
		}

		now := time.Now().UTC()
		event := domain.Event{
			Kind:           domain.EventUserMessage,
			ConversationID: conversationID,
			AuthorRef:      "cli",
			Body:           text,
			Timestamp:      now,
		}

		outcome, err := loop.RunTurn(ctx, reasoning.TurnRequest{
			Event:              event,
			ConversationWindow: window,
			Channel:            reasoning.ChannelCasual,
		})
		if err != nil {
			fmt.Printf("(turn failed: %v)\n", err)
			continue
		}

		window = appendWindow(window, domain.ConversationTurn{ID: uuid.NewString(), ConversationID: conversationID, Role: "input", Content: text, CreatedAt: now})
		if !outcome.Silent {
			fmt.Printf("mneme> %s\n", outcome.FinalText)
			window = appendWindow(window, domain.ConversationTurn{ID: uuid.NewString(), ConversationID: conversationID, Role: "organism", Content: outcome.FinalText, CreatedAt: time.Now().UTC()})
		} else {
			fmt.Println("mneme> (stays quiet)")
		}
	}
}

// appendWindow keeps the REPL's rolling conversation window the same size
// the Context Assembler is configured to read, so the CLI's local history
// never grows past what a turn would actually use.
func appendWindow(window []domain.ConversationTurn, turn domain.ConversationTurn) []domain.ConversationTurn {
	window = append(window, turn)
	if len(window) > assembler.DefaultConfig.ConversationWindow {
		window = window[len(window)-assembler.DefaultConfig.ConversationWindow:]
	}
	return window
}

func runStatus(ctx context.Context, store *organism.Store, budgets *budget.Tracker) {
	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		fmt.Printf("(status failed: %v)\n", err)
		return
	}
	fmt.Printf("fast:   energy=%.2f stress=%.2f arousal=%.2f valence=%.2f curiosity=%.2f social_need=%.2f\n",
		snapshot.State.Fast.Energy, snapshot.State.Fast.Stress, snapshot.State.Fast.Arousal, snapshot.State.Fast.Valence, snapshot.State.Fast.Curiosity, snapshot.State.Fast.SocialNeed)
	fmt.Printf("medium: mood_bias=%.2f anxiety=%.2f avoidance=%.2f openness=%.2f hunger=%.2f\n",
		snapshot.State.Medium.MoodBias, snapshot.State.Medium.AttachmentAnxiety, snapshot.State.Medium.AttachmentAvoidance, snapshot.State.Medium.Openness, snapshot.State.Medium.Hunger)
	fmt.Printf("slow:   narrative_bias=%.2f rigidity=%.2f plasticity=%.2f energy_target=%.2f\n",
		snapshot.State.Slow.NarrativeBias, snapshot.State.Slow.Rigidity, snapshot.State.Slow.Plasticity, snapshot.State.Slow.EnergyTarget)

	status, err := budgets.Status(ctx)
	if err != nil {
		fmt.Printf("(budget status unavailable: %v)\n", err)
		return
	}
	fmt.Printf("budget: daily=%d/%d monthly=%d/%d downgrade_recommended=%v exhausted=%v\n",
		status.DailyUsed, status.DailyLimit, status.MonthlyUsed, status.MonthlyLimit, status.DowngradeRecommended, status.Exhausted)
}

func runSleep(ctx context.Context, consolidator *consolidation.Consolidator) {
	fmt.Println("running consolidation over the last 24h...")
	report, err := consolidator.Run(ctx, time.Now().UTC().Add(-24*time.Hour), nil)
	if err != nil {
		fmt.Printf("(sleep failed: %v)\n", err)
		return
	}
	fmt.Printf("consolidation done: %+v\n", report)
}

// runSync advances Dynamics by the wall-clock time elapsed since the last
// sync or REPL start (mnemectl has no clock.Dispatcher of its own, unlike
// organismd, so this is the operator's manual equivalent of a heartbeat
// tick) and runs one trigger evaluation pass against the result.
func runSync(ctx context.Context, store *organism.Store, engine *dynamics.Engine, traits domain.Big5, triggerEvaluator *triggers.Evaluator, lastSync time.Time) time.Time {
	now := time.Now().UTC()
	dt := now.Sub(lastSync)

	snapshot, err := store.Mutate(ctx, func(state domain.OrganismState) (domain.OrganismState, error) {
		return engine.Step(state, nil, traits, dt), nil
	})
	if err != nil {
		fmt.Printf("(sync failed: %v)\n", err)
		return lastSync
	}
	fmt.Printf("advanced dynamics by %s\n", dt.Round(time.Second))

	candidate, err := triggerEvaluator.Evaluate(ctx, triggers.Input{State: snapshot.State, LastInteractionAt: lastSync})
	if err != nil {
		fmt.Printf("(trigger evaluation failed: %v)\n", err)
		return now
	}
	if candidate != nil {
		fmt.Printf("trigger candidate: %s (score=%.2f) %s\n", candidate.Kind, candidate.Score, candidate.Reason)
	}
	return now
}

// runQuestionnaire asks each inventory item on a 1-5 scale, normalises
// per-trait/value totals into a 0-100 score, and persists every row.
func runQuestionnaire(ctx context.Context, reader *bufio.Reader, traitStore *organism.TraitStore) ([]domain.TraitRow, error) {
	type key struct {
		category domain.TraitCategory
		trait    string
	}
	totals := make(map[key]int)
	counts := make(map[key]int)

	for i, q := range questions {
		for {
			fmt.Printf("[%d/%d] %s\n", i+1, len(questions), q.Text)
			fmt.Print("Answer 1 (strongly disagree) to 5 (strongly agree): ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return nil, err
			}
			val, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil || val < 1 || val > 5 {
				fmt.Println("invalid input, enter a number from 1 to 5.")
				continue
			}
			score := val
			if q.IsInverse {
				score = 6 - val
			}
			k := key{q.Category, q.Trait}
			totals[k] += score
			counts[k]++
			break
		}
	}

	var rows []domain.TraitRow
	fmt.Println("Calibrated profile:")
	for k, sum := range totals {
		count := counts[k]
		normalized := int(math.Round((float64(sum) / (float64(count) * 5.0)) * 100.0))
		fmt.Printf("- %s/%s: %d%% (%s)\n", k.category, titleCase(k.trait), normalized, interpretScore(normalized))

		row := domain.TraitRow{Category: k.category, Trait: k.trait, Value: normalized}
		if err := traitStore.Upsert(ctx, row); err != nil {
			return nil, fmt.Errorf("upserting trait %s/%s: %w", k.category, k.trait, err)
		}
		rows = append(rows, row)
	}
	fmt.Println("profile saved.")
	return rows, nil
}

func printState(traits domain.Big5, rows []domain.TraitRow) {
	fmt.Println("====================================")
	fmt.Printf("big5: openness=%d conscientiousness=%d extraversion=%d agreeableness=%d neuroticism=%d (resilience=%.2f)\n",
		traits.Openness, traits.Conscientiousness, traits.Extraversion, traits.Agreeableness, traits.Neuroticism, traits.Resilience())
	if len(rows) == 0 {
		fmt.Println("(no trait rows persisted yet)")
	}
	fmt.Println("====================================")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}

func interpretScore(score int) string {
	switch {
	case score < 40:
		return "low"
	case score < 60:
		return "moderate"
	default:
		return "high"
	}
}
