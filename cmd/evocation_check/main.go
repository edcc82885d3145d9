// Command evocation_check is a scripted harness over the Memory Substrate's
// recall pipeline: it seeds a target episode plus distractor episodes, asks
// a query, and checks whether Memory.Recall surfaces the target and leaves
// forbidden distractors out.
//
// Adapted from the teacher's cmd/evocation_check (a scenario/judge harness
// over CloneService.Chat): the scenario-table-plus-pass/fail-report shape is
// kept, but the target shifted from "does the clone mention X in its reply"
// to "does Memory.Recall rank episode X above its strength/similarity
// floor" — exercising internal/memory directly instead of round-tripping
// through the LLM, since recall ranking is deterministic and the harness
// should not depend on a live model to be useful.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mneme/internal/config"
	"mneme/internal/db"
	"mneme/internal/domain"
	"mneme/internal/llm"
	"mneme/internal/memory"
)

// scenario seeds one target episode and zero or more distractors, then
// checks whether Recall(query) surfaces the target and omits every
// forbidden distractor.
type scenario struct {
	Name        string
	TargetBody  string
	Valence     float64
	Query       string
	Distractors []string
	Forbidden   []string // distractor bodies that must not appear in the result
}

var scenarios = []scenario{
	{
		Name:        "direct topical match",
		TargetBody:  "We talked for an hour about the hiking trip to the ridge above the lake.",
		Valence:     0.6,
		Query:       "Do you remember the hike we talked about?",
		Distractors: []string{"I fixed a leaking faucet in the kitchen this morning.", "The quarterly report is due on Friday."},
		Forbidden:   []string{"I fixed a leaking faucet in the kitchen this morning."},
	},
	{
		Name:        "emotionally salient but topically distant",
		TargetBody:  "I told you I was scared about the diagnosis, and you stayed on the phone with me for two hours.",
		Valence:     -0.7,
		Query:       "I've been anxious again lately, like before.",
		Distractors: []string{"We debated which restaurant has better noodles."},
		Forbidden:   []string{"We debated which restaurant has better noodles."},
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

	llmClient := llm.NewHTTPClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel, llm.WithLogger(logger))

	episodes := memory.NewPgEpisodicRepository(pool)
	index := memory.NewVectorIndex(episodes, cfg.Memory.VectorBackend, 5000)
	mem := memory.NewMemory(episodes, memory.NewPgSemanticRepository(pool), memory.NewPgSocialRepository(pool), memory.NewPgSelfKnowledgeRepository(pool), memory.NewPgNarrativeRepository(pool), index, cfg.Memory.StrengthFloor, cfg.Memory.RecallK)

	failures := 0
	for _, sc := range scenarios {
		fmt.Printf("== %s ==\n", sc.Name)
		if err := seedEpisode(ctx, episodes, llmClient, sc.TargetBody, sc.Valence); err != nil {
			logger.Fatal("seeding target episode", zap.Error(err))
		}
		for _, distractor := range sc.Distractors {
			if err := seedEpisode(ctx, episodes, llmClient, distractor, 0); err != nil {
				logger.Fatal("seeding distractor episode", zap.Error(err))
			}
		}

		queryEmbedding, err := llmClient.Embed(ctx, sc.Query)
		if err != nil {
			logger.Fatal("embedding query", zap.Error(err))
		}
		result, err := mem.Recall(ctx, queryEmbedding, 0, "", "")
		if err != nil {
			logger.Fatal("recall", zap.Error(err))
		}

		surfaced := make(map[string]bool, len(result.Episodes))
		for _, se := range result.Episodes {
			surfaced[se.Episode.Body] = true
		}

		ok := surfaced[sc.TargetBody]
		if !ok {
			fmt.Printf("FAIL: target episode not recalled\n")
			failures++
		}
		for _, forbidden := range sc.Forbidden {
			if surfaced[forbidden] {
				fmt.Printf("FAIL: forbidden distractor recalled: %q\n", forbidden)
				failures++
				ok = false
			}
		}
		if ok {
			fmt.Println("PASS")
		}
	}

	if failures > 0 {
		fmt.Printf("%d check(s) failed\n", failures)
		os.Exit(1)
	}
	fmt.Println("all evocation checks passed")
}

func seedEpisode(ctx context.Context, episodes memory.EpisodicRepository, llmClient llm.Client, body string, valence float64) error {
	embedding, err := llmClient.Embed(ctx, body)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return episodes.Insert(ctx, domain.Episode{
		ID:        uuid.NewString(),
		SourceTag: "evocation_check",
		AuthorRef: "operator",
		Body:      body,
		Modality:  "text",
		Timestamp: now,
		Embedding: embedding,
		Strength:  1.0,
		Valence:   valence,
		CreatedAt: now,
	})
}
