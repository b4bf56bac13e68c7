// Package matcher implements the Matching Engine (C6): a three-phase
// pipeline that narrows every validated grant down to the researchers it
// fits, scores with an LLM, and publishes matches over threshold
// (spec §4.4).
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/entitystore"
	"github.com/grantradar/grantradar/pkg/llm"
	"github.com/grantradar/grantradar/pkg/models"
)

// Engine consumes grants:validated and publishes matches:computed.
type Engine struct {
	store  *entitystore.Store
	bus    bus.Bus
	router *llm.Router
	cfg    config.MatchingConfig
	log    *slog.Logger
}

// New builds a matching Engine. cfg supplies the phase-1 vector threshold,
// the phase-2 rerank limit/batch size, and the phase-3 publish threshold.
func New(store *entitystore.Store, b bus.Bus, router *llm.Router, cfg config.MatchingConfig) *Engine {
	return &Engine{
		store:  store,
		bus:    b,
		router: router,
		cfg:    cfg,
		log:    slog.With("component", "matcher.engine"),
	}
}

// Handle is a bus.Handler: decode one grants:validated message, run the
// three-phase algorithm against every candidate profile, and publish any
// match clearing FinalMatchThreshold.
func (e *Engine) Handle(ctx context.Context, msg bus.Message) error {
	var env models.ValidatedEnvelope
	if err := bus.DecodeEnvelope(msg.Payload, &env); err != nil {
		return &bus.FatalError{Type: "decode_error", Err: err}
	}

	grant, err := e.store.Grants.GetByID(ctx, env.GrantID)
	if err != nil {
		if errors.Is(err, entitystore.ErrNotFound) {
			return &bus.FatalError{Type: "grant_not_found", Err: err}
		}
		return fmt.Errorf("load grant %s: %w", env.GrantID, err)
	}

	if !grant.EmbeddingGenerated() {
		e.log.Warn("skipping match computation for grant without embedding", "grant_id", grant.GrantID)
		return nil
	}

	candidates, err := e.store.Profiles.TopCandidates(ctx, grant.Embedding, e.cfg.VectorThreshold, e.cfg.TopCandidates)
	if err != nil {
		return fmt.Errorf("phase-1 candidate search for grant %s: %w", grant.GrantID, err)
	}
	if len(candidates) == 0 {
		return nil
	}

	if len(candidates) > e.cfg.LLMRerankLimit {
		candidates = candidates[:e.cfg.LLMRerankLimit]
	}

	judgments := e.rerank(ctx, *grant, candidates)

	now := time.Now().UTC()
	for _, c := range candidates {
		judgment, ok := judgments[c.Profile.UserID]
		if !ok {
			continue
		}

		match := models.Match{
			GrantID:          grant.GrantID,
			UserID:           c.Profile.UserID,
			VectorSimilarity: c.Similarity,
			LLMMatchScore:    judgment.MatchScore,
			KeyStrengths:     judgment.KeyStrengths,
			Concerns:         judgment.Concerns,
			Reasoning:        judgment.Reasoning,
			PredictedSuccess: judgment.PredictedSuccess,
			CreatedAt:        now,
		}

		matchID, err := e.store.Matches.Upsert(ctx, match)
		if err != nil {
			return fmt.Errorf("upsert match for grant %s user %s: %w", grant.GrantID, c.Profile.UserID, err)
		}

		final := match.FinalScore()
		if models.RoundScore(final) <= int(e.cfg.FinalMatchThreshold) {
			continue
		}

		if err := e.publish(ctx, matchID, match, final, grant.Deadline); err != nil {
			return fmt.Errorf("publish match %s: %w", matchID, err)
		}
	}

	return nil
}

// rerank runs phase 2: the LLMRerankLimit-bounded candidate set is scored
// in LLMBatchSize-sized batches, each batch a single LLM call.
func (e *Engine) rerank(ctx context.Context, g models.ValidatedGrant, candidates []entitystore.Candidate) map[string]rerankItem {
	out := make(map[string]rerankItem, len(candidates))

	for start := 0; start < len(candidates); start += e.cfg.LLMBatchSize {
		end := start + e.cfg.LLMBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		items, err := e.rerankBatch(ctx, g, batch)
		if err != nil {
			e.log.Warn("rerank batch failed, falling back to vector similarity only", "grant_id", g.GrantID, "error", err)
			for _, c := range batch {
				out[c.Profile.UserID] = rerankItem{
					UserID:     c.Profile.UserID,
					MatchScore: c.Similarity * 100,
					Reasoning:  "llm rerank unavailable, scored from vector similarity alone",
				}
			}
			continue
		}
		for _, item := range items {
			out[item.UserID] = item
		}
	}
	return out
}

func (e *Engine) rerankBatch(ctx context.Context, g models.ValidatedGrant, batch []entitystore.Candidate) ([]rerankItem, error) {
	if e.router == nil {
		var items []rerankItem
		for _, c := range batch {
			items = append(items, rerankItem{UserID: c.Profile.UserID, MatchScore: c.Similarity * 100})
		}
		return items, nil
	}

	text, err := e.router.Complete(ctx, rerankPrompt(g, batch), 800)
	if err != nil {
		return nil, err
	}
	resp, err := llm.ParseJSON[rerankResponse](text)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (e *Engine) publish(ctx context.Context, matchID string, m models.Match, finalScore float64, deadline *time.Time) error {
	priority := derivePriority(finalScore, time.Now().UTC(), deadline)

	env := models.ComputedEnvelope{
		EventID:          matchID,
		MatchID:          matchID,
		GrantID:          m.GrantID,
		UserID:           m.UserID,
		MatchScore:       finalScore / 100,
		PriorityLevel:    priority,
		MatchingCriteria: m.KeyStrengths,
		Explanation:      m.Reasoning,
		GrantDeadline:    deadline,
	}
	payload, err := bus.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode computed envelope: %w", err)
	}
	if _, err := e.bus.Publish(ctx, models.StreamComputed, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", models.StreamComputed, err)
	}
	return nil
}
