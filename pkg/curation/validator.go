// Package curation implements the Curation/Validator agent (C5): quality
// scoring, categorization, embedding generation, and cross-source
// deduplication for every grant a Discovery agent publishes (spec §4.3).
package curation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/embedding"
	"github.com/grantradar/grantradar/pkg/entitystore"
	"github.com/grantradar/grantradar/pkg/llm"
	"github.com/grantradar/grantradar/pkg/models"
)

// Validator consumes grants:discovered and publishes grants:validated,
// implementing every step of spec §4.3's pipeline.
type Validator struct {
	store    *entitystore.Store
	bus      bus.Bus
	state    *bus.State
	router   *llm.Router
	embedder embedding.Client
	cfg      config.CurationConfig
	log      *slog.Logger
}

// New builds a Validator. cfg supplies the quality threshold, the recent-
// validated pool size, the Levenshtein cutoff, and the embedding input
// truncation length.
func New(store *entitystore.Store, b bus.Bus, state *bus.State, router *llm.Router, embedder embedding.Client, cfg config.CurationConfig) *Validator {
	return &Validator{
		store:    store,
		bus:      b,
		state:    state,
		router:   router,
		embedder: embedder,
		cfg:      cfg,
		log:      slog.With("component", "curation.validator"),
	}
}

// Handle is a bus.Handler: decode one grants:discovered message and run it
// through quality scoring, categorization, embedding, and dedup before
// publishing to grants:validated.
func (v *Validator) Handle(ctx context.Context, msg bus.Message) error {
	var env models.DiscoveredEnvelope
	if err := bus.DecodeEnvelope(msg.Payload, &env); err != nil {
		return &bus.FatalError{Type: "decode_error", Err: err}
	}

	g := models.DiscoveredGrant{
		Source:        env.Source,
		ExternalID:    env.ExternalID,
		Title:         env.Title,
		Description:   env.Description,
		URL:           env.URL,
		FundingAgency: env.FundingAgency,
		AmountMax:     env.EstimatedAmount,
		Deadline:      env.Deadline,
		DiscoveredAt:  env.DiscoveredAt,
		RawData:       env.RawData,
	}

	skipped, err := v.process(ctx, g)
	if err != nil {
		return err
	}
	if skipped {
		return nil
	}
	return nil
}

// process runs the full spec §4.3 pipeline for one grant. The returned bool
// reports whether the grant was routed to manual review or discarded as a
// duplicate (both ack, neither publish).
func (v *Validator) process(ctx context.Context, g models.DiscoveredGrant) (bool, error) {
	score, issues := v.scoreQuality(ctx, g)

	if score < v.cfg.QualityThreshold {
		_, err := v.store.ManualReview.Insert(ctx, models.ManualReviewItem{
			GrantID:      "",
			Reason:       "quality_below_threshold",
			QualityScore: score,
			Issues:       issues,
			GrantSnap:    grantSnapshot(g),
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			return false, fmt.Errorf("insert manual review for %s/%s: %w", g.Source, g.ExternalID, err)
		}
		v.log.Info("routed to manual review", "source", g.Source, "external_id", g.ExternalID, "quality_score", score)
		return true, nil
	}

	categories := v.categorize(ctx, g)

	vec, err := v.embedder.Embed(ctx, []string{llm.Truncate(g.Title+" "+g.Description, v.cfg.EmbeddingInputMaxChars)})
	if err != nil {
		v.log.Warn("embedding generation failed, publishing without vector", "source", g.Source, "external_id", g.ExternalID, "error", err)
	}
	var embedVec []float32
	if len(vec) > 0 {
		embedVec = vec[0]
	}

	validated := models.ValidatedGrant{
		DiscoveredGrant: g,
		QualityScore:    score,
		Categories:      categories,
		Embedding:       embedVec,
		ConfidenceScore: 1.0,
		ValidatedAt:     time.Now().UTC(),
	}

	dup, err := v.findDuplicate(ctx, g)
	if err != nil {
		return false, fmt.Errorf("dedup lookup for %s/%s: %w", g.Source, g.ExternalID, err)
	}
	if dup != nil {
		merged := mergeGrants(*dup, validated)
		if _, err := v.store.Grants.UpsertValidated(ctx, merged); err != nil {
			return false, fmt.Errorf("upsert merged duplicate %s: %w", merged.GrantID, err)
		}
		v.log.Info("merged duplicate grant", "grant_id", merged.GrantID, "source", g.Source, "external_id", g.ExternalID)
		return true, nil
	}

	grantID, err := v.store.Grants.UpsertValidated(ctx, validated)
	if err != nil {
		return false, fmt.Errorf("upsert validated grant %s/%s: %w", g.Source, g.ExternalID, err)
	}
	validated.GrantID = grantID

	if err := v.publish(ctx, validated); err != nil {
		return false, fmt.Errorf("publish validated grant %s: %w", grantID, err)
	}

	summary, err := json.Marshal(dedupSummary{Source: g.Source, ExternalID: g.ExternalID, Title: g.Title, GrantID: grantID})
	if err != nil {
		return false, fmt.Errorf("marshal dedup summary for %s: %w", grantID, err)
	}
	if err := v.state.PushValidatedRecent(ctx, string(summary)); err != nil {
		v.log.Warn("failed to push recent-validated entry", "grant_id", grantID, "error", err)
	}

	return false, nil
}

// scoreQuality runs spec §4.3 step 1: an LLM quality assessment, falling
// back to the deterministic rubric on any LLM failure.
func (v *Validator) scoreQuality(ctx context.Context, g models.DiscoveredGrant) (float64, []string) {
	if v.router == nil {
		return fallbackQualityScore(g)
	}

	text, err := v.router.Complete(ctx, qualityPrompt(g), 300)
	if err != nil {
		v.log.Warn("quality LLM call failed, using fallback rubric", "source", g.Source, "external_id", g.ExternalID, "error", err)
		return fallbackQualityScore(g)
	}

	result, err := llm.ParseJSON[qualityResult](text)
	if err != nil {
		v.log.Warn("quality LLM response unparseable, using fallback rubric", "source", g.Source, "external_id", g.ExternalID, "error", err)
		return fallbackQualityScore(g)
	}
	return result.QualityScore, result.Issues
}

// categorize runs spec §4.3 step 3: an LLM categorization call sanitized
// down to models.CategorySet, falling back to ["Other"] on any failure.
func (v *Validator) categorize(ctx context.Context, g models.DiscoveredGrant) []string {
	if v.router == nil {
		return []string{"Other"}
	}

	text, err := v.router.Complete(ctx, categorizationPrompt(g), 200)
	if err != nil {
		v.log.Warn("categorization LLM call failed, using Other", "source", g.Source, "external_id", g.ExternalID, "error", err)
		return []string{"Other"}
	}

	result, err := llm.ParseJSON[categorizationResult](text)
	if err != nil {
		v.log.Warn("categorization LLM response unparseable, using Other", "source", g.Source, "external_id", g.ExternalID, "error", err)
		return []string{"Other"}
	}
	return sanitizeCategories(result.Categories)
}

// dedupSummary is the JSON shape pushed to the bounded recent-validated
// list; findDuplicate only needs title/source/external_id to screen
// candidates before confirming with the LLM.
type dedupSummary struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	GrantID    string `json:"grant_id"`
}

// findDuplicate implements spec §4.3 step 5: an existing grant with the same
// (source, external_id) short-circuits the LLM; otherwise every
// recent-validated candidate within the Levenshtein cutoff, or sharing the
// external_id from a different source, is confirmed with the LLM before
// being treated as the same grant.
func (v *Validator) findDuplicate(ctx context.Context, g models.DiscoveredGrant) (*models.ValidatedGrant, error) {
	if existing, err := v.store.Grants.GetBySourceExternalID(ctx, g.Source, g.ExternalID); err == nil {
		return existing, nil
	} else if !errors.Is(err, entitystore.ErrNotFound) {
		return nil, err
	}

	recent, err := v.state.RecentValidated(ctx)
	if err != nil {
		return nil, fmt.Errorf("read recent-validated pool: %w", err)
	}

	key := titleDedupKey(g.Title)
	for _, raw := range recent {
		var s dedupSummary
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue
		}
		if s.Source == g.Source && s.ExternalID == g.ExternalID {
			continue
		}
		if s.ExternalID != g.ExternalID && levenshtein(key, titleDedupKey(s.Title)) > v.cfg.DuplicateLevenshtein {
			continue
		}

		candidate, err := v.store.Grants.GetByID(ctx, s.GrantID)
		if err != nil {
			if errors.Is(err, entitystore.ErrNotFound) {
				continue
			}
			return nil, err
		}

		if v.confirmSameGrant(ctx, g, candidate.DiscoveredGrant) {
			return candidate, nil
		}
	}
	return nil, nil
}

// confirmSameGrant asks the LLM to confirm a title-proximity candidate is
// really the same underlying opportunity. A router-less or failing call is
// treated as "not confirmed" rather than blocking publication.
func (v *Validator) confirmSameGrant(ctx context.Context, a, b models.DiscoveredGrant) bool {
	if v.router == nil {
		return false
	}
	text, err := v.router.Complete(ctx, duplicateConfirmationPrompt(a, b), 50)
	if err != nil {
		v.log.Warn("duplicate confirmation LLM call failed, treating as distinct", "error", err)
		return false
	}
	result, err := llm.ParseJSON[duplicateConfirmation](text)
	if err != nil {
		return false
	}
	return result.SameGrant
}

// mergeGrants combines an existing grant with a freshly validated candidate
// confirmed as the same opportunity (spec §4.3 step 5): prefer the longer
// description, union sources is not modeled (grants have a single identity
// source) so this keeps the existing identity, earliest discovery wins, and
// confidence caps at 0.8 to reflect the merge itself being a heuristic.
func mergeGrants(existing models.ValidatedGrant, fresh models.ValidatedGrant) models.ValidatedGrant {
	merged := existing

	if len(fresh.Description) > len(merged.Description) {
		merged.Description = fresh.Description
	}
	if fresh.DiscoveredAt.Before(merged.DiscoveredAt) {
		merged.DiscoveredAt = fresh.DiscoveredAt
	}
	if len(fresh.Categories) > 0 {
		merged.Categories = mergeCategories(merged.Categories, fresh.Categories)
	}
	if len(fresh.Embedding) > 0 && len(merged.Embedding) == 0 {
		merged.Embedding = fresh.Embedding
	}
	if fresh.QualityScore > merged.QualityScore {
		merged.QualityScore = fresh.QualityScore
	}

	merged.ConfidenceScore = min(merged.ConfidenceScore, 0.8)
	merged.ValidatedAt = time.Now().UTC()
	return merged
}

func mergeCategories(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, c := range append(append([]string{}, a...), b...) {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (v *Validator) publish(ctx context.Context, g models.ValidatedGrant) error {
	env := models.ValidatedEnvelope{
		EventID:            g.GrantID,
		Timestamp:          g.ValidatedAt,
		Version:            1,
		GrantID:            g.GrantID,
		QualityScore:       g.QualityScore / 100,
		Categories:         g.Categories,
		EmbeddingGenerated: g.EmbeddingGenerated(),
		ValidationDetails: models.ValidationDetails{
			ConfidenceScore: g.ConfidenceScore,
			ValidatedAt:     g.ValidatedAt,
		},
		EligibilityCriteria: g.EligibilityCriteria,
		Keywords:            g.Keywords,
	}
	payload, err := bus.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode validated envelope: %w", err)
	}
	if _, err := v.bus.Publish(ctx, models.StreamValidated, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", models.StreamValidated, err)
	}
	return nil
}

func grantSnapshot(g models.DiscoveredGrant) map[string]any {
	return map[string]any{
		"source":         g.Source,
		"external_id":    g.ExternalID,
		"title":          g.Title,
		"description":    g.Description,
		"url":            g.URL,
		"funding_agency": g.FundingAgency,
		"deadline":       deadlineString(g.Deadline),
	}
}
