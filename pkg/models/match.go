package models

import (
	"math"
	"time"
)

// PriorityLevel is the normalized urgency derived from match score and
// deadline. Matcher and Alerter compute it independently with their own
// thresholds (spec's own resolution of the open question) — never unify
// the two call sites.
type PriorityLevel string

const (
	PriorityCritical PriorityLevel = "critical"
	PriorityHigh     PriorityLevel = "high"
	PriorityMedium   PriorityLevel = "medium"
	PriorityLow      PriorityLevel = "low"
)

// Match is the persisted result of the two-phase matching algorithm.
// Unique per (GrantID, UserID); repeated computation upserts.
type Match struct {
	MatchID           string
	GrantID           string
	UserID            string
	VectorSimilarity  float64 // [0,1]
	LLMMatchScore     float64 // [0,100]
	KeyStrengths      []string
	Concerns          []string
	Reasoning         string
	PredictedSuccess  float64 // [0,100]
	CreatedAt         time.Time
}

// FinalScore computes 0.4·(100·vector_similarity) + 0.6·llm_match_score.
func (m Match) FinalScore() float64 {
	return FinalScore(m.VectorSimilarity, m.LLMMatchScore)
}

// FinalScore is the scoring law shared by Matcher and its tests.
func FinalScore(vectorSimilarity, llmMatchScore float64) float64 {
	return 0.4*(100*vectorSimilarity) + 0.6*llmMatchScore
}

// RoundScore applies round-half-away-from-zero, the rounding rule this
// implementation commits to for the final_score boundary behavior.
func RoundScore(score float64) int {
	return int(math.Round(score))
}

// DaysToDeadline returns the whole number of days from now until deadline.
// A nil deadline is treated as "far away" (math.MaxInt32) so priority rules
// that gate on a short deadline never fire without one.
func DaysToDeadline(now time.Time, deadline *time.Time) int {
	if deadline == nil {
		return math.MaxInt32
	}
	d := deadline.Sub(now)
	return int(math.Ceil(d.Hours() / 24))
}
