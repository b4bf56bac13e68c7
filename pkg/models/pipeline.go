package models

import "time"

// Stage is a pipeline stage a grant passes through on its way to delivery.
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageValidating Stage = "validating"
	StageValidated  Stage = "validated"
	StageMatching   Stage = "matching"
	StageMatched    Stage = "matched"
	StageAlerting   Stage = "alerting"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// stageOrder gives each non-terminal stage a monotonic rank so transitions
// can be checked for forward progress. Failed has no rank — it is reachable
// from any stage.
var stageOrder = map[Stage]int{
	StageDiscovered: 0,
	StageValidating: 1,
	StageValidated:  2,
	StageMatching:   3,
	StageMatched:    4,
	StageAlerting:   5,
	StageCompleted:  6,
}

// IsForwardTransition reports whether moving from `from` to `to` is
// monotonic. Failed is always allowed as a target.
func IsForwardTransition(from, to Stage) bool {
	if to == StageFailed {
		return true
	}
	fromRank, fromOK := stageOrder[from]
	toRank, toOK := stageOrder[to]
	return fromOK && toOK && toRank > fromRank
}

// PipelineState is the ephemeral per-grant tracking record the Orchestrator
// maintains. TTL: 1h while healthy, 24h once Failed.
type PipelineState struct {
	GrantID         string
	CurrentStage    Stage
	StageTimestamps map[Stage]time.Time
	Latencies       map[Stage]time.Duration
	Priority        PriorityLevel
	RetryCount      int
	Error           string
	StartedAt       time.Time
	StageStartedAt  time.Time
}

// Stage SLO targets, per spec §4.6.1.
const (
	ValidationTarget = 30 * time.Second
	MatchingTarget   = 60 * time.Second
	AlertingTarget   = 30 * time.Second
	TotalTarget      = 120 * time.Second

	StalledThreshold = 300 * time.Second
	MaxRetries       = 3
)

// StageElapsed returns how long the grant has been in CurrentStage as of now.
func (p PipelineState) StageElapsed(now time.Time) time.Duration {
	return now.Sub(p.StageStartedAt)
}

// TotalElapsed returns the total end-to-end time since StartedAt.
func (p PipelineState) TotalElapsed(now time.Time) time.Duration {
	return now.Sub(p.StartedAt)
}

// IsStalled reports whether the pipeline has been in its current stage
// longer than StalledThreshold.
func (p PipelineState) IsStalled(now time.Time) bool {
	return p.CurrentStage != StageCompleted && p.CurrentStage != StageFailed && p.StageElapsed(now) > StalledThreshold
}
