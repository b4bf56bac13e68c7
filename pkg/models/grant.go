// Package models holds the domain types shared by every GrantRadar agent.
// Entities here are the authoritative shapes stored in the entity store;
// stream envelopes (pkg/bus) carry only small summaries of them.
package models

import "time"

// DiscoveredGrant is the normalized record a Discovery agent produces.
// Identity is (Source, ExternalID); once published it is immutable.
type DiscoveredGrant struct {
	Source         string
	ExternalID     string
	Title          string
	Description    string
	URL            string
	FundingAgency  string
	AmountMin      *float64
	AmountMax      *float64
	Deadline       *time.Time
	Eligibility    string
	RawData        map[string]any
	DiscoveredAt   time.Time
	PostedAt       *time.Time // falls back to DiscoveredAt when the source has no posting date
}

// EffectivePostedAt returns PostedAt if known, else DiscoveredAt.
func (g DiscoveredGrant) EffectivePostedAt() time.Time {
	if g.PostedAt != nil {
		return *g.PostedAt
	}
	return g.DiscoveredAt
}

// CategorySet is the fixed categorical vocabulary curation must restrict to.
var CategorySet = []string{
	"Biomedical",
	"Computer Science",
	"Physical Sciences",
	"Social Sciences",
	"Environmental Science",
	"Engineering",
	"Education",
	"Arts & Humanities",
	"Public Health",
	"Agriculture",
	"Other",
}

// IsValidCategory reports whether cat is a member of CategorySet.
func IsValidCategory(cat string) bool {
	for _, c := range CategorySet {
		if c == cat {
			return true
		}
	}
	return false
}

// ValidatedGrant is DiscoveredGrant enriched by Curation. Never mutated by
// later stages except for the dedup-merge that happens before publication.
type ValidatedGrant struct {
	DiscoveredGrant

	GrantID             string
	QualityScore        float64 // [0,100]
	Categories          []string
	Embedding           []float32 // dim 1536, nil if generation failed
	ConfidenceScore     float64   // [0,1]
	ValidatedAt         time.Time
	Keywords            []string
	EligibilityCriteria []string
}

// EmbeddingGenerated reports whether a non-empty embedding was produced.
func (v ValidatedGrant) EmbeddingGenerated() bool {
	return len(v.Embedding) > 0
}
