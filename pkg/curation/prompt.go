package curation

import (
	"fmt"
	"strings"
	"time"

	"github.com/grantradar/grantradar/pkg/models"
)

type qualityResult struct {
	IsValid      bool     `json:"is_valid"`
	QualityScore float64  `json:"quality_score"`
	Issues       []string `json:"issues"`
}

func qualityPrompt(g models.DiscoveredGrant) string {
	return fmt.Sprintf(`Assess the quality of this grant listing for a research-grant intelligence feed.
Return JSON: {"is_valid": bool, "quality_score": number in [0,100], "issues": [string]}.

Title: %s
Description: %s
Funding agency: %s
Deadline: %s
`, g.Title, g.Description, g.FundingAgency, deadlineString(g.Deadline))
}

// fallbackQualityScore implements spec §4.3 step 1's rubric fallback, used
// when the LLM call fails: start at 100, subtract fixed penalties.
func fallbackQualityScore(g models.DiscoveredGrant) (float64, []string) {
	score := 100.0
	var issues []string

	if strings.TrimSpace(g.Title) == "" {
		score -= 30
		issues = append(issues, "missing_title")
	}
	if strings.TrimSpace(g.Description) == "" {
		score -= 20
		issues = append(issues, "missing_description")
	}
	if g.Deadline == nil {
		score -= 20
		issues = append(issues, "missing_deadline")
	} else if g.Deadline.Before(g.DiscoveredAt) {
		score -= 50
		issues = append(issues, "expired_deadline")
	}

	if score < 0 {
		score = 0
	}
	return score, issues
}

func deadlineString(d *time.Time) string {
	if d == nil {
		return "unknown"
	}
	return d.Format("2006-01-02")
}

type categorizationResult struct {
	Categories []string `json:"categories"`
}

func categorizationPrompt(g models.DiscoveredGrant) string {
	return fmt.Sprintf(`Assign up to 5 categories to this grant from EXACTLY this vocabulary: %s.
Return JSON: {"categories": [string]}. Use only the listed category names.

Title: %s
Description: %s
`, strings.Join(models.CategorySet, ", "), g.Title, g.Description)
}

// sanitizeCategories filters an LLM's category response down to valid
// members of models.CategorySet, capped at 5, falling back to ["Other"]
// when nothing survives (spec §4.3 step 3).
func sanitizeCategories(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range raw {
		if !models.IsValidCategory(c) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == 5 {
			break
		}
	}
	if len(out) == 0 {
		return []string{"Other"}
	}
	return out
}

type duplicateConfirmation struct {
	SameGrant bool `json:"same_grant"`
}

func duplicateConfirmationPrompt(a, b models.DiscoveredGrant) string {
	return fmt.Sprintf(`Are these two grant listings describing the same underlying funding opportunity?
Return JSON: {"same_grant": bool}.

Listing A — source: %s, title: %s, description: %s
Listing B — source: %s, title: %s, description: %s
`, a.Source, a.Title, a.Description, b.Source, b.Title, b.Description)
}
