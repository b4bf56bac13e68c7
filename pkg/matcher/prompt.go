package matcher

import (
	"fmt"
	"strings"

	"github.com/grantradar/grantradar/pkg/entitystore"
	"github.com/grantradar/grantradar/pkg/models"
)

// rerankItem is one candidate's LLM judgment within a batch response.
type rerankItem struct {
	UserID           string   `json:"user_id"`
	MatchScore       float64  `json:"match_score"` // [0,100]
	KeyStrengths     []string `json:"key_strengths"`
	Concerns         []string `json:"concerns"`
	Reasoning        string   `json:"reasoning"`
	PredictedSuccess float64  `json:"predicted_success"` // [0,100]
}

type rerankResponse struct {
	Results []rerankItem `json:"results"`
}

// rerankPrompt builds the phase-2 batch prompt (spec §4.4): one grant
// against up to LLMBatchSize candidate profiles, asking the LLM to score
// each independently.
func rerankPrompt(g models.ValidatedGrant, batch []entitystore.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Score how well each candidate researcher matches this grant opportunity.
For each candidate return match_score (0-100), key_strengths, concerns, reasoning, and predicted_success (0-100).
Return JSON: {"results": [{"user_id": string, "match_score": number, "key_strengths": [string], "concerns": [string], "reasoning": string, "predicted_success": number}]}.

Grant: %s
Description: %s
Categories: %s
Eligibility: %s

Candidates:
`, g.Title, g.Description, strings.Join(g.Categories, ", "), g.Eligibility)

	for _, c := range batch {
		fmt.Fprintf(&b, "- user_id: %s, research_areas: %s, methods: %s, past_grants: %s, institution: %s\n",
			c.Profile.UserID,
			strings.Join(c.Profile.ResearchAreas, ", "),
			strings.Join(c.Profile.Methods, ", "),
			strings.Join(c.Profile.PastGrants, ", "),
			c.Profile.Institution,
		)
	}
	return b.String()
}
