package alerter

import (
	"fmt"
	"time"

	"github.com/grantradar/grantradar/pkg/delivery/smschannel"
	"github.com/grantradar/grantradar/pkg/models"
)

type emailContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// emailPrompt asks the LLM to author a subject/body pair for a match
// notification (spec §4.5 step 6, "LLM-authored subject and body").
func emailPrompt(g models.ValidatedGrant, explanation string, matchScorePct float64) string {
	return fmt.Sprintf(`Write a short, professional grant-match notification email.
Return JSON: {"subject": string, "body": string}.

Grant: %s
Match score: %.0f%%
Why it matches: %s
Deadline: %s
`, g.Title, matchScorePct, explanation, deadlineString(g.Deadline))
}

func deadlineString(d *time.Time) string {
	if d == nil {
		return "unknown"
	}
	return d.Format("2006-01-02")
}

// fallbackEmailContent is used when the LLM call fails: a fixed template
// rather than leaving the user with no notification at all.
func fallbackEmailContent(g models.ValidatedGrant, matchScorePct float64) emailContent {
	return emailContent{
		Subject: fmt.Sprintf("New grant match: %s (%.0f%%)", g.Title, matchScorePct),
		Body:    fmt.Sprintf("A new grant opportunity matches your research profile.\n\nGrant: %s\nMatch score: %.0f%%\n\nView details: %s", g.Title, matchScorePct, g.URL),
	}
}

// smsBody builds the SMS template: title truncated to ≤50 chars, whole
// message ≤160 chars (spec §4.5 "Content rules").
func smsBody(g models.ValidatedGrant, matchScorePct float64) string {
	title := smschannel.TruncateTitle(g.Title)
	return fmt.Sprintf("GrantRadar: %s - %.0f%% match. %s", title, matchScorePct, g.URL)
}

type digestIntro struct {
	Intro string `json:"intro"`
}

func digestIntroPrompt(itemCount int) string {
	return fmt.Sprintf(`Write one friendly sentence introducing a daily digest email listing %d new grant matches.
Return JSON: {"intro": string}.`, itemCount)
}

const fallbackDigestIntro = "Here are your latest grant matches."
