package alerter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	goslack "github.com/slack-go/slack"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/delivery/slackchannel"
	"github.com/grantradar/grantradar/pkg/llm"
	"github.com/grantradar/grantradar/pkg/models"
)

// digestItem is the JSON shape pushed to digest:pending:<user>:<date>.
type digestItem struct {
	MatchID    string               `json:"match_id"`
	GrantID    string               `json:"grant_id"`
	Title      string               `json:"title"`
	URL        string               `json:"url"`
	MatchScore float64              `json:"match_score"`
	Priority   models.PriorityLevel `json:"priority"`
}

func encodeDigestItem(item digestItem) (string, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeDigestItem(raw string) (digestItem, error) {
	var item digestItem
	err := json.Unmarshal([]byte(raw), &item)
	return item, err
}

func buildSlackBlocks(grant models.ValidatedGrant, explanation string, scorePct float64) []goslack.Block {
	return slackchannel.BuildMatchMessage(grant.Title, explanation, grant.URL, scorePct)
}

// DigestProcessor composes and sends one user's end-of-day digest email.
// It is invoked by an external scheduled job (spec §4.5 step 8), not by the
// bus — the Alerter's Handle only populates the pending list.
type DigestProcessor struct {
	state  *bus.State
	email  EmailSender
	router *llm.Router
	cfg    digestConfig
	log    *slog.Logger
}

type digestConfig struct {
	MaxItems int
}

// NewDigestProcessor builds a DigestProcessor.
func NewDigestProcessor(state *bus.State, email EmailSender, router *llm.Router, maxItems int) *DigestProcessor {
	return &DigestProcessor{
		state:  state,
		email:  email,
		router: router,
		cfg:    digestConfig{MaxItems: maxItems},
		log:    slog.With("component", "digest_processor"),
	}
}

// Send composes and dispatches userID's digest for date ("2006-01-02"), then
// clears the pending list on success. No-op if nothing is pending.
func (d *DigestProcessor) Send(ctx context.Context, userID, userEmail, date string) error {
	raw, err := d.state.DigestPending(ctx, userID, date)
	if err != nil {
		return fmt.Errorf("load digest pending for user %s: %w", userID, err)
	}
	if len(raw) == 0 {
		return nil
	}

	items := make([]digestItem, 0, len(raw))
	for _, r := range raw {
		item, err := decodeDigestItem(r)
		if err != nil {
			d.log.Warn("dropping malformed digest item", "user_id", userID, "error", err)
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].MatchScore > items[j].MatchScore })
	if len(items) > d.cfg.MaxItems {
		items = items[:d.cfg.MaxItems]
	}

	subject, body := d.compose(ctx, items)
	if _, err := d.email.Send(ctx, userEmail, subject, body, "digest:"+userID+":"+date); err != nil {
		return fmt.Errorf("send digest email for user %s: %w", userID, err)
	}

	if err := d.state.ClearDigestPending(ctx, userID, date); err != nil {
		return fmt.Errorf("clear digest pending for user %s: %w", userID, err)
	}
	return nil
}

func (d *DigestProcessor) compose(ctx context.Context, items []digestItem) (string, string) {
	intro := fallbackDigestIntro
	if d.router != nil {
		if text, err := d.router.Complete(ctx, digestIntroPrompt(len(items)), 100); err == nil {
			if parsed, err := llm.ParseJSON[digestIntro](text); err == nil && parsed.Intro != "" {
				intro = parsed.Intro
			}
		}
	}

	subject := fmt.Sprintf("Your GrantRadar digest: %d new matches", len(items))
	body := intro + "\n\n"
	for _, item := range items {
		body += fmt.Sprintf("- %s (%.0f%% match): %s\n", item.Title, item.MatchScore, item.URL)
	}
	return subject, body
}
