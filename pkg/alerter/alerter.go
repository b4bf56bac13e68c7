// Package alerter implements the Alerter agent (C7): consumes
// matches:computed, derives priority and channel routing, composes and
// dispatches channel content with per-channel retry, and persists delivery
// state (spec §4.5).
package alerter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/entitystore"
	"github.com/grantradar/grantradar/pkg/llm"
	"github.com/grantradar/grantradar/pkg/models"
)

// EmailSender dispatches a single email and returns the provider's message
// id.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body, trackingID string) (string, error)
}

// SMSSender dispatches a single SMS and returns the provider's message SID.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, body string) (string, error)
}

// SlackSender posts Block Kit blocks to a webhook URL.
type SlackSender interface {
	Send(ctx context.Context, webhookURL string, blocks []goslack.Block) error
}

// Alerter consumes matches:computed and routes each match to immediate
// channel delivery or a per-user digest queue.
type Alerter struct {
	store  *entitystore.Store
	state  *bus.State
	router *llm.Router
	email  EmailSender
	sms    SMSSender
	slack  SlackSender
	cfg    config.AlertingConfig
	log    *slog.Logger
}

// New builds an Alerter.
func New(store *entitystore.Store, state *bus.State, router *llm.Router, email EmailSender, sms SMSSender, slack SlackSender, cfg config.AlertingConfig) *Alerter {
	return &Alerter{
		store:  store,
		state:  state,
		router: router,
		email:  email,
		sms:    sms,
		slack:  slack,
		cfg:    cfg,
		log:    slog.With("component", "alerter"),
	}
}

// Handle is a bus.Handler: decode one matches:computed message and route it
// through spec §4.5's eight-step pipeline.
func (a *Alerter) Handle(ctx context.Context, msg bus.Message) error {
	var env models.ComputedEnvelope
	if err := bus.DecodeEnvelope(msg.Payload, &env); err != nil {
		return &bus.FatalError{Type: "decode_error", Err: err}
	}

	profile, err := a.store.Profiles.GetByID(ctx, env.UserID)
	if err != nil {
		if errors.Is(err, entitystore.ErrNotFound) {
			a.log.Info("dropping match for unknown user", "user_id", env.UserID, "match_id", env.MatchID)
			return nil
		}
		return fmt.Errorf("load profile %s: %w", env.UserID, err)
	}

	grant, err := a.store.Grants.GetByID(ctx, env.GrantID)
	if err != nil {
		if errors.Is(err, entitystore.ErrNotFound) {
			a.log.Info("dropping match for unknown grant", "grant_id", env.GrantID, "match_id", env.MatchID)
			return nil
		}
		return fmt.Errorf("load grant %s: %w", env.GrantID, err)
	}

	scorePct := env.MatchScore * 100
	if scorePct < profile.Preferences.MinimumMatchScore {
		return nil
	}

	now := time.Now().UTC()
	priority := DerivePriority(scorePct, now, grant.Deadline)
	if priority == models.PriorityLow {
		return nil
	}

	channels := enabledChannels(priority, profile.Preferences.EnabledChannels)
	if len(channels) == 0 {
		return nil
	}

	digest, err := a.shouldDigest(ctx, *profile, priority, now)
	if err != nil {
		return fmt.Errorf("check digest routing for user %s: %w", profile.UserID, err)
	}

	if digest {
		return a.enqueueDigest(ctx, *profile, *grant, env, priority, scorePct, now)
	}

	return a.sendImmediate(ctx, *profile, *grant, env, channels, scorePct)
}

// shouldDigest implements spec §4.5 step 5's routing rule: CRITICAL always
// sends immediately; daily/weekly users always digest everything else;
// immediate-mode users additionally digest MEDIUM once the day's count of
// MEDIUM matches exceeds MediumDigestBacklog.
func (a *Alerter) shouldDigest(ctx context.Context, profile models.UserProfile, priority models.PriorityLevel, now time.Time) (bool, error) {
	if priority == models.PriorityCritical {
		return false, nil
	}
	if profile.Preferences.DigestFrequency != models.DigestImmediate {
		return true, nil
	}
	if priority != models.PriorityMedium {
		return false, nil
	}

	count, err := a.state.IncrMediumAlertCount(ctx, profile.UserID, dateKey(now))
	if err != nil {
		return false, err
	}
	return count > int64(a.cfg.MediumDigestBacklog), nil
}

func (a *Alerter) enqueueDigest(ctx context.Context, profile models.UserProfile, grant models.ValidatedGrant, env models.ComputedEnvelope, priority models.PriorityLevel, scorePct float64, now time.Time) error {
	item := digestItem{
		MatchID:    env.MatchID,
		GrantID:    env.GrantID,
		Title:      grant.Title,
		URL:        grant.URL,
		MatchScore: scorePct,
		Priority:   priority,
	}
	payload, err := encodeDigestItem(item)
	if err != nil {
		return fmt.Errorf("encode digest item for match %s: %w", env.MatchID, err)
	}

	expiresAt := endOfDay(now).Add(time.Hour)
	if err := a.state.PushDigestPending(ctx, profile.UserID, dateKey(now), payload, expiresAt); err != nil {
		return fmt.Errorf("push digest item for match %s: %w", env.MatchID, err)
	}
	return nil
}

func (a *Alerter) sendImmediate(ctx context.Context, profile models.UserProfile, grant models.ValidatedGrant, env models.ComputedEnvelope, channels []models.Channel, scorePct float64) error {
	for _, channel := range channels {
		if err := a.sendChannel(ctx, profile, grant, env, channel, scorePct); err != nil {
			a.log.Error("channel send failed", "match_id", env.MatchID, "channel", channel, "error", err)
		}
	}
	return nil
}

// sendChannel dispatches one channel, checking the (match_id, channel)
// idempotency key first and always persisting an AlertDelivery row
// regardless of outcome (spec §4.5's idempotency paragraph).
func (a *Alerter) sendChannel(ctx context.Context, profile models.UserProfile, grant models.ValidatedGrant, env models.ComputedEnvelope, channel models.Channel, scorePct float64) error {
	existing, err := a.store.AlertDeliveries.GetByMatchChannel(ctx, env.MatchID, channel)
	if err != nil && !errors.Is(err, entitystore.ErrNotFound) {
		return err
	}
	if existing != nil && existing.Status != models.DeliveryFailed {
		return nil
	}

	providerID, sendErr := a.dispatch(ctx, profile, grant, env, channel, scorePct)

	now := time.Now().UTC()
	delivery := models.AlertDelivery{
		MatchID:           env.MatchID,
		Channel:           channel,
		ProviderMessageID: providerID,
	}
	if existing != nil {
		delivery.AlertID = existing.AlertID
		delivery.RetryCount = existing.RetryCount + 1
	}
	if sendErr != nil {
		delivery.Status = models.DeliveryFailed
		delivery.Error = sendErr.Error()
	} else {
		delivery.Status = models.DeliverySent
		delivery.SentAt = &now
	}

	if _, err := a.store.AlertDeliveries.Upsert(ctx, delivery); err != nil {
		return fmt.Errorf("persist alert delivery (match=%s, channel=%s): %w", env.MatchID, channel, err)
	}
	return sendErr
}

func (a *Alerter) dispatch(ctx context.Context, profile models.UserProfile, grant models.ValidatedGrant, env models.ComputedEnvelope, channel models.Channel, scorePct float64) (string, error) {
	switch channel {
	case models.ChannelEmail:
		subject, body := a.composeEmail(ctx, grant, env.Explanation, scorePct)
		return a.email.Send(ctx, profile.Email, subject, body, env.MatchID)
	case models.ChannelSMS:
		return a.sms.Send(ctx, profile.Phone, smsBody(grant, scorePct))
	case models.ChannelSlack:
		blocks := buildSlackBlocks(grant, env.Explanation, scorePct)
		return "", a.slack.Send(ctx, profile.SlackWebhookURL, blocks)
	default:
		return "", fmt.Errorf("unknown channel %q", channel)
	}
}

func (a *Alerter) composeEmail(ctx context.Context, grant models.ValidatedGrant, explanation string, scorePct float64) (string, string) {
	if a.router == nil {
		c := fallbackEmailContent(grant, scorePct)
		return c.Subject, c.Body
	}

	text, err := a.router.Complete(ctx, emailPrompt(grant, explanation, scorePct), 400)
	if err != nil {
		c := fallbackEmailContent(grant, scorePct)
		return c.Subject, c.Body
	}
	content, err := llm.ParseJSON[emailContent](text)
	if err != nil {
		c := fallbackEmailContent(grant, scorePct)
		return c.Subject, c.Body
	}
	return content.Subject, content.Body
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
