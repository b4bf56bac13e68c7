package models

import "time"

// DeliveryStatus is the lifecycle of a single channel-delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// AlertDelivery records one attempted channel send for a match. The
// (MatchID, Channel) pair is the idempotency key: a retry checks for an
// existing non-failed row before re-attempting.
type AlertDelivery struct {
	AlertID           string
	MatchID           string
	Channel           Channel
	Status            DeliveryStatus
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ProviderMessageID string
	RetryCount        int
	Error             string
}

// LatencySeconds returns sent_at - postedAt when both are known, else nil.
func (a AlertDelivery) LatencySeconds(postedAt *time.Time) *float64 {
	if a.SentAt == nil || postedAt == nil {
		return nil
	}
	s := a.SentAt.Sub(*postedAt).Seconds()
	return &s
}

// ManualReviewItem is appended when Curation's quality score falls below
// QualityThreshold. Append-only, consumed by humans.
type ManualReviewItem struct {
	GrantID      string
	Reason       string
	QualityScore float64
	Issues       []string
	GrantSnap    map[string]any
	CreatedAt    time.Time
}
