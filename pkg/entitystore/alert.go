package entitystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/grantradar/grantradar/pkg/models"
)

// AlertDeliveryRepository persists one row per attempted channel send,
// keyed on (match_id, channel) for idempotent retry checks.
type AlertDeliveryRepository struct {
	db *sqlx.DB
}

type alertDeliveryRow struct {
	AlertID           string         `db:"alert_id"`
	MatchID           string         `db:"match_id"`
	Channel           string         `db:"channel"`
	Status            string         `db:"status"`
	SentAt            sql.NullTime   `db:"sent_at"`
	DeliveredAt       sql.NullTime   `db:"delivered_at"`
	ProviderMessageID string         `db:"provider_message_id"`
	RetryCount        int            `db:"retry_count"`
	Error             string         `db:"error"`
}

func (r alertDeliveryRow) toModel() models.AlertDelivery {
	a := models.AlertDelivery{
		AlertID:           r.AlertID,
		MatchID:           r.MatchID,
		Channel:           models.Channel(r.Channel),
		Status:            models.DeliveryStatus(r.Status),
		ProviderMessageID: r.ProviderMessageID,
		RetryCount:        r.RetryCount,
		Error:             r.Error,
	}
	if r.SentAt.Valid {
		a.SentAt = &r.SentAt.Time
	}
	if r.DeliveredAt.Valid {
		a.DeliveredAt = &r.DeliveredAt.Time
	}
	return a
}

// GetByMatchChannel returns the existing delivery row for (matchID,
// channel), if one exists — the idempotency check a sender runs before
// attempting a (re)send.
func (r *AlertDeliveryRepository) GetByMatchChannel(ctx context.Context, matchID string, channel models.Channel) (*models.AlertDelivery, error) {
	var row alertDeliveryRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM alert_deliveries WHERE match_id = $1 AND channel = $2`, matchID, string(channel))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get alert delivery (match=%s, channel=%s): %w", matchID, channel, err)
	}
	a := row.toModel()
	return &a, nil
}

// Upsert persists a, keyed on (match_id, channel).
func (r *AlertDeliveryRepository) Upsert(ctx context.Context, a models.AlertDelivery) (string, error) {
	const q = `
INSERT INTO alert_deliveries (
	alert_id, match_id, channel, status, sent_at, delivered_at,
	provider_message_id, retry_count, error
) VALUES (
	COALESCE(NULLIF($1, ''), gen_random_uuid()::text)::uuid, $2, $3, $4, $5, $6,
	$7, $8, $9
)
ON CONFLICT (match_id, channel) DO UPDATE SET
	status = EXCLUDED.status,
	sent_at = EXCLUDED.sent_at,
	delivered_at = EXCLUDED.delivered_at,
	provider_message_id = EXCLUDED.provider_message_id,
	retry_count = EXCLUDED.retry_count,
	error = EXCLUDED.error
RETURNING alert_id`

	var alertID string
	err := r.db.QueryRowContext(ctx, q,
		a.AlertID, a.MatchID, string(a.Channel), string(a.Status), a.SentAt, a.DeliveredAt,
		a.ProviderMessageID, a.RetryCount, a.Error,
	).Scan(&alertID)
	if err != nil {
		return "", fmt.Errorf("upsert alert delivery (match=%s, channel=%s): %w", a.MatchID, a.Channel, err)
	}
	return alertID, nil
}
