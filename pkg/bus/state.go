package bus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grantradar/grantradar/pkg/models"
)

// State holds the bus-side ephemeral structures that live beside the
// streams themselves (spec §6's "Bus-side ephemeral" list): discovery's
// dedup set, curation's recent-validated candidate pool, per-user digest
// queues, and the orchestrator's per-grant pipeline tracker.
type State struct {
	client redis.UniversalClient
}

// NewState wraps client for ephemeral-state access.
func NewState(client redis.UniversalClient) *State {
	return &State{client: client}
}

const (
	seenSetTTL         = 30 * 24 * time.Hour
	validatedRecentN   = 1000
	pipelineHealthyTTL = time.Hour
	pipelineFailedTTL  = 24 * time.Hour
)

// SeenHash computes the dedup key from spec §4.2: sha256(source ||
// ":" || external_id || ":" || title).
func SeenHash(source, externalID, title string) string {
	sum := sha256.Sum256([]byte(source + ":" + externalID + ":" + title))
	return hex.EncodeToString(sum[:])
}

func seenSetKey(source string) string {
	return fmt.Sprintf("grants:seen:%s", source)
}

// HasSeen reports whether hash is already present in source's SeenSet.
func (s *State) HasSeen(ctx context.Context, source, hash string) (bool, error) {
	n, err := s.client.SIsMember(ctx, seenSetKey(source), hash).Result()
	if err != nil {
		return false, fmt.Errorf("check seen set for %s: %w", source, err)
	}
	return n, nil
}

// MarkSeen adds hash to source's SeenSet and (re)applies its 30-day TTL.
func (s *State) MarkSeen(ctx context.Context, source, hash string) error {
	key := seenSetKey(source)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, hash)
	pipe.Expire(ctx, key, seenSetTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark seen for %s: %w", source, err)
	}
	return nil
}

const validatedRecentKey = "grants:validated:recent"

// PushValidatedRecent prepends summary to the bounded recent-validated list
// Curation's cross-source dedup pass scans, trimming it to
// validatedRecentN entries.
func (s *State) PushValidatedRecent(ctx context.Context, summary string) error {
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, validatedRecentKey, summary)
	pipe.LTrim(ctx, validatedRecentKey, 0, validatedRecentN-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push validated recent: %w", err)
	}
	return nil
}

// RecentValidated returns the full bounded recent-validated list, most
// recently pushed first.
func (s *State) RecentValidated(ctx context.Context) ([]string, error) {
	out, err := s.client.LRange(ctx, validatedRecentKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read validated recent: %w", err)
	}
	return out, nil
}

func digestKey(userID, date string) string {
	return fmt.Sprintf("digest:pending:%s:%s", userID, date)
}

// PushDigestPending prepends payload (the alert's JSON summary) to a user's
// pending digest for date (format yyyy-mm-dd) and sets its expiry to
// expiresAt (the caller computes end-of-day + 1h).
func (s *State) PushDigestPending(ctx context.Context, userID, date, payload string, expiresAt time.Time) error {
	key := digestKey(userID, date)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.ExpireAt(ctx, key, expiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push digest pending for %s/%s: %w", userID, date, err)
	}
	return nil
}

// DigestPending returns all items queued in a user's digest for date.
func (s *State) DigestPending(ctx context.Context, userID, date string) ([]string, error) {
	out, err := s.client.LRange(ctx, digestKey(userID, date), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read digest pending for %s/%s: %w", userID, date, err)
	}
	return out, nil
}

// ClearDigestPending deletes a user's digest list for date, called once the
// digest job has sent its consolidated email.
func (s *State) ClearDigestPending(ctx context.Context, userID, date string) error {
	if err := s.client.Del(ctx, digestKey(userID, date)).Err(); err != nil {
		return fmt.Errorf("clear digest pending for %s/%s: %w", userID, date, err)
	}
	return nil
}

func mediumAlertCountKey(userID, date string) string {
	return fmt.Sprintf("alerts:medium:count:%s:%s", userID, date)
}

// IncrMediumAlertCount increments and returns the day's running count of
// MEDIUM-priority matches processed for userID, the counter the Alerter
// uses to gate its digest-backlog rule (spec §4.5 step 5: the first
// MediumDigestBacklog MEDIUM matches of the day send immediately, the rest
// batch into the digest). TTL is set generously past end-of-day so a late
// digest job still sees the day's count.
func (s *State) IncrMediumAlertCount(ctx context.Context, userID, date string) (int64, error) {
	key := mediumAlertCountKey(userID, date)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr medium alert count for %s/%s: %w", userID, date, err)
	}
	return incr.Val(), nil
}

func pipelineKey(grantID string) string {
	return fmt.Sprintf("pipeline:state:%s", grantID)
}

// SavePipelineState persists state with a TTL of 1h, or 24h if state's
// current stage is Failed.
func (s *State) SavePipelineState(ctx context.Context, state models.PipelineState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal pipeline state for %s: %w", state.GrantID, err)
	}

	ttl := pipelineHealthyTTL
	if state.CurrentStage == models.StageFailed {
		ttl = pipelineFailedTTL
	}

	if err := s.client.Set(ctx, pipelineKey(state.GrantID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save pipeline state for %s: %w", state.GrantID, err)
	}
	return nil
}

// ErrPipelineStateNotFound is returned when a grant has no tracked pipeline
// state (expired, or never started).
var ErrPipelineStateNotFound = fmt.Errorf("bus: pipeline state not found")

// GetPipelineState loads the tracked state for grantID.
func (s *State) GetPipelineState(ctx context.Context, grantID string) (*models.PipelineState, error) {
	raw, err := s.client.Get(ctx, pipelineKey(grantID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrPipelineStateNotFound
		}
		return nil, fmt.Errorf("get pipeline state for %s: %w", grantID, err)
	}

	var state models.PipelineState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal pipeline state for %s: %w", grantID, err)
	}
	return &state, nil
}

// DeletePipelineState removes grantID's tracked state, used once a pipeline
// completes and its terminal record is no longer needed before its TTL.
func (s *State) DeletePipelineState(ctx context.Context, grantID string) error {
	if err := s.client.Del(ctx, pipelineKey(grantID)).Err(); err != nil {
		return fmt.Errorf("delete pipeline state for %s: %w", grantID, err)
	}
	return nil
}

// ScanPipelineKeys returns every tracked grant_id currently in the pipeline
// state index, used by the orchestrator's stalled-pipeline sweep. Uses SCAN
// rather than KEYS to avoid blocking the Redis event loop on a large keyspace.
func (s *State) ScanPipelineKeys(ctx context.Context) ([]string, error) {
	var grantIDs []string
	iter := s.client.Scan(ctx, 0, "pipeline:state:*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		grantIDs = append(grantIDs, key[len("pipeline:state:"):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan pipeline state keys: %w", err)
	}
	return grantIDs, nil
}
