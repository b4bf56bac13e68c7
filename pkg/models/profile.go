package models

import "time"

// NotificationPreferences controls how an Alerter routes matches for a user.
type NotificationPreferences struct {
	MinimumMatchScore float64 // [0,100]; matches below this are dropped
	DigestFrequency   DigestFrequency
	EnabledChannels   map[Channel]bool
}

// DigestFrequency controls whether alerts send immediately or batch.
type DigestFrequency string

const (
	DigestImmediate DigestFrequency = "immediate"
	DigestDaily     DigestFrequency = "daily"
	DigestWeekly    DigestFrequency = "weekly"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelSlack Channel = "slack"
)

// UserProfile is the Matcher's candidate-selection and personalization input.
type UserProfile struct {
	UserID              string
	ResearchAreas       []string
	Methods             []string
	PastGrants          []string
	Institution         string
	Department          string
	Keywords            []string
	ProfileEmbedding    []float32 // dim 1536
	SourceTextHash      string    // sha256 of the canonicalized text the embedding was built from
	EmbeddingUpdatedAt  *time.Time
	Preferences         NotificationPreferences
	Email               string
	Phone               string
	SlackWebhookURL     string
}

// NeedsReembedding reports whether the profile's embedding is stale relative
// to canonicalizedTextHash — the hash of the current canonicalized profile text.
func (p UserProfile) NeedsReembedding(canonicalizedTextHash string) bool {
	return p.SourceTextHash != canonicalizedTextHash
}
