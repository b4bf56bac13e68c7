package alerter

import (
	"time"

	"github.com/grantradar/grantradar/pkg/models"
)

// DerivePriority implements the Alerter's own priority thresholds (spec
// §4.5 step 3), independent of matcher.derivePriority per the spec's
// resolution of that open question — the two must never be unified.
func DerivePriority(scorePct float64, now time.Time, deadline *time.Time) models.PriorityLevel {
	days := models.DaysToDeadline(now, deadline)
	switch {
	case scorePct > 95 && days < 14:
		return models.PriorityCritical
	case scorePct >= 85 && scorePct <= 95:
		return models.PriorityHigh
	case scorePct >= 70 && scorePct < 85:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// defaultChannels returns priority's default channel set per spec §4.5
// step 4, before intersecting with the user's enabled channels.
func defaultChannels(priority models.PriorityLevel) []models.Channel {
	switch priority {
	case models.PriorityCritical:
		return []models.Channel{models.ChannelEmail, models.ChannelSMS, models.ChannelSlack}
	case models.PriorityHigh:
		return []models.Channel{models.ChannelEmail, models.ChannelSlack}
	case models.PriorityMedium:
		return []models.Channel{models.ChannelEmail}
	default:
		return nil
	}
}

// enabledChannels intersects priority's default channel set with the
// user's enabled channels.
func enabledChannels(priority models.PriorityLevel, enabled map[models.Channel]bool) []models.Channel {
	var out []models.Channel
	for _, ch := range defaultChannels(priority) {
		if enabled[ch] {
			out = append(out, ch)
		}
	}
	return out
}
