package matcher

import (
	"time"

	"github.com/grantradar/grantradar/pkg/models"
)

// derivePriority implements the Matcher's own priority thresholds (spec
// §4.4), computed independently from Alerter's (§4.5, pkg/alerter) per the
// spec's resolution of that open question: the two call sites must never
// be unified behind one shared function.
func derivePriority(score float64, now time.Time, deadline *time.Time) models.PriorityLevel {
	days := models.DaysToDeadline(now, deadline)
	switch {
	case score >= 90 && days <= 7:
		return models.PriorityCritical
	case score >= 80 || days <= 30:
		return models.PriorityHigh
	case score >= 70:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}
