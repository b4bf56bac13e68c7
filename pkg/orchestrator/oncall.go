package orchestrator

import (
	"context"
	"time"
)

// OnCallAlert is one page-worthy health event.
type OnCallAlert struct {
	Service string
	Message string
	FiredAt time.Time
}

// OnCallSink delivers an OnCallAlert to a paging vendor. The orchestrator
// never hard-codes a vendor, matching spec.md §4.6.6's generic callback
// plumbing (grounded on the original Python's callback-list shape).
type OnCallSink interface {
	Notify(ctx context.Context, alert OnCallAlert) error
}
