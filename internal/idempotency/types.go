package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record tracks one ingestion attempt for an order id.
type Record struct {
	Key       string
	Status    string
	Location  string // bucket the order was found in or written to
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
	Note      string
}

func (r *Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
