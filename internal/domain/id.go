package domain

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewTradeID derives a ULID from the entry time with zero entropy, so replaying the
// same series yields the same IDs. At most one trade opens per bar, which keeps
// them unique within a run.
func NewTradeID(entry time.Time) string {
	id, err := ulid.New(ulid.Timestamp(entry), nil)
	if err != nil {
		// entry time outside the ULID range (before 1970)
		return fmt.Sprintf("trade-%d", entry.UnixNano())
	}
	return id.String()
}

// NewRunID returns a fresh, time-sortable identifier for a persisted run.
func NewRunID() string {
	return ulid.Make().String()
}
