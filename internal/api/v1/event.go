package v1

import (
	"fmt"
	"time"
)

// RawEvent is one raw occurrence as landed by the raw-layer collector.
// Its natural key is (UserID, EventID, ProductCode, Timestamp): rows sharing
// the full tuple are duplicates and collapse to a single survivor before any
// session logic runs.
type RawEvent struct {
	// UserID identifies the actor the event belongs to.
	UserID string `json:"user_id"`

	// EventID is the enum-like event code (e.g. "a", "page_view").
	// Membership in the configured action-code set decides whether the
	// event counts as a user action.
	EventID string `json:"event_id"`

	// ProductCode scopes the event to one product timeline. Sessions never
	// span products.
	ProductCode string `json:"product_code"`

	// Timestamp is the source-assigned instant the event occurred,
	// independent of when it arrived at the raw layer.
	Timestamp time.Time `json:"timestamp"`

	// Payload carries arbitrary source fields. It rides along untouched.
	Payload map[string]interface{} `json:"payload,omitempty"`

	// IngestSeq is a monotonic sequence assigned by the raw layer on arrival.
	// It is the final tie-break for events sharing timestamp and event code,
	// so recomputation is reproducible. Set by database (BIGSERIAL), never
	// by clients.
	IngestSeq int64 `json:"-"`
}

// Validate enforces the required batch row shape. Rows failing validation are
// schema violations: rejected per policy, never silently coerced.
func (e *RawEvent) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	if e.ProductCode == "" {
		return fmt.Errorf("product_code is required")
	}

	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	return nil
}
