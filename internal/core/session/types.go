package session

import (
	"fmt"
	"time"

	v1 "github.com/lumenlake/sessionizer/internal/api/v1"
)

// Key is the partition identity for session computation. All gap, boundary
// and grouping logic is local to one Key; nothing crosses it.
type Key struct {
	UserID      string
	ProductCode string
}

// KeyOf returns the partition key of an event.
func KeyOf(e v1.RawEvent) Key {
	return Key{UserID: e.UserID, ProductCode: e.ProductCode}
}

func (k Key) String() string {
	return k.UserID + "#" + k.ProductCode
}

// SessionedEvent is a raw event enriched with the full session assignment.
// It is the row shape owned by the cleaned layer. Recomputation either
// reproduces a row bit-identical or replaces it wholesale via the merge
// writer; rows are never mutated in place.
type SessionedEvent struct {
	v1.RawEvent

	// IsUserAction is true iff EventID is in the action-code set for the
	// event's product. Persisted for diagnostics.
	IsUserAction bool `json:"is_user_action"`

	// TimeDiff is the gap to the immediately preceding event on the same
	// (user, product) timeline, nil for the first event visible in scope.
	TimeDiff *time.Duration `json:"time_diff,omitempty"`

	// IsNewSession marks the first event of a session: no visible
	// predecessor, or a gap strictly greater than the session timeout.
	IsNewSession bool `json:"is_new_session"`

	// SessionGroupSeq is the running count of IsNewSession flags within the
	// partition, starting at 1. All rows sharing it form one session.
	SessionGroupSeq int `json:"session_group_seq"`

	// SessionStartTime is the timestamp of the row that opened the session.
	SessionStartTime time.Time `json:"session_start_time"`

	// SessionID is the stable session identifier:
	// user_id + "#" + product_code + "#" + RFC3339Nano(session_start_time).
	// Deterministic and collision-free for distinct (user, product, start)
	// triples; no random component.
	SessionID string `json:"session_id"`

	// PDate is the UTC calendar date of Timestamp. The cleaned layer is
	// physically organized by it.
	PDate time.Time `json:"pdate"`
}

// SessionIDFor builds the canonical session identifier. The "#"-joined
// concatenation keeps the identifier reversible and collision-free without a
// hash; RFC3339Nano pins the start instant exactly.
func SessionIDFor(userID, productCode string, start time.Time) string {
	return userID + "#" + productCode + "#" + start.UTC().Format(time.RFC3339Nano)
}

// PDateOf truncates a timestamp to its UTC calendar date.
func PDateOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NaturalKey renders the dedup identity tuple of an event. Used in error
// messages and duplicate detection.
func NaturalKey(e v1.RawEvent) string {
	return fmt.Sprintf("%s|%s|%s|%s", e.UserID, e.EventID, e.ProductCode, e.Timestamp.UTC().Format(time.RFC3339Nano))
}
