package session

import (
	"reflect"

	v1 "github.com/lumenlake/sessionizer/internal/api/v1"
)

// Conflict is a near-duplicate: two rows sharing the identity tuple
// (user_id, event_id, product_code, timestamp) with differing payloads.
// True duplicates are identical by definition, so a payload mismatch means
// the upstream produced inconsistent data — a schema violation, not a
// dedup decision.
type Conflict struct {
	Kept    v1.RawEvent
	Dropped v1.RawEvent
}

// Dedup collapses exact identity-tuple duplicates to a single survivor,
// preserving first-occurrence order. Which duplicate survives is the first
// seen; since true duplicates are field-identical the choice is immaterial.
// Near-duplicates are reported as conflicts for the caller's violation
// policy. Empty input yields empty output.
func Dedup(events []v1.RawEvent) ([]v1.RawEvent, []Conflict) {
	if len(events) == 0 {
		return nil, nil
	}

	seen := make(map[string]v1.RawEvent, len(events))
	out := make([]v1.RawEvent, 0, len(events))
	var conflicts []Conflict

	for _, e := range events {
		key := NaturalKey(e)
		prev, ok := seen[key]
		if !ok {
			seen[key] = e
			out = append(out, e)
			continue
		}
		if !reflect.DeepEqual(prev.Payload, e.Payload) {
			conflicts = append(conflicts, Conflict{Kept: prev, Dropped: e})
		}
	}

	return out, conflicts
}
