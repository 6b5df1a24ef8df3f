package run

import (
	"fmt"
	"sort"
	"time"

	v1 "github.com/lumenlake/sessionizer/internal/api/v1"
	"github.com/lumenlake/sessionizer/internal/core/session"
	"github.com/lumenlake/sessionizer/internal/core/storage"
)

// Scope is the recomputation scope of one run: the partition keys present in
// the batch plus the historical date floor their sessions can reach back to.
// Derived per run, never persisted.
//
// The scope is keyed by (user, product), not by arrival date. That is the
// central invariant: a late-arriving event pulls in its key's whole relevant
// timeline, so historical sessions resplit or merge correctly.
type Scope struct {
	ProcessDate time.Time
	Keys        []session.Key

	// From is the pdate floor of the lookback slice:
	// processDate - extended_lookback_days. The extra day beyond the
	// regular lookback covers a session whose first event sits just
	// outside the regular window, which would otherwise misclassify an
	// in-window event as "first, no predecessor".
	From time.Time
}

// Resolve derives the scope for a batch. Keys come out sorted so every
// downstream read and log line is deterministic.
func Resolve(batch []v1.RawEvent, processDate time.Time, extendedLookbackDays int) Scope {
	keySet := make(map[session.Key]struct{})
	for _, e := range batch {
		keySet[session.KeyOf(e)] = struct{}{}
	}

	keys := make([]session.Key, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].UserID != keys[j].UserID {
			return keys[i].UserID < keys[j].UserID
		}
		return keys[i].ProductCode < keys[j].ProductCode
	})

	day := session.PDateOf(processDate)
	return Scope{
		ProcessDate: day,
		Keys:        keys,
		From:        day.AddDate(0, 0, -extendedLookbackDays),
	}
}

// CheckRetention fails the run when the lookback window needs history that
// has expired. History below the raw layer's floor is absent for one of two
// reasons: on a young deployment it never existed, which is valid (a key's
// first visible event simply has no predecessor), and only beyond the
// retention policy boundary can absence mean expiry. So the run fails only
// when the window reaches past what the policy guarantees AND the floor
// shows that history to be gone. A zero floor means the raw layer reported
// no boundary (empty).
func (s Scope) CheckRetention(floor time.Time, retentionDays int) error {
	if floor.IsZero() {
		return nil
	}
	horizon := s.ProcessDate.AddDate(0, 0, -retentionDays)
	if s.From.Before(session.PDateOf(floor)) && s.From.Before(horizon) {
		return fmt.Errorf("%w: need %s..%s, raw layer retains from %s (%d keys affected)",
			storage.ErrLookbackUnavailable,
			s.From.Format("2006-01-02"),
			s.ProcessDate.Format("2006-01-02"),
			session.PDateOf(floor).Format("2006-01-02"),
			len(s.Keys),
		)
	}
	return nil
}
