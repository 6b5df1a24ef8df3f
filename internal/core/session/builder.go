package session

import (
	"context"
	"sort"
	"time"

	v1 "github.com/lumenlake/sessionizer/internal/api/v1"
	"github.com/lumenlake/sessionizer/internal/core/partition"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout is the session gap threshold when config and profiles
	// are silent.
	DefaultTimeout = 30 * time.Minute

	defaultWorkerCount = 8
)

// Builder computes session assignments for a working set of events. It is
// pure: all state is carried in the per-partition fold, so independent
// partitions can be built concurrently without coordination.
type Builder struct {
	timeout     time.Duration
	actionCodes ActionSet
	profiles    map[string]Profile // keyed by product code
	workerCount int
}

// NewBuilder creates a Builder with the given global timeout and action
// codes. Per-product profiles override both for their product.
func NewBuilder(timeout time.Duration, actionCodes ActionSet, profiles []Profile, workerCount int) *Builder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if len(actionCodes) == 0 {
		actionCodes = NewActionSet(DefaultActionCodes)
	}
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	byProduct := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		byProduct[p.ProductCode] = p
	}
	return &Builder{
		timeout:     timeout,
		actionCodes: actionCodes,
		profiles:    byProduct,
		workerCount: workerCount,
	}
}

func (b *Builder) timeoutFor(productCode string) time.Duration {
	if p, ok := b.profiles[productCode]; ok && p.SessionTimeout > 0 {
		return p.SessionTimeout
	}
	return b.timeout
}

func (b *Builder) actionSetFor(productCode string) ActionSet {
	if p, ok := b.profiles[productCode]; ok && len(p.actionSet) > 0 {
		return p.actionSet
	}
	return b.actionCodes
}

// sortPartition orders one partition's events by timestamp, then event code,
// then ingest sequence. The secondary ordering is the fixed tie-break that
// makes gap computation and boundary detection reproducible across runs.
func sortPartition(events []v1.RawEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, z := events[i], events[j]
		if !a.Timestamp.Equal(z.Timestamp) {
			return a.Timestamp.Before(z.Timestamp)
		}
		if a.EventID != z.EventID {
			return a.EventID < z.EventID
		}
		return a.IngestSeq < z.IngestSeq
	})
}

// BuildPartition assigns sessions to one (user, product) timeline. The fold
// carries exactly three things: the previous timestamp, the running new-
// session count, and the current session start. Events with no qualifying
// predecessor still get a session (degenerate single-event session) — they
// are retained, never dropped.
func (b *Builder) BuildPartition(key Key, events []v1.RawEvent) []SessionedEvent {
	if len(events) == 0 {
		return nil
	}

	timeout := b.timeoutFor(key.ProductCode)
	actions := b.actionSetFor(key.ProductCode)

	sorted := make([]v1.RawEvent, len(events))
	copy(sorted, events)
	sortPartition(sorted)

	out := make([]SessionedEvent, 0, len(sorted))

	var (
		prevTS       time.Time
		groupSeq     int
		sessionStart time.Time
	)

	for i, e := range sorted {
		row := SessionedEvent{
			RawEvent:     e,
			IsUserAction: actions.Contains(e.EventID),
			PDate:        PDateOf(e.Timestamp),
		}

		if i > 0 {
			diff := e.Timestamp.Sub(prevTS)
			row.TimeDiff = &diff
		}

		// A gap exactly equal to the timeout continues the session;
		// only a strictly greater gap opens a new one.
		if row.TimeDiff == nil || *row.TimeDiff > timeout {
			row.IsNewSession = true
			groupSeq++
			sessionStart = e.Timestamp
		}

		row.SessionGroupSeq = groupSeq
		row.SessionStartTime = sessionStart
		row.SessionID = SessionIDFor(e.UserID, e.ProductCode, sessionStart)

		out = append(out, row)
		prevTS = e.Timestamp
	}

	return out
}

// GroupByKey buckets events by their (user, product) partition key.
func GroupByKey(events []v1.RawEvent) map[Key][]v1.RawEvent {
	groups := make(map[Key][]v1.RawEvent)
	for _, e := range events {
		k := KeyOf(e)
		groups[k] = append(groups[k], e)
	}
	return groups
}

// BuildAll computes session assignments for the whole working set,
// processing independent partitions in parallel. Partitions are sharded to
// workers by a stable hash, results are merged and sorted into the canonical
// partition order, so the output is identical regardless of worker count or
// scheduling.
func (b *Builder) BuildAll(ctx context.Context, events []v1.RawEvent) ([]SessionedEvent, error) {
	groups := GroupByKey(events)
	if len(groups) == 0 {
		return nil, nil
	}

	workers := b.workerCount
	if workers > len(groups) {
		workers = len(groups)
	}

	shards := make([][]Key, workers)
	for k := range groups {
		i := partition.For(k.String()) % workers
		shards[i] = append(shards[i], k)
	}

	results := make([][]SessionedEvent, workers)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			var local []SessionedEvent
			for _, k := range shards[i] {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				local = append(local, b.BuildPartition(k, groups[k])...)
			}
			results[i] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []SessionedEvent
	for _, r := range results {
		out = append(out, r...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, z := out[i], out[j]
		if a.UserID != z.UserID {
			return a.UserID < z.UserID
		}
		if a.ProductCode != z.ProductCode {
			return a.ProductCode < z.ProductCode
		}
		if !a.Timestamp.Equal(z.Timestamp) {
			return a.Timestamp.Before(z.Timestamp)
		}
		if a.EventID != z.EventID {
			return a.EventID < z.EventID
		}
		return a.IngestSeq < z.IngestSeq
	})

	return out, nil
}
