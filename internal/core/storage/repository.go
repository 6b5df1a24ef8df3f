package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/lumenlake/sessionizer/internal/api/v1"
	"github.com/lumenlake/sessionizer/internal/core/session"
)

var (
	// ErrBatchNotFound is returned when the raw layer holds no rows for the
	// requested process date. A run without its batch is a no-op at best and
	// a scheduling bug at worst, so it fails loudly.
	ErrBatchNotFound = errors.New("no raw batch for process date")

	// ErrLookbackUnavailable is returned when the resolved lookback range
	// reaches beyond raw-layer retention. Correctness cannot be guaranteed
	// without the history, so the run is fatal.
	ErrLookbackUnavailable = errors.New("lookback window outside raw layer retention")

	// ErrMergeConflict is returned when a concurrent writer touched the same
	// keys during the merge transaction. The engine never auto-resolves it;
	// the orchestrator retries the run.
	ErrMergeConflict = errors.New("concurrent merge conflict")
)

// RawEventStore is the interface to the raw-layer collaborator: batches of
// events partitioned by arrival date, with a bounded retention window.
type RawEventStore interface {
	// FetchBatch returns all rows landed for one arrival (business) date,
	// in ingest order. Returns ErrBatchNotFound when the date has no rows.
	FetchBatch(ctx context.Context, processDate time.Time) ([]v1.RawEvent, error)

	// RetentionFloor returns the earliest arrival date still retained by
	// the raw layer. Lookback requests below the floor must fail.
	RetentionFloor(ctx context.Context) (time.Time, error)
}

// SessionStore is the interface to the cleaned/ODS layer: the durable home
// of every SessionedEvent.
type SessionStore interface {
	// FetchLookback returns the persisted events for the given partition
	// keys with pdate >= from, in ingest order. This is the historical
	// slice the incremental recomputation is unioned with.
	FetchLookback(ctx context.Context, keys []session.Key, from time.Time) ([]v1.RawEvent, error)

	// Merge upserts the recomputed rows keyed by
	// (user_id, event_id, product_code, timestamp) in a single transaction.
	// Rows outside the given set are untouched; no row is ever deleted.
	// Returns ErrMergeConflict if a concurrent writer raced the transaction.
	Merge(ctx context.Context, rows []session.SessionedEvent) error

	// Bootstrap performs the first-run full load: same row shape as Merge,
	// no lookback semantics implied.
	Bootstrap(ctx context.Context, rows []session.SessionedEvent) error

	// QueryRange fetches persisted sessioned events for one key ordered by
	// timestamp, for the query API.
	QueryRange(ctx context.Context, key session.Key, from, to time.Time, limit int) ([]session.SessionedEvent, error)
}
