package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/lumenlake/sessionizer/internal/api/v1"
	"github.com/lumenlake/sessionizer/internal/core/session"
	"github.com/lumenlake/sessionizer/internal/core/storage"
	"github.com/lib/pq"
)

// SessionAdapter implements storage.SessionStore using PostgreSQL. The merge
// is a single transaction — the atomicity contract that keeps a failed run
// from leaving the cleaned layer half-written.
type SessionAdapter struct {
	db *sql.DB
}

// NewSessionAdapter creates a SessionAdapter sharing the given connection.
func NewSessionAdapter(db *sql.DB) *SessionAdapter {
	return &SessionAdapter{db: db}
}

// FetchLookback returns the persisted cleaned rows for the given keys with
// pdate >= from, in ingest order. Scoping is by key, never by arrival date:
// the full relevant local timeline comes back even for late-arriving events.
func (a *SessionAdapter) FetchLookback(ctx context.Context, keys []session.Key, from time.Time) ([]v1.RawEvent, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	userIDs := make([]string, len(keys))
	productCodes := make([]string, len(keys))
	for i, k := range keys {
		userIDs[i] = k.UserID
		productCodes[i] = k.ProductCode
	}

	rows, err := a.db.QueryContext(ctx, queryFetchLookback,
		pq.Array(userIDs), pq.Array(productCodes), from)
	if err != nil {
		return nil, fmt.Errorf("failed to query lookback slice: %w", err)
	}
	defer rows.Close()

	var events []v1.RawEvent
	for rows.Next() {
		evt, err := scanRawEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lookback slice: %w", err)
	}

	return events, nil
}

// Merge upserts all recomputed rows keyed by the natural event key in one
// transaction. Rows whose recomputed content is identical are skipped by the
// upsert's guard, so a re-run leaves them untouched, updated_at included.
// Serialization and deadlock failures surface as storage.ErrMergeConflict
// for the orchestrator to retry.
func (a *SessionAdapter) Merge(ctx context.Context, rows []session.SessionedEvent) error {
	if len(rows) == 0 {
		slog.Debug("[SessionAdapter] Nothing to merge")
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session merge: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	upsertStmt, err := tx.PrepareContext(ctx, queryUpsertSession)
	if err != nil {
		return fmt.Errorf("session merge: prepare upsert: %w", err)
	}
	defer upsertStmt.Close()

	now := time.Now().UTC()
	for _, row := range rows {
		payloadJSON, err := marshalPayload(row.Payload)
		if err != nil {
			return fmt.Errorf("session merge: %w", err)
		}

		if _, err := upsertStmt.ExecContext(ctx,
			row.UserID,
			row.EventID,
			row.ProductCode,
			row.Timestamp,
			payloadJSON,
			row.IngestSeq,
			row.IsUserAction,
			timeDiffMillis(row.TimeDiff),
			row.IsNewSession,
			row.SessionGroupSeq,
			row.SessionStartTime,
			row.SessionID,
			row.PDate,
			now,
		); err != nil {
			return fmt.Errorf("session merge: upsert %s: %w", session.NaturalKey(row.RawEvent), mapMergeErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session merge: commit: %w", mapMergeErr(err))
	}

	slog.Info("[SessionAdapter] Merge committed", "rows", len(rows))
	return nil
}

// Bootstrap is the first-run full load. Same write shape as Merge; kept as a
// distinct method so callers state their intent and the store can skip
// conflict-path logging.
func (a *SessionAdapter) Bootstrap(ctx context.Context, rows []session.SessionedEvent) error {
	if err := a.Merge(ctx, rows); err != nil {
		return err
	}
	slog.Info("[SessionAdapter] Bootstrap load complete", "rows", len(rows))
	return nil
}

// QueryRange fetches one key's persisted rows in canonical timeline order.
func (a *SessionAdapter) QueryRange(ctx context.Context, key session.Key, from, to time.Time, limit int) ([]session.SessionedEvent, error) {
	rows, err := a.db.QueryContext(ctx, queryRangeSessions,
		key.UserID, key.ProductCode, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []session.SessionedEvent
	for rows.Next() {
		se, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return out, nil
}

// mapMergeErr translates postgres concurrency failures into the sentinel the
// run layer understands. 40001 is serialization_failure, 40P01 is
// deadlock_detected.
func mapMergeErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", storage.ErrMergeConflict, pqErr.Message)
		}
	}
	return err
}
