package run

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/lumenlake/sessionizer/internal/api/v1"
	"github.com/lumenlake/sessionizer/internal/core/config"
	"github.com/lumenlake/sessionizer/internal/core/session"
	"github.com/lumenlake/sessionizer/internal/core/storage"
)

// Params are the per-run parameters supplied by the caller (CLI flag or ops
// API). ProcessDate is the business date of the batch, not the wall clock.
type Params struct {
	ProcessDate time.Time `json:"process_date"`

	// FirstRun is the bootstrap mode: full load of the batch, no lookback
	// merge. Used when the cleaned layer does not exist yet.
	FirstRun bool `json:"first_run"`
}

// Summary reports what one run did. Returned to the caller and exposed by
// the ops API.
type Summary struct {
	ProcessDate   time.Time     `json:"process_date"`
	FirstRun      bool          `json:"first_run"`
	BatchRows     int           `json:"batch_rows"`
	RejectedRows  int           `json:"rejected_rows"`
	DuplicateRows int           `json:"duplicate_rows"`
	ScopeKeys     int           `json:"scope_keys"`
	LookbackRows  int           `json:"lookback_rows"`
	OutputRows    int           `json:"output_rows"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Job wires the stores and engine parameters for batch session runs. One Job
// serves many runs; all per-run state lives on the stack.
type Job struct {
	rawStore     storage.RawEventStore
	sessionStore storage.SessionStore
	builder      *session.Builder
	runCfg       config.RunConfig
}

// NewJob creates a Job from config and stores.
func NewJob(rawStore storage.RawEventStore, sessionStore storage.SessionStore, cfg config.RunConfig, profiles []session.Profile) *Job {
	return &Job{
		rawStore:     rawStore,
		sessionStore: sessionStore,
		builder: session.NewBuilder(
			cfg.Timeout(),
			session.NewActionSet(cfg.ActionCodes),
			profiles,
			cfg.WorkerCount,
		),
		runCfg: cfg,
	}
}

// Run executes one batch run: fetch → validate → dedup → resolve scope →
// union with lookback → build → merge. A failed run returns before the merge
// transaction commits, leaving the cleaned layer exactly as it was.
func (j *Job) Run(ctx context.Context, params Params) (*Summary, error) {
	started := time.Now()
	processDate := session.PDateOf(params.ProcessDate)

	slog.Info("[Run] Starting session run",
		"process_date", processDate.Format("2006-01-02"),
		"first_run", params.FirstRun,
		"session_timeout", j.runCfg.SessionTimeout,
		"lookback_days", j.runCfg.LookbackDays,
		"extended_lookback_days", j.runCfg.ExtendedLookbackDays,
	)

	batch, err := j.rawStore.FetchBatch(ctx, processDate)
	if err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}

	summary := &Summary{
		ProcessDate: processDate,
		FirstRun:    params.FirstRun,
		BatchRows:   len(batch),
	}

	batch, rejected, err := j.validateBatch(batch)
	if err != nil {
		return nil, err
	}
	summary.RejectedRows = rejected

	deduped, conflicts := session.Dedup(batch)
	summary.DuplicateRows = len(batch) - len(deduped)
	if err := j.applyViolationPolicy(conflicts); err != nil {
		return nil, err
	}

	working := deduped

	scope := Resolve(deduped, processDate, j.runCfg.ExtendedLookbackDays)
	summary.ScopeKeys = len(scope.Keys)

	if !params.FirstRun {
		floor, err := j.rawStore.RetentionFloor(ctx)
		if err != nil {
			return nil, fmt.Errorf("retention floor: %w", err)
		}
		if err := scope.CheckRetention(floor, j.runCfg.RetentionDays); err != nil {
			return nil, err
		}

		lookback, err := j.sessionStore.FetchLookback(ctx, scope.Keys, scope.From)
		if err != nil {
			return nil, fmt.Errorf("fetch lookback: %w", err)
		}
		summary.LookbackRows = len(lookback)

		// The batch may re-deliver rows already persisted (the lookback
		// slice holds their prior incarnation); the union collapses them
		// before recomputation.
		union := make([]v1.RawEvent, 0, len(lookback)+len(working))
		union = append(union, lookback...)
		union = append(union, working...)
		working, conflicts = session.Dedup(union)
		if err := j.applyViolationPolicy(conflicts); err != nil {
			return nil, err
		}
	}

	rows, err := j.builder.BuildAll(ctx, working)
	if err != nil {
		return nil, fmt.Errorf("build sessions: %w", err)
	}
	summary.OutputRows = len(rows)

	if params.FirstRun {
		if err := j.sessionStore.Bootstrap(ctx, rows); err != nil {
			return nil, fmt.Errorf("bootstrap write: %w", err)
		}
	} else {
		if err := j.sessionStore.Merge(ctx, rows); err != nil {
			return nil, fmt.Errorf("merge write: %w", err)
		}
	}

	summary.Elapsed = time.Since(started)

	slog.Info("[Run] Session run complete",
		"process_date", processDate.Format("2006-01-02"),
		"batch_rows", summary.BatchRows,
		"rejected_rows", summary.RejectedRows,
		"duplicate_rows", summary.DuplicateRows,
		"scope_keys", summary.ScopeKeys,
		"lookback_rows", summary.LookbackRows,
		"output_rows", summary.OutputRows,
		"elapsed", summary.Elapsed,
	)

	return summary, nil
}

// validateBatch applies the schema-violation policy to malformed rows:
// reject_row drops and logs them, reject_batch fails the run on the first.
func (j *Job) validateBatch(batch []v1.RawEvent) ([]v1.RawEvent, int, error) {
	valid := make([]v1.RawEvent, 0, len(batch))
	rejected := 0
	for _, e := range batch {
		if err := e.Validate(); err != nil {
			if j.runCfg.OnSchemaViolation == config.ViolationRejectBatch {
				return nil, 0, fmt.Errorf("schema violation (ingest_seq=%d): %w", e.IngestSeq, err)
			}
			rejected++
			slog.Warn("[Run] Rejecting malformed row",
				"ingest_seq", e.IngestSeq,
				"error", err,
			)
			continue
		}
		valid = append(valid, e)
	}
	return valid, rejected, nil
}

// applyViolationPolicy handles near-duplicates: identity tuple collisions
// with differing payloads. These are upstream inconsistencies, never a
// silent pick-one.
func (j *Job) applyViolationPolicy(conflicts []session.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	if j.runCfg.OnSchemaViolation == config.ViolationRejectBatch {
		return fmt.Errorf("schema violation: %d identity-tuple collisions with differing payloads (first: %s)",
			len(conflicts), session.NaturalKey(conflicts[0].Kept))
	}
	for _, c := range conflicts {
		slog.Warn("[Run] Dropping near-duplicate with differing payload",
			"natural_key", session.NaturalKey(c.Dropped),
		)
	}
	return nil
}
