package run

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRunInFlight is returned when a run trigger arrives while another run is
// executing. The merge step does not resolve write-write conflicts from
// concurrent recomputation, so the tracker enforces one writer at a time.
var ErrRunInFlight = errors.New("a session run is already in flight")

// State is the lifecycle state of a tracked run.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Record is the tracked view of one run.
type Record struct {
	ID         string     `json:"id"`
	Params     Params     `json:"params"`
	State      State      `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Summary    *Summary   `json:"summary,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Tracker is an in-memory run registry backing the ops API. It admits one
// run at a time and retains finished records for status queries.
type Tracker struct {
	mu     sync.Mutex
	runs   map[string]*Record
	active string
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[string]*Record)}
}

// Begin registers a new run and marks it active. Returns ErrRunInFlight if
// another run has not finished yet.
func (t *Tracker) Begin(params Params) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != "" {
		return nil, ErrRunInFlight
	}

	rec := &Record{
		ID:        uuid.NewString(),
		Params:    params,
		State:     StateRunning,
		StartedAt: time.Now().UTC(),
	}
	t.runs[rec.ID] = rec
	t.active = rec.ID
	return rec, nil
}

// Finish records the outcome of the active run and releases the writer slot.
func (t *Tracker) Finish(id string, summary *Summary, runErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.runs[id]
	if !ok {
		return
	}

	now := time.Now().UTC()
	rec.FinishedAt = &now
	rec.Summary = summary
	if runErr != nil {
		rec.State = StateFailed
		rec.Error = runErr.Error()
	} else {
		rec.State = StateSucceeded
	}

	if t.active == id {
		t.active = ""
	}
}

// Get returns a copy of the record for one run ID.
func (t *Tracker) Get(id string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.runs[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}
