package query

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlake/sessionizer/internal/run"
)

// stubRunner lets a test hold a triggered run open (via gate) and observe
// the params it was invoked with.
type stubRunner struct {
	gate    chan struct{}
	err     error
	params  chan run.Params
	summary *run.Summary
}

func newStubRunner() *stubRunner {
	return &stubRunner{params: make(chan run.Params, 1)}
}

func (r *stubRunner) Run(_ context.Context, params run.Params) (*run.Summary, error) {
	r.params <- params
	if r.gate != nil {
		<-r.gate
	}
	return r.summary, r.err
}

func newTestRouter(t *testing.T, svc *Service, runner Runner) (*gin.Engine, *run.Tracker) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tracker := run.NewTracker()
	h := NewHandler(svc, runner, tracker)
	r := gin.New()
	h.RegisterRoutes(r)
	return r, tracker
}

func TestHandler_QuerySessions_StatusMapping(t *testing.T) {
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	tests := []struct {
		name           string
		url            string
		store          *stubSessionStore
		expectedStatus int
	}{
		{
			name: "happy path returns 200",
			url: fmt.Sprintf("/v1/sessions/u1/p1?start=%s&end=%s",
				start.Format(time.RFC3339), end.Format(time.RFC3339)),
			store:          &stubSessionStore{},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing range returns 400",
			url:            "/v1/sessions/u1/p1",
			store:          &stubSessionStore{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "inverted range returns 400",
			url: fmt.Sprintf("/v1/sessions/u1/p1?start=%s&end=%s",
				end.Format(time.RFC3339), start.Format(time.RFC3339)),
			store:          &stubSessionStore{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "store failure returns 500",
			url: fmt.Sprintf("/v1/sessions/u1/p1?start=%s&end=%s",
				start.Format(time.RFC3339), end.Format(time.RFC3339)),
			store:          &stubSessionStore{err: fmt.Errorf("db failure")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRouter(t, NewService(tc.store), newStubRunner())

			req := httptest.NewRequest(http.MethodGet, tc.url, nil)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			if resp.Code != tc.expectedStatus {
				t.Logf("unexpected response body: %s", resp.Body.String())
			}
			require.Equal(t, tc.expectedStatus, resp.Code)
		})
	}
}

func TestHandler_TriggerRun_AcceptsAndTracks(t *testing.T) {
	runner := newStubRunner()
	runner.summary = &run.Summary{OutputRows: 3}
	r, tracker := newTestRouter(t, NewService(&stubSessionStore{}), runner)

	body := `{"process_date":"2026-08-20","first_run":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusAccepted, resp.Code)

	var rec run.Record
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &rec))
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, run.StateRunning, rec.State)

	params := <-runner.params
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), params.ProcessDate)
	assert.True(t, params.FirstRun)

	require.Eventually(t, func() bool {
		got, ok := tracker.Get(rec.ID)
		return ok && got.State == run.StateSucceeded
	}, time.Second, 5*time.Millisecond)

	got, ok := tracker.Get(rec.ID)
	require.True(t, ok)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 3, got.Summary.OutputRows)
}

func TestHandler_TriggerRun_ConflictWhileInFlight(t *testing.T) {
	runner := newStubRunner()
	runner.gate = make(chan struct{})
	r, tracker := newTestRouter(t, NewService(&stubSessionStore{}), runner)

	body := `{"process_date":"2026-08-20"}`
	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(first, req)
	require.Equal(t, http.StatusAccepted, first.Code)
	<-runner.params // first run is now executing

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(second, req)
	require.Equal(t, http.StatusConflict, second.Code)

	close(runner.gate)

	var rec run.Record
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &rec))
	require.Eventually(t, func() bool {
		got, ok := tracker.Get(rec.ID)
		return ok && got.State == run.StateSucceeded
	}, time.Second, 5*time.Millisecond)
}

func TestHandler_TriggerRun_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing process_date", body: `{"first_run":true}`},
		{name: "malformed date", body: `{"process_date":"20-08-2026"}`},
		{name: "not json", body: `process_date=2026-08-20`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRouter(t, NewService(&stubSessionStore{}), newStubRunner())

			req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)
			require.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestHandler_GetRun_UnknownID(t *testing.T) {
	r, _ := newTestRouter(t, NewService(&stubSessionStore{}), newStubRunner())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/does-not-exist", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandler_RunFailureIsRecorded(t *testing.T) {
	runner := newStubRunner()
	runner.err = fmt.Errorf("merge conflict")
	r, tracker := newTestRouter(t, NewService(&stubSessionStore{}), runner)

	body := `{"process_date":"2026-08-20"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusAccepted, resp.Code)

	var rec run.Record
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &rec))
	require.Eventually(t, func() bool {
		got, ok := tracker.Get(rec.ID)
		return ok && got.State == run.StateFailed
	}, time.Second, 5*time.Millisecond)

	got, _ := tracker.Get(rec.ID)
	assert.Contains(t, got.Error, "merge conflict")
}
