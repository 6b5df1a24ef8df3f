package query

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	httperr "github.com/lumenlake/sessionizer/internal/core/errors"
	"github.com/lumenlake/sessionizer/internal/run"
)

// Runner executes one batch session run. Satisfied by *run.Job.
type Runner interface {
	Run(ctx context.Context, params run.Params) (*run.Summary, error)
}

// Handler exposes the ops surface: session queries over the cleaned layer
// and run trigger/status endpoints backed by the tracker.
type Handler struct {
	svc     *Service
	job     Runner
	tracker *run.Tracker
}

// NewHandler creates the ops API handler.
func NewHandler(svc *Service, job Runner, tracker *run.Tracker) *Handler {
	if svc == nil {
		panic("query: service must not be nil")
	}
	if job == nil {
		panic("query: job must not be nil")
	}
	if tracker == nil {
		panic("query: tracker must not be nil")
	}
	return &Handler{svc: svc, job: job, tracker: tracker}
}

// RegisterRoutes registers the ops API routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/sessions/:user_id/:product_code", h.HandleQuerySessions)
	r.POST("/v1/runs", h.HandleTriggerRun)
	r.GET("/v1/runs/:id", h.HandleGetRun)
}

// HandleQuerySessions handles GET /v1/sessions/:user_id/:product_code
// Query parameters: start, end, limit.
func (h *Handler) HandleQuerySessions(c *gin.Context) {
	var uri struct {
		UserID      string `uri:"user_id" binding:"required"`
		ProductCode string `uri:"product_code" binding:"required"`
	}
	var query struct {
		Start time.Time `form:"start" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		End   time.Time `form:"end" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
		Limit int       `form:"limit"`
	}

	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParams,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}

	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParams,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := h.svc.QuerySessions(c.Request.Context(), SessionQueryRequest{
		UserID:      uri.UserID,
		ProductCode: uri.ProductCode,
		Start:       query.Start,
		End:         query.End,
		Limit:       query.Limit,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidQueryError,
				Message:   "Invalid session query",
				Details:   err.Error(),
			})
			return
		}

		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to query sessions",
			Details:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleTriggerRun handles POST /v1/runs. The run executes asynchronously;
// the response carries the run ID for status polling. A second trigger while
// a run is in flight returns 409 — single writer per scope is enforced here.
func (h *Handler) HandleTriggerRun(c *gin.Context) {
	var body struct {
		ProcessDate string `json:"process_date" binding:"required"`
		FirstRun    bool   `json:"first_run"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParams,
			Message:   "Invalid run request body",
			Details:   err.Error(),
		})
		return
	}

	processDate, err := time.Parse("2006-01-02", body.ProcessDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidParams,
			Message:   "process_date must be YYYY-MM-DD",
			Details:   err.Error(),
		})
		return
	}

	params := run.Params{ProcessDate: processDate, FirstRun: body.FirstRun}
	rec, err := h.tracker.Begin(params)
	if err != nil {
		if errors.Is(err, run.ErrRunInFlight) {
			c.JSON(http.StatusConflict, httperr.ErrorResponse{
				ErrorType: httperr.HttpRunInFlightError,
				Message:   "A run is already in flight",
			})
			return
		}

		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to register run",
			Details:   err.Error(),
		})
		return
	}

	// The run outlives the HTTP request; it must not inherit its deadline.
	go func() {
		summary, runErr := h.job.Run(context.Background(), params)
		h.tracker.Finish(rec.ID, summary, runErr)
		if runErr != nil {
			slog.Error("[OpsAPI] Triggered run failed", "run_id", rec.ID, "error", runErr)
		}
	}()

	c.JSON(http.StatusAccepted, rec)
}

// HandleGetRun handles GET /v1/runs/:id.
func (h *Handler) HandleGetRun(c *gin.Context) {
	id := c.Param("id")
	rec, ok := h.tracker.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpRunNotFoundError,
			Message:   "Unknown run ID",
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}
