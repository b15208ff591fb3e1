package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loqalabs/loqa-narrate/internal/eventstore"
	"github.com/loqalabs/loqa-narrate/internal/protocol"
	"github.com/loqalabs/loqa-narrate/internal/service"
)

const maxEventsPerPage = 500

type jobResponse struct {
	JobID     string          `json:"job_id"`
	Status    string          `json:"status"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Events    []eventResponse `json:"events"`
}

type eventResponse struct {
	Type      string          `json:"type"`
	TraceID   string          `json:"trace_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type narrationHandlers struct {
	submitter Submitter
	jobs      JobReader
	log       *slog.Logger
}

// RegisterNarrationRoutes registers job submission and lookup.
func RegisterNarrationRoutes(r *gin.Engine, submitter Submitter, jobs JobReader, logger *slog.Logger) {
	h := &narrationHandlers{submitter: submitter, jobs: jobs, log: logger}
	v1 := r.Group("/v1")
	if submitter != nil {
		v1.POST("/narrations", h.create)
	}
	if jobs != nil {
		v1.GET("/narrations/:id", h.get)
		v1.GET("/narrations/:id/events", h.get)
	}
}

func (h *narrationHandlers) create(c *gin.Context) {
	var req protocol.NarrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.submitter.Submit(req)
	switch {
	case errors.Is(err, service.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.log.Info("narration accepted", slog.String("job_id", id))
	c.JSON(http.StatusAccepted, protocol.NarrationAck{JobID: id, Accepted: true})
}

func (h *narrationHandlers) get(c *gin.Context) {
	id := c.Param("id")
	job, err := h.jobs.GetJob(c.Request.Context(), id)
	if errors.Is(err, eventstore.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		h.log.Error("failed to load job", slog.String("job_id", id), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventsPerPage)
	}
	events, err := h.jobs.ListJobEvents(c.Request.Context(), id, limit)
	if err != nil {
		h.log.Error("failed to list job events", slog.String("job_id", id), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list job events"})
		return
	}

	resp := jobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Output:    job.Output,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
		Events:    make([]eventResponse, 0, len(events)),
	}
	for _, e := range events {
		ev := eventResponse{Type: e.Type, TraceID: e.TraceID, CreatedAt: e.CreatedAt}
		if json.Valid(e.Payload) {
			ev.Payload = json.RawMessage(e.Payload)
		}
		resp.Events = append(resp.Events, ev)
	}
	c.JSON(http.StatusOK, resp)
}
