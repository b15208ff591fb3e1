// Package api exposes narration jobs over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loqalabs/loqa-narrate/internal/eventstore"
	"github.com/loqalabs/loqa-narrate/internal/protocol"
)

// Submitter queues narration requests.
type Submitter interface {
	Submit(req protocol.NarrationRequest) (string, error)
}

// JobReader looks up recorded jobs and their history.
type JobReader interface {
	GetJob(ctx context.Context, id string) (eventstore.Job, error)
	ListJobEvents(ctx context.Context, jobID string, limit int) ([]eventstore.Event, error)
}

// Options wires the router to the daemon. Nil fields disable the routes that
// need them.
type Options struct {
	Submitter Submitter
	Jobs      JobReader
	Ready     func() bool
	Metrics   http.Handler
	Logger    *slog.Logger
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "api"))

	RegisterHealthRoutes(r, opts.Ready)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	RegisterNarrationRoutes(r, opts.Submitter, opts.Jobs, logger)
	return r
}
