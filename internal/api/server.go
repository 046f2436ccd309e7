package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/config"
	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/internal/monitoring"
)

// Runner starts harvests. *harvest.Harvester satisfies it.
type Runner interface {
	RunMany(ctx context.Context, regions []string, filter string, fast bool, maxWorkers int) (map[domain.Region]int, error)
}

// RunStore persists the status of submitted runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *domain.RunStatus) error
	GetRun(ctx context.Context, id string) (*domain.RunStatus, error)
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	runner     Runner
	runs       RunStore
	gatherer   prometheus.Gatherer
	metrics    *monitoring.Metrics
	logger     *zap.Logger

	// harvests started by the API; Shutdown waits for them
	inflight sync.WaitGroup
	baseCtx  context.Context
	stop     context.CancelFunc
}

func NewServer(cfg *config.Config, r Runner, runs RunStore, g prometheus.Gatherer, m *monitoring.Metrics, l *zap.Logger) *Server {
	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		runner:   r,
		runs:     runs,
		gatherer: g,
		metrics:  m,
		logger:   l,
		baseCtx:  ctx,
		stop:     stop,
	}
	s.router = s.setupRouter()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, stops dispatching new pages for
// running harvests and waits for their started pages to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.stop()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
