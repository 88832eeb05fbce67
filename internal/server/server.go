package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/worker"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

const (
	maxHeaderBytes = 1 << 20
	ctxTimeout     = 5
)

type Server struct {
	echo        *echo.Echo
	cfg         *config.Config
	db          *sqlx.DB
	redisClient *redis.Client
	objects     transcode.ObjectStore
	publisher   transcode.EventPublisher
	logger      logger.Logger

	store transcode.JobStore
	pool  *worker.Pool
}

// NewServer builds the HTTP server. db may be nil when job history is
// disabled.
func NewServer(
	cfg *config.Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	objects transcode.ObjectStore,
	publisher transcode.EventPublisher,
	logger logger.Logger,
) *Server {
	return &Server{
		echo:        echo.New(),
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
		objects:     objects,
		publisher:   publisher,
		logger:      logger,
	}
}

// Run serves until SIGINT or SIGTERM, then stops accepting requests, lets
// running jobs finish and closes the event publisher.
func (s *Server) Run(ctx context.Context) error {
	if err := s.MapHandlers(s.echo); err != nil {
		return err
	}
	if err := s.objects.EnsureBucket(ctx); err != nil {
		return err
	}
	if err := s.pool.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:           s.cfg.Server.Port,
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		MaxHeaderBytes: maxHeaderBytes,
	}
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Infof("Server is listening on PORT: %s", s.cfg.Server.Port)
		if err := s.echo.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, os.Interrupt)
	defer signal.Stop(quit)

	var runErr error
	select {
	case <-quit:
	case <-ctx.Done():
	case runErr = <-serverErr:
		s.logger.Errorf("error starting server: %v", runErr)
	}

	shutdownCtx, shutdown := context.WithTimeout(context.Background(), time.Second*ctxTimeout)
	defer shutdown()
	s.logger.Infof("shutting down server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("http shutdown: %v", err)
	}

	s.logger.Infof("waiting for %d running jobs", s.pool.Running())
	s.pool.Stop()

	if err := s.publisher.Close(); err != nil {
		s.logger.Errorf("close event publisher: %v", err)
	}
	return runErr
}
