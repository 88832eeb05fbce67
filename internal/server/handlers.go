package server

import (
	"net/http"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/encoder"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/middleware"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	transcodeHttp "github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode/delivery/http"
	transcodeRepository "github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode/repository"
	transcodeUsecase "github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode/usecase"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/worker"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/utils"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

type healthResponse struct {
	Status   string  `json:"status"`
	CPUUsage float64 `json:"cpu_usage"`
	Running  int     `json:"running"`
	Queued   int64   `json:"queued"`
	Capacity int     `json:"capacity"`
}

func (s *Server) MapHandlers(e *echo.Echo) error {
	s.store = transcodeRepository.NewJobRedisRepo(s.redisClient, s.cfg.Redis.KeyPrefix, s.cfg.Redis.JobTTL)
	var history transcode.HistoryRepository
	if s.db != nil {
		history = transcodeRepository.NewHistoryRepo(s.db)
	} else {
		history = transcodeRepository.NewNoopHistoryRepo()
	}

	engine := encoder.NewEngine(s.cfg, s.logger)
	s.pool = worker.NewPool(s.cfg, s.logger, s.store, s.objects, history, engine, s.publisher)

	transcodeUC := transcodeUsecase.NewTranscodeUseCase(s.cfg, s.store, s.objects, history, s.pool, s.publisher, s.logger)
	transcodeHandlers := transcodeHttp.NewTranscodeHandler(transcodeUC, s.logger)

	mw := middleware.NewMiddlewareManager(s.cfg, []string{"*"}, s.logger)
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.Recover())
	e.Use(mw.RequestLoggerMiddleware)
	e.Use(mw.CORS())
	e.Use(mw.UploadLimit())

	v1 := e.Group("/api/v1")
	health := v1.Group("/health")

	transcodeHttp.MapTranscodeRoutes(v1, transcodeHandlers)
	health.GET("", s.healthCheck)
	return nil
}

func (s *Server) healthCheck(c echo.Context) error {
	s.logger.Debugf("Health check RequestID: %s", utils.GetRequestID(c))
	resp := healthResponse{
		Status:   "OK",
		Running:  s.pool.Running(),
		Capacity: s.pool.Capacity(),
	}
	if usage, err := utils.CPUUsage(); err == nil {
		resp.CPUUsage = usage
	}
	queued, err := s.store.QueueLength(c.Request().Context())
	if err != nil {
		s.logger.Errorf("health check queue length: %v", err)
		resp.Status = "DEGRADED"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	resp.Queued = queued
	return c.JSON(http.StatusOK, resp)
}
