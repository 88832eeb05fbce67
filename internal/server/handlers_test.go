package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/events"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardObjectStore struct{}

func (discardObjectStore) EnsureBucket(context.Context) error { return nil }
func (discardObjectStore) PutObject(_ context.Context, in *models.UploadInput) (string, error) {
	return "mem://" + in.Key, nil
}
func (discardObjectStore) GetObject(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (discardObjectStore) GetPresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "mem://" + key, nil
}
func (discardObjectStore) RemoveObject(context.Context, string) error { return nil }

func setupServer(t *testing.T) (*miniredis.Miniredis, *Server) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{MaxUploadMB: 1},
		Redis:  config.RedisConfig{KeyPrefix: "test:", JobTTL: time.Hour},
		Worker: config.WorkerConfig{Capacity: 3, JobTimeout: time.Minute, PollInterval: time.Second, TempDir: t.TempDir()},
	}
	s := NewServer(cfg, nil, client, discardObjectStore{}, events.NewNoopPublisher(), logger.NewNop())
	require.NoError(t, s.MapHandlers(s.echo))
	return mr, s
}

func TestHealthCheck(t *testing.T) {
	mr, s := setupServer(t)
	_, err := mr.RPush("test:queue", "a", "b")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, 3, resp.Capacity)
	assert.Equal(t, 0, resp.Running)
	assert.Equal(t, int64(2), resp.Queued)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHealthCheckStoreDown(t *testing.T) {
	mr, s := setupServer(t)
	mr.Close()

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobRoutesMapped(t *testing.T) {
	_, s := setupServer(t)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
