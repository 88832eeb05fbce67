package http

import (
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/labstack/echo/v4"
)

func MapTranscodeRoutes(group *echo.Group, h transcode.Handler) {
	group.POST("/transcode", h.Submit())
	group.GET("/jobs", h.ListJobs())
	group.GET("/jobs/:job_id", h.GetStatus())
}
