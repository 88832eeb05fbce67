package http

import (
	"errors"
	"net/http"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/models"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/logger"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const videoFileField = "videoFile"

type transcodeHandler struct {
	transcodeUC transcode.UseCase
	logger      logger.Logger
}

func NewTranscodeHandler(transcodeUC transcode.UseCase, log logger.Logger) transcode.Handler {
	return &transcodeHandler{
		transcodeUC: transcodeUC,
		logger:      log,
	}
}

func (h *transcodeHandler) Submit() echo.HandlerFunc {
	return func(c echo.Context) error {
		fileHeader, err := c.FormFile(videoFileField)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "videoFile is required"})
		}
		file, err := fileHeader.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid upload"})
		}
		defer file.Close()

		input := &models.SubmitInput{
			File:       file,
			FileName:   fileHeader.Filename,
			FileSize:   fileHeader.Size,
			MimeType:   fileHeader.Header.Get(echo.HeaderContentType),
			Format:     c.FormValue("format"),
			Bitrate:    c.FormValue("bitrate"),
			Resolution: c.FormValue("resolution"),
		}
		status, err := h.transcodeUC.Submit(c.Request().Context(), input)
		if err != nil {
			return h.errorResponse(c, "Submit", err)
		}
		return c.JSON(http.StatusAccepted, status)
	}
}

func (h *transcodeHandler) GetStatus() echo.HandlerFunc {
	return func(c echo.Context) error {
		status, err := h.transcodeUC.Status(c.Request().Context(), c.Param("job_id"))
		if err != nil {
			return h.errorResponse(c, "GetStatus", err)
		}
		return c.JSON(http.StatusOK, status)
	}
}

func (h *transcodeHandler) ListJobs() echo.HandlerFunc {
	return func(c echo.Context) error {
		pagination, err := utils.GetPaginationFromCtx(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		jobs, err := h.transcodeUC.ListJobs(c.Request().Context(), pagination)
		if err != nil {
			return h.errorResponse(c, "ListJobs", err)
		}
		return c.JSON(http.StatusOK, jobs)
	}
}

func (h *transcodeHandler) errorResponse(c echo.Context, op string, err error) error {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.Errorf("%s RequestID: %s, ERROR: %v", op, utils.GetRequestID(c), err)
	}
	return c.JSON(code, map[string]string{"error": err.Error()})
}

// StatusCode maps domain errors onto HTTP status codes.
func StatusCode(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest
	case errors.Is(err, transcode.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, transcode.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, transcode.ErrUploadFailed):
		return http.StatusBadGateway
	case errors.Is(err, transcode.ErrHistoryDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
