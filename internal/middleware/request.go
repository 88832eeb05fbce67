package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequestLoggerMiddleware logs one line per request once the handler returns.
func (mw *MiddlewareManager) RequestLoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		req := c.Request()
		mw.logger.Infof("RequestID: %s, Method: %s, URI: %s, Status: %v, IP: %s, Time: %s",
			utils.GetRequestID(c),
			req.Method,
			req.URL.String(),
			c.Response().Status,
			utils.GetIPAddress(c),
			time.Since(start).String(),
		)
		return nil
	}
}

// UploadLimit caps request bodies at the configured upload size.
func (mw *MiddlewareManager) UploadLimit() echo.MiddlewareFunc {
	return middleware.BodyLimit(fmt.Sprintf("%dM", mw.cfg.Server.MaxUploadMB))
}

func (mw *MiddlewareManager) CORS() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: mw.origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
		MaxAge:       300,
	})
}
