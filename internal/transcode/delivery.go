package transcode

import "github.com/labstack/echo/v4"

type Handler interface {
	Submit() echo.HandlerFunc
	GetStatus() echo.HandlerFunc
	ListJobs() echo.HandlerFunc
}
