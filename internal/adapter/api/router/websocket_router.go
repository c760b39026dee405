package router

import (
	"github.com/labstack/echo/v4"

	"bazaarchat/internal/adapter/api/handler"
	"bazaarchat/internal/adapter/api/middleware"
)

// SetupWebSocketRouter mounts the realtime endpoint. The auth middleware
// accepts ?token= here because browsers cannot send headers on upgrade.
func SetupWebSocketRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	wsHandler := handler.GetWebSocketHandler()
	e.GET("/ws", wsHandler.HandleWebSocket, authMiddleware.Authenticate)
}
