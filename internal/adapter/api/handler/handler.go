package handler

import (
	"github.com/labstack/echo/v4"

	"bazaarchat/internal/adapter/api/middleware"
	"bazaarchat/internal/infrastructure/websocket"
	"bazaarchat/internal/usecase"
	"bazaarchat/pkg/response"
)

var (
	healthHandler       *HealthHandler
	conversationHandler *ConversationHandler
	notificationHandler *NotificationHandler
	webSocketHandler    *WebSocketHandler
)

func Setup(
	chatUseCase *usecase.ChatUseCase,
	notificationUseCase *usecase.NotificationUseCase,
	wsManager *websocket.Manager,
	storeDriver string,
) {
	healthHandler = NewHealthHandler(storeDriver)
	conversationHandler = NewConversationHandler(chatUseCase)
	notificationHandler = NewNotificationHandler(notificationUseCase)
	webSocketHandler = NewWebSocketHandler(wsManager, chatUseCase)
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func GetConversationHandler() *ConversationHandler {
	return conversationHandler
}

func GetNotificationHandler() *NotificationHandler {
	return notificationHandler
}

func GetWebSocketHandler() *WebSocketHandler {
	return webSocketHandler
}

// bindAndValidate binds the request body into req and runs the validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

// withSession runs fn with the authenticated session or writes the error.
func withSession(c echo.Context, fn func(session usecase.Session) error) error {
	session, err := middleware.SessionFrom(c)
	if err != nil {
		return response.Error(c, err)
	}
	return fn(session)
}
