package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"bazaarchat/internal/usecase"
	"bazaarchat/pkg/errors"
	"bazaarchat/pkg/response"
	"bazaarchat/pkg/utils"
)

type NotificationHandler struct {
	notificationUseCase *usecase.NotificationUseCase
}

func NewNotificationHandler(notificationUseCase *usecase.NotificationUseCase) *NotificationHandler {
	return &NotificationHandler{
		notificationUseCase: notificationUseCase,
	}
}

type markAsReadRequest struct {
	IDs []string `json:"ids" validate:"max=500,dive,notblank"`
}

type transactionEventRequest struct {
	Type string `json:"type" validate:"notblank"`
}

// ListNotifications returns the caller's inbox, newest first. Pass
// ?chat_only=true for the chat dropdown.
func (h *NotificationHandler) ListNotifications(c echo.Context) error {
	chatOnly := false
	if raw := c.QueryParam("chat_only"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return response.Error(c, errors.BadRequest("chat_only must be a boolean", err))
		}
		chatOnly = parsed
	}

	return withSession(c, func(session usecase.Session) error {
		notifications, err := h.notificationUseCase.ListNotifications(c.Request().Context(), session.Identity, chatOnly)
		if err != nil {
			return response.Error(c, err)
		}

		pagination := utils.GetPaginationParams(c)
		start, end := pagination.Window(len(notifications))
		return response.Paginated(c, notifications[start:end], int64(len(notifications)), pagination.Page, pagination.PageSize)
	})
}

func (h *NotificationHandler) UnreadCounts(c echo.Context) error {
	return withSession(c, func(session usecase.Session) error {
		counts, err := h.notificationUseCase.UnreadCounts(c.Request().Context(), session.Identity)
		if err != nil {
			return response.Error(c, err)
		}
		return response.Success(c, counts)
	})
}

func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	var req markAsReadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	return withSession(c, func(session usecase.Session) error {
		if err := h.notificationUseCase.MarkAsRead(c.Request().Context(), session.Identity, req.IDs); err != nil {
			return response.Error(c, err)
		}
		return response.Success(c, map[string]int{"marked": len(req.IDs)})
	})
}

// ReportTransactionEvent is called by the client after an escrow action
// succeeds on chain.
func (h *NotificationHandler) ReportTransactionEvent(c echo.Context) error {
	var req transactionEventRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	return withSession(c, func(session usecase.Session) error {
		err := h.notificationUseCase.NotifyTransactionEvent(c.Request().Context(), session, c.Param("itemId"), req.Type)
		if err != nil {
			return response.Error(c, err)
		}
		return response.Created(c, map[string]string{"type": req.Type, "item_id": c.Param("itemId")})
	})
}
