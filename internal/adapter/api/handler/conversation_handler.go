package handler

import (
	"github.com/labstack/echo/v4"

	"bazaarchat/internal/usecase"
	"bazaarchat/pkg/response"
	"bazaarchat/pkg/utils"
)

type ConversationHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewConversationHandler(chatUseCase *usecase.ChatUseCase) *ConversationHandler {
	return &ConversationHandler{
		chatUseCase: chatUseCase,
	}
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"notblank,max=4000"`
}

// OpenItemConversation returns the item's conversation and its latest
// messages, migrating it first if the item gained a moderator.
func (h *ConversationHandler) OpenItemConversation(c echo.Context) error {
	return withSession(c, func(session usecase.Session) error {
		view, err := h.chatUseCase.OpenItemConversation(c.Request().Context(), session, c.Param("itemId"))
		if err != nil {
			return response.Error(c, err)
		}
		return response.Success(c, view)
	})
}

func (h *ConversationHandler) SendItemMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	return withSession(c, func(session usecase.Session) error {
		msg, err := h.chatUseCase.SendItemMessage(c.Request().Context(), session, c.Param("itemId"), req.Content)
		if err != nil {
			return response.Error(c, err)
		}
		return response.Created(c, msg)
	})
}

func (h *ConversationHandler) OpenDirectConversation(c echo.Context) error {
	return withSession(c, func(session usecase.Session) error {
		view, err := h.chatUseCase.OpenDirectConversation(c.Request().Context(), session, c.Param("peer"))
		if err != nil {
			return response.Error(c, err)
		}
		return response.Success(c, view)
	})
}

func (h *ConversationHandler) SendDirectMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	return withSession(c, func(session usecase.Session) error {
		msg, err := h.chatUseCase.SendDirectMessage(c.Request().Context(), session, c.Param("peer"), req.Content)
		if err != nil {
			return response.Error(c, err)
		}
		return response.Created(c, msg)
	})
}

func (h *ConversationHandler) SendConversationMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return response.Error(c, err)
	}

	return withSession(c, func(session usecase.Session) error {
		msg, err := h.chatUseCase.SendToConversation(c.Request().Context(), session, c.Param("id"), req.Content)
		if err != nil {
			return response.Error(c, err)
		}
		return response.Created(c, msg)
	})
}

func (h *ConversationHandler) ListConversations(c echo.Context) error {
	return withSession(c, func(session usecase.Session) error {
		convs, err := h.chatUseCase.ListConversations(c.Request().Context(), session)
		if err != nil {
			return response.Error(c, err)
		}

		pagination := utils.GetPaginationParams(c)
		start, end := pagination.Window(len(convs))
		return response.Paginated(c, convs[start:end], int64(len(convs)), pagination.Page, pagination.PageSize)
	})
}

// GetMessages pages through the full history, oldest first.
func (h *ConversationHandler) GetMessages(c echo.Context) error {
	return withSession(c, func(session usecase.Session) error {
		msgs, err := h.chatUseCase.GetMessages(c.Request().Context(), session, c.Param("id"))
		if err != nil {
			return response.Error(c, err)
		}

		pagination := utils.GetPaginationParams(c)
		start, end := pagination.Window(len(msgs))
		return response.Paginated(c, msgs[start:end], int64(len(msgs)), pagination.Page, pagination.PageSize)
	})
}
