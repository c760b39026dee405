package handler

import (
	"context"
	"net/http"
	"sync"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"bazaarchat/internal/adapter/api/middleware"
	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/infrastructure/realtime"
	"bazaarchat/internal/infrastructure/websocket"
	"bazaarchat/internal/usecase"
	"bazaarchat/pkg/errors"
	"bazaarchat/pkg/logger"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced by the echo middleware in front of this route.
		return true
	},
}

type WebSocketHandler struct {
	manager     *websocket.Manager
	chatUseCase *usecase.ChatUseCase
	log         zerolog.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, chatUseCase *usecase.ChatUseCase) *WebSocketHandler {
	return &WebSocketHandler{
		manager:     manager,
		chatUseCase: chatUseCase,
		log:         logger.Component("websocket_handler"),
	}
}

// connection holds the live subscriptions of one socket.
type connection struct {
	ctx     context.Context
	session usecase.Session
	client  *websocket.Client

	mu   sync.Mutex
	subs map[string]realtime.Unsubscribe
}

func (conn *connection) add(id string, unsubscribe realtime.Unsubscribe) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if previous, ok := conn.subs[id]; ok {
		previous()
	}
	conn.subs[id] = unsubscribe
}

func (conn *connection) remove(id string) bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	unsubscribe, ok := conn.subs[id]
	if ok {
		unsubscribe()
		delete(conn.subs, id)
	}
	return ok
}

func (conn *connection) closeAll() {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	for id, unsubscribe := range conn.subs {
		unsubscribe()
		delete(conn.subs, id)
	}
}

// HandleWebSocket upgrades an authenticated request. Browsers cannot set
// headers on websocket requests, so the auth middleware also reads the
// token from the query string.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	session, err := middleware.SessionFrom(c)
	if err != nil {
		return err
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", session.Identity).Msg("websocket upgrade failed")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &connection{
		ctx:     ctx,
		session: session,
		client:  h.manager.NewClient(session.Identity, ws),
		subs:    make(map[string]realtime.Unsubscribe),
	}

	go conn.client.WritePump()
	conn.client.ReadPump(func(_ *websocket.Client, data []byte) {
		h.handleFrame(conn, data)
	})

	conn.closeAll()
	cancel()
	return nil
}

func (h *WebSocketHandler) handleFrame(conn *connection, data []byte) {
	frame, err := websocket.ParseClientFrame(data)
	if err != nil {
		conn.client.SendFrame(websocket.ServerFrame{Type: websocket.FrameError, Error: "malformed frame"})
		return
	}

	switch frame.Type {
	case websocket.FrameSubscribe:
		h.subscribe(conn, frame)

	case websocket.FrameUnsubscribe:
		if frame.ConversationID == "" {
			conn.client.SendFrame(websocket.ServerFrame{Type: websocket.FrameError, Error: "conversation_id is required"})
			return
		}
		conn.remove(frame.ConversationID)

	case websocket.FramePing:
		conn.client.SendFrame(websocket.ServerFrame{Type: websocket.FramePong})

	default:
		conn.client.SendFrame(websocket.ServerFrame{Type: websocket.FrameError, Error: "unknown frame type " + frame.Type})
	}
}

func (h *WebSocketHandler) subscribe(conn *connection, frame *websocket.ClientFrame) {
	ref := usecase.ConversationRef{
		ConversationID: frame.ConversationID,
		ItemID:         frame.ItemID,
		Peer:           frame.Peer,
	}

	client := conn.client
	// The feed starts inside Subscribe; its frames wait until the
	// subscribed ack is queued.
	acked := make(chan struct{})
	wait := func() bool {
		select {
		case <-acked:
			return true
		case <-conn.ctx.Done():
			return false
		}
	}

	id, unsubscribe, err := h.chatUseCase.Subscribe(conn.ctx, conn.session, ref,
		func(conversationID string, msgs []*entity.Message) {
			if !wait() {
				return
			}
			client.SendFrame(websocket.ServerFrame{
				Type:           websocket.FrameMessages,
				ConversationID: conversationID,
				Messages:       msgs,
			})
		},
		func(conversationID string, err error) {
			if !wait() {
				return
			}
			client.SendFrame(websocket.ServerFrame{
				Type:           websocket.FrameDeliveryError,
				ConversationID: conversationID,
				Error:          errorMessage(err),
			})
		},
	)
	if err != nil {
		close(acked)
		client.SendFrame(websocket.ServerFrame{Type: websocket.FrameError, Error: errorMessage(err)})
		return
	}

	conn.add(id, unsubscribe)
	client.SendFrame(websocket.ServerFrame{Type: websocket.FrameSubscribed, ConversationID: id})
	close(acked)
}

func errorMessage(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return "internal error"
}
