package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaarchat/internal/adapter/api"
	"bazaarchat/internal/adapter/api/handler"
	"bazaarchat/internal/adapter/api/middleware"
	"bazaarchat/internal/adapter/repository"
	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/infrastructure/ratelimit"
	"bazaarchat/internal/infrastructure/realtime"
	"bazaarchat/internal/infrastructure/websocket"
	"bazaarchat/internal/usecase"
	"bazaarchat/pkg/config"
	"bazaarchat/pkg/errors"
)

const (
	seller = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	buyer  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type staticItems map[string]*entity.ItemTransaction

func (s staticItems) GetByItemID(ctx context.Context, itemID string) (*entity.ItemTransaction, error) {
	tx, ok := s[itemID]
	if !ok {
		return nil, errors.NotFound("Item", nil)
	}
	out := *tx
	return &out, nil
}

type anonymousProfiles struct{}

func (anonymousProfiles) GetByIdentity(ctx context.Context, identity string) (*entity.Profile, error) {
	return &entity.Profile{Address: identity}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type page struct {
	Items json.RawMessage `json:"items"`
	Total int64           `json:"total"`
}

func newServer(t *testing.T) *echo.Echo {
	t.Helper()

	items := staticItems{
		"7": {ItemID: "7", Title: "Vintage lamp", Seller: seller, Buyer: buyer},
	}
	convRepo := repository.NewMemoryConversationRepository()
	notifRepo := repository.NewMemoryNotificationRepository()
	wsManager := websocket.NewManager()
	limiter := ratelimit.NewRateLimiter()

	notifications := usecase.NewNotificationUseCase(notifRepo, items, wsManager, 0)
	chat := usecase.NewChatUseCase(
		convRepo,
		items,
		anonymousProfiles{},
		usecase.NewConversationUpgradeUseCase(convRepo),
		notifications,
		realtime.NewChannel(convRepo, realtime.DefaultWindow, time.Millisecond, 1),
		limiter,
		realtime.DefaultWindow,
	)
	handler.Setup(chat, notifications, wsManager, config.StoreMemory)

	e := echo.New()
	e.Validator = api.NewValidator()
	Setup(e, middleware.NewAuthMiddleware(nil, true), limiter)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, wallet, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if wallet != "" {
		req.Header.Set(middleware.WalletHeader, wallet)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func unreadCounts(t *testing.T, e *echo.Echo, wallet string) usecase.UnreadCounts {
	t.Helper()
	rec, env := do(t, e, http.MethodGet, "/v1/notifications/unread", wallet, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var counts usecase.UnreadCounts
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	return counts
}

func TestHealthCheck(t *testing.T) {
	e := newServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"store":"memory"`)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutesRequireIdentity(t *testing.T) {
	e := newServer(t)

	rec, env := do(t, e, http.MethodGet, "/v1/conversations", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, errors.CodeUnauthorized, env.Error.Code)
}

func TestItemChatFlow(t *testing.T) {
	e := newServer(t)

	rec, _ := do(t, e, http.MethodPost, "/v1/items/7/conversation/messages", buyer, `{"content":"is it still available?"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, e, http.MethodGet, "/v1/items/7/conversation", seller, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view usecase.ConversationView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.True(t, view.Stored)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "is it still available?", view.Messages[0].Content)

	rec, env = do(t, e, http.MethodPost, "/v1/conversations/"+view.Conversation.ID+"/messages", seller, `{"content":"yes"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = do(t, e, http.MethodGet, "/v1/conversations/"+view.Conversation.ID+"/messages?limit=1&page=2", buyer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history page
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.EqualValues(t, 2, history.Total)
	var msgs []*entity.Message
	require.NoError(t, json.Unmarshal(history.Items, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "yes", msgs[0].Content)

	rec, env = do(t, e, http.MethodGet, "/v1/conversations", buyer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var convs page
	require.NoError(t, json.Unmarshal(env.Data, &convs))
	assert.EqualValues(t, 1, convs.Total)

	assert.Equal(t, usecase.UnreadCounts{Chat: 1}, unreadCounts(t, e, seller))
	assert.Equal(t, usecase.UnreadCounts{Chat: 1}, unreadCounts(t, e, buyer))
}

func TestSendRejectsBlankContent(t *testing.T) {
	e := newServer(t)

	rec, env := do(t, e, http.MethodPost, "/v1/items/7/conversation/messages", buyer, `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, errors.CodeValidation, env.Error.Code)
}

func TestOutsiderCannotReadConversation(t *testing.T) {
	e := newServer(t)
	outsider := "0xcccccccccccccccccccccccccccccccccccccccc"

	rec, _ := do(t, e, http.MethodPost, "/v1/items/7/conversation/messages", buyer, `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/v1/items/7/conversation", outsider, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTransactionEventAndMarkAsRead(t *testing.T) {
	e := newServer(t)

	rec, _ := do(t, e, http.MethodPost, "/v1/items/7/events", buyer, `{"type":"item_bought"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/v1/items/7/events", buyer, `{"type":"not_an_event"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, usecase.UnreadCounts{Bell: 1}, unreadCounts(t, e, seller))

	rec, env := do(t, e, http.MethodGet, "/v1/notifications", seller, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox page
	require.NoError(t, json.Unmarshal(env.Data, &inbox))
	var notifications []*entity.Notification
	require.NoError(t, json.Unmarshal(inbox.Items, &notifications))
	require.Len(t, notifications, 1)
	assert.Equal(t, entity.NotificationTypeItemBought+"-7", notifications[0].ID)

	rec, _ = do(t, e, http.MethodPut, "/v1/notifications/read", seller, `{"ids":["`+notifications[0].ID+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usecase.UnreadCounts{}, unreadCounts(t, e, seller))

	rec, _ = do(t, e, http.MethodGet, "/v1/notifications?chat_only=maybe", seller, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkAsReadWithNoIDsIsANoop(t *testing.T) {
	e := newServer(t)

	rec, env := do(t, e, http.MethodPut, "/v1/notifications/read", seller, `{"ids":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 0, body["marked"])

	rec, _ = do(t, e, http.MethodPut, "/v1/notifications/read", seller, `{"ids":["  "]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHugePageReturnsEmptyPage(t *testing.T) {
	e := newServer(t)

	rec, _ := do(t, e, http.MethodPost, "/v1/items/7/conversation/messages", buyer, `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, path := range []string{
		"/v1/notifications?page=922337203685477580&limit=20",
		"/v1/conversations?page=922337203685477580&limit=20",
	} {
		rec, env := do(t, e, http.MethodGet, path, seller, "")
		require.Equal(t, http.StatusOK, rec.Code, path)

		var result page
		require.NoError(t, json.Unmarshal(env.Data, &result))
		assert.EqualValues(t, 1, result.Total, path)
		assert.JSONEq(t, `[]`, string(result.Items), path)
	}
}

func readFrame(t *testing.T, ws *gorillaws.Conn) websocket.ServerFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame websocket.ServerFrame
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

func TestWebSocketAcksSubscriptionBeforeMessages(t *testing.T) {
	e := newServer(t)
	rec, _ := do(t, e, http.MethodPost, "/v1/items/7/conversation/messages", buyer, `{"content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?wallet=" + buyer
	ws, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	// Each subscribe replaces the previous feed, so every round starts a
	// fresh first snapshot racing the ack.
	for i := 0; i < 20; i++ {
		require.NoError(t, ws.WriteJSON(map[string]string{"type": "subscribe", "item_id": "7"}))

		ack := readFrame(t, ws)
		require.Equal(t, websocket.FrameSubscribed, ack.Type, "round %d", i)
		require.NotEmpty(t, ack.ConversationID)

		first := readFrame(t, ws)
		require.Equal(t, websocket.FrameMessages, first.Type, "round %d", i)
		assert.Equal(t, ack.ConversationID, first.ConversationID)
		require.Len(t, first.Messages, 1)
		assert.Equal(t, "hello", first.Messages[0].Content)
	}

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, websocket.FramePong, readFrame(t, ws).Type)
}

func TestWebSocketRejectsUnknownFrames(t *testing.T) {
	srv := httptest.NewServer(newServer(t))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?wallet=" + seller
	ws, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "shout"}))
	frame := readFrame(t, ws)
	assert.Equal(t, websocket.FrameError, frame.Type)
	assert.Contains(t, frame.Error, "shout")

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "subscribe"}))
	assert.Equal(t, websocket.FrameError, readFrame(t, ws).Type)
}
