package websocket

import (
	"encoding/json"
	"time"

	"bazaarchat/internal/domain/entity"
)

// Client frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
)

// Server frame types.
const (
	FrameMessages      = "messages"
	FrameDeliveryError = "delivery_error"
	FrameNotification  = "notification"
	FrameError         = "error"
	FramePong          = "pong"
	FrameSubscribed    = "subscribed"
)

// ClientFrame is what a browser sends. A subscription names either a
// conversation id, an item id or a direct-chat peer.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	ItemID         string `json:"item_id,omitempty"`
	Peer           string `json:"peer,omitempty"`
}

// ServerFrame is pushed to the browser. An empty messages frame omits the
// messages field.
type ServerFrame struct {
	Type           string               `json:"type"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Messages       []*entity.Message    `json:"messages,omitempty"`
	Notification   *entity.Notification `json:"notification,omitempty"`
	Error          string               `json:"error,omitempty"`
	Timestamp      string               `json:"timestamp"`
}

func ParseClientFrame(data []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Encode stamps the frame and marshals it.
func (f ServerFrame) Encode() []byte {
	f.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(f)
	if err != nil {
		data, _ = json.Marshal(ServerFrame{Type: FrameError, Error: "encoding failed", Timestamp: f.Timestamp})
	}
	return data
}

// SendFrame encodes frame and queues it for c.
func (c *Client) SendFrame(frame ServerFrame) bool {
	return c.manager.Enqueue(c, frame.Encode())
}

// PushNotification sends n to every open connection of recipient.
func (m *Manager) PushNotification(recipient string, n *entity.Notification) {
	frame := ServerFrame{Type: FrameNotification, Notification: n}
	if delivered := m.SendToUser(recipient, frame.Encode()); delivered > 0 {
		m.log.Debug().Str("recipient", recipient).Int("connections", delivered).Msg("notification pushed")
	}
}
