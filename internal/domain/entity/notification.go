package entity

import "time"

const (
	NotificationTypeChat              = "chat"
	NotificationTypeItemBought        = "item_bought"
	NotificationTypeOrderDisputed     = "order_disputed"
	NotificationTypeOrderCompleted    = "order_completed"
	NotificationTypeOrderRefunded     = "order_refunded"
	NotificationTypeDisputeResolved   = "dispute_resolved"
	NotificationTypeModeratorAssigned = "moderator_assigned"
)

// Notification lives in the recipient's inbox. Only IsRead changes after creation.
type Notification struct {
	ID        string    `json:"id" firestore:"id"`
	Message   string    `json:"message" firestore:"message"`
	From      string    `json:"from" firestore:"from"`
	ItemID    string    `json:"item_id,omitempty" firestore:"itemId,omitempty"`
	ActionURL string    `json:"action_url" firestore:"actionUrl"`
	Type      string    `json:"type" firestore:"type"`
	IsRead    bool      `json:"is_read" firestore:"isRead"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}
